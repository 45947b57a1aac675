package irandargah

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/platform/txlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verificationResponse = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <ns1:IRDVerificationResponse xmlns:ns1="urn:irandargah">
      <return>
        <status>100</status>
        <message>verified</message>
        <refId>R1</refId>
        <cardNumber>6219-86**-****-1234</cardNumber>
        <amount>50000</amount>
      </return>
    </ns1:IRDVerificationResponse>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

const faultResponse = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <SOAP-ENV:Fault>
      <faultcode>SOAP-ENV:Server</faultcode>
      <faultstring>service temporarily unavailable</faultstring>
    </SOAP-ENV:Fault>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func TestSOAPClient_InvokesProcedure(t *testing.T) {
	var requestBody string
	var soapAction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		requestBody = string(b)
		soapAction = r.Header.Get("SOAPAction")
		_, _ = io.WriteString(w, verificationResponse)
	}))
	defer srv.Close()

	client := NewSOAPClient(srv.URL, "urn:irandargah", 0, DefaultRetryPolicy(), txlog.Discard())
	payload := &domain.VerificationRequest{MerchantID: "M1", Authority: "A1", Amount: 50000, OrderID: 123}

	result := client.Send(context.Background(), domain.OutboundCall{Target: domain.ProcedureVerification, Payload: payload})

	require.False(t, result.Absent())
	assert.Equal(t, domain.FlexInt(100), result.Response.Status)
	assert.Equal(t, domain.FlexString("R1"), result.Response.RefID)
	assert.Equal(t, "6219-86**-****-1234", result.Response.CardNumber)
	assert.Equal(t, domain.FlexInt(50000), result.Response.Amount)

	assert.Equal(t, `"urn:irandargah#IRDVerification"`, soapAction)
	assert.Contains(t, requestBody, "<IRDVerification")
	assert.Contains(t, requestBody, "<authority>A1</authority>")
	assert.Contains(t, requestBody, "<merchantID>M1</merchantID>")

	// The request must be well-formed XML.
	assert.NoError(t, xml.Unmarshal([]byte(requestBody), new(struct{})))
}

func TestSOAPClient_FaultIsRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, faultResponse)
			return
		}
		_, _ = io.WriteString(w, verificationResponse)
	}))
	defer srv.Close()

	var logBuf strings.Builder
	client := NewSOAPClient(srv.URL, "", 0, DefaultRetryPolicy(), txlog.New(&logBuf, true))

	result := client.Send(context.Background(), domain.OutboundCall{Target: domain.ProcedureVerification, Payload: &domain.VerificationRequest{}, Logging: true})

	require.False(t, result.Absent())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Contains(t, logBuf.String(), "service temporarily unavailable")
}

func TestSOAPClient_PersistentFaultIsAbsent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, faultResponse)
	}))
	defer srv.Close()

	client := NewSOAPClient(srv.URL, "", 0, DefaultRetryPolicy(), txlog.Discard())
	result := client.Send(context.Background(), domain.OutboundCall{Target: domain.ProcedurePayment, Payload: &domain.PaymentRequest{}})

	assert.True(t, result.Absent())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.ErrorIs(t, result.Err, domain.ErrProviderFault)
	assert.Contains(t, result.Err.Error(), "service temporarily unavailable")
}

func TestSOAPClient_UnreachableEndpointIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	client := NewSOAPClient(endpoint, "", 0, DefaultRetryPolicy(), txlog.Discard())
	result := client.Send(context.Background(), domain.OutboundCall{Target: domain.ProcedurePayment, Payload: &domain.PaymentRequest{}})

	assert.True(t, result.Absent())
	assert.Equal(t, 3, result.Attempts)
}
