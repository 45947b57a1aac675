package irandargah

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/platform/txlog"
)

// DefaultSOAPEndpoint is where the provider's WSDL service is published.
const DefaultSOAPEndpoint = "https://dargaah.com/wsdl"

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// SOAPClient invokes the provider's remote procedures with SOAP 1.1
// envelopes. The WSDL is never fetched or cached.
type SOAPClient struct {
	endpoint   string
	namespace  string
	httpClient *http.Client
	retry      RetryPolicy
	log        *txlog.Logger
}

// NewSOAPClient creates the RPC transport.
func NewSOAPClient(endpoint, namespace string, timeout time.Duration, retry RetryPolicy, logger *txlog.Logger) *SOAPClient {
	if endpoint == "" {
		endpoint = DefaultSOAPEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SOAPClient{
		endpoint:  endpoint,
		namespace: namespace,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // provider trust model
			},
		},
		retry: retry,
		log:   logger,
	}
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	Soap    string   `xml:"xmlns:soap,attr"`
	Body    soapBody `xml:"soap:Body"`
}

type soapBody struct {
	Call soapCall
}

type soapCall struct {
	XMLName xml.Name
	Xmlns   string `xml:"xmlns,attr,omitempty"`
	Request any    `xml:"request"`
}

type soapResponseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault  *soapFault `xml:"Fault"`
		Result *struct {
			Return *domain.ProviderResponse `xml:"return"`
		} `xml:",any"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// Send calls the procedure named by call.Target. Faults are logged and retried.
func (c *SOAPClient) Send(ctx context.Context, call domain.OutboundCall) domain.TransportResult {
	return c.retry.Do(ctx, func(ctx context.Context) (*domain.ProviderResponse, error) {
		resp, err := c.invoke(ctx, call.Target, call.Payload)
		if err != nil {
			c.log.When(call.Logging).Printf("%s: %v", call.Target, err)
			return nil, err
		}
		return resp, nil
	})
}

func (c *SOAPClient) invoke(ctx context.Context, procedure string, payload any) (*domain.ProviderResponse, error) {
	envelope := soapEnvelope{
		Soap: soapEnvelopeNS,
		Body: soapBody{Call: soapCall{
			XMLName: xml.Name{Local: procedure},
			Xmlns:   c.namespace,
			Request: payload,
		}},
	}
	body, err := xml.Marshal(envelope)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrProviderFault, "failed to marshal envelope: "+err.Error(), "MARSHAL_ERROR")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrProviderFault, "failed to create request: "+err.Error(), "REQUEST_ERROR")
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	action := procedure
	if c.namespace != "" {
		action = strings.TrimRight(c.namespace, "/#") + "#" + procedure
	}
	req.Header.Set("SOAPAction", `"`+action+`"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrProviderFault, "request failed: "+err.Error(), "SOAP_HTTP_ERROR")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrProviderFault, "failed to read response: "+err.Error(), "SOAP_HTTP_ERROR")
	}

	var decoded soapResponseEnvelope
	if err := xml.Unmarshal(raw, &decoded); err != nil {
		return nil, domain.NewServiceError(domain.ErrProviderFault, "failed to decode envelope: "+err.Error(), "DECODE_ERROR")
	}
	if f := decoded.Body.Fault; f != nil {
		return nil, domain.NewServiceError(domain.ErrProviderFault, f.String, "SOAP_FAULT")
	}
	if decoded.Body.Result == nil || decoded.Body.Result.Return == nil {
		return nil, errNoResponse
	}
	return decoded.Body.Result.Return, nil
}
