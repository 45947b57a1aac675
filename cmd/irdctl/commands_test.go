package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useTempStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_DSN", filepath.Join(t.TempDir(), "irdctl.db"))
}

func TestOrderCreateAndShow(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "order", "create", "--id", "42", "-c", "cust-1", "-t", "1500.00")
	require.NoError(t, err)
	assert.Equal(t, "Created order 42\n", out)

	out, err = run(t, "order", "show", "42")
	require.NoError(t, err)
	var view orderView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, int64(42), view.ID)
	assert.Equal(t, "cust-1", view.Customer)
	assert.Equal(t, "1500", view.Total)
	assert.Equal(t, "pending", view.Status)
}

func TestOrderShow_Unknown(t *testing.T) {
	useTempStore(t)

	_, err := run(t, "order", "show", "7")

	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "migrate")

	require.NoError(t, err)
	assert.Equal(t, "Schema applied to sqlite store\n", out)
}

func TestSettings(t *testing.T) {
	t.Setenv("IRANDARGAH_MERCHANT_ID", "abcdef123456")
	t.Setenv("IRANDARGAH_SANDBOX", "true")

	out, err := run(t, "settings")

	require.NoError(t, err)
	var view settingsView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, "********3456", view.MerchantID)
	assert.Equal(t, "SANDBOX", view.EffectiveMethod)
	assert.Equal(t, "https://dargaah.com/sandbox/payment", view.PaymentURL)
	assert.True(t, view.Available)
}

func TestCallbackURL(t *testing.T) {
	t.Setenv("HOST_CALLBACK_URL", "https://pay.example/irandargah/callback")
	t.Setenv("CALLBACK_SECRET", "")

	out, err := run(t, "callback-url", "9")

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/irandargah/callback?wc_order=9\n", out)
}
