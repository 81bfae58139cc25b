package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuseats/settlement-backend/pkg/config"
	"github.com/campuseats/settlement-backend/pkg/enums"
)

func testSlot(endpoint string, timeout time.Duration) config.GatewaySlot {
	return config.GatewaySlot{
		Name:       "primary",
		Endpoint:   endpoint,
		Credential: "secret-token",
		Timeout:    timeout,
	}
}

func testChargeRequest() ChargeRequest {
	return ChargeRequest{
		TransactionID: "txn-1",
		OrderID:       "order-1",
		Amount:        decimal.NewFromInt(120),
		Currency:      "THB",
		Method:        enums.PaymentMethodQRCode,
	}
}

func TestChargeSuccess(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success","data":{"reference":"GW-42"}}`))
	}))
	defer server.Close()

	client := NewClient(nil)
	result, err := client.Charge(context.Background(), testSlot(server.URL, time.Second), testChargeRequest())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "GW-42", result.Data["reference"])
}

func TestChargeGatewayErrorSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"insufficient funds"}`))
	}))
	defer server.Close()

	client := NewClient(nil)
	result, err := client.Charge(context.Background(), testSlot(server.URL, time.Second), testChargeRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, "insufficient funds", err.Error())
}

func TestChargeTimeoutNamesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(nil)
	result, err := client.Charge(context.Background(), testSlot(server.URL, 30*time.Millisecond), testChargeRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, strings.Contains(err.Error(), "timeout"), "error should name the timeout: %v", err)
}

func TestChargeNetworkError(t *testing.T) {
	client := NewClient(nil)
	// Closed port, connection refused.
	slot := testSlot("http://127.0.0.1:1", time.Second)
	result, err := client.Charge(context.Background(), slot, testChargeRequest())
	require.Error(t, err)
	assert.Nil(t, result)
}
