package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campuseats/settlement-backend/pkg/enums"
	"github.com/campuseats/settlement-backend/pkg/types"
)

func TestKindOfTokenTable(t *testing.T) {
	cases := []struct {
		raw  string
		want enums.GatewayErrorKind
	}{
		{"gateway primary timeout after 10s", enums.GatewayErrorTimeout},
		{"request timed out", enums.GatewayErrorTimeout},
		{"connection refused", enums.GatewayErrorNetwork},
		{"network unreachable", enums.GatewayErrorNetwork},
		{"host unreachable", enums.GatewayErrorNetwork},
		{"invalid credentials supplied", enums.GatewayErrorInvalidCredentials},
		{"401 unauthorized", enums.GatewayErrorInvalidCredentials},
		{"authentication failed", enums.GatewayErrorInvalidCredentials},
		{"missing api key", enums.GatewayErrorInvalidCredentials},
		{"insufficient funds", enums.GatewayErrorInsufficientFunds},
		{"card declined by issuer", enums.GatewayErrorCardDeclined},
		{"invalid card details", enums.GatewayErrorInvalidCard},
		{"bad card number", enums.GatewayErrorInvalidCard},
		{"expired card", enums.GatewayErrorInvalidCard},
		{"something exploded", enums.GatewayErrorUnknown},
		{"", enums.GatewayErrorUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.raw), "raw=%q", tc.raw)
	}
}

func TestMessageForCoversEveryKind(t *testing.T) {
	kinds := []enums.GatewayErrorKind{
		enums.GatewayErrorTimeout,
		enums.GatewayErrorNetwork,
		enums.GatewayErrorInvalidCredentials,
		enums.GatewayErrorInsufficientFunds,
		enums.GatewayErrorCardDeclined,
		enums.GatewayErrorInvalidCard,
		enums.GatewayErrorUnknown,
	}
	seen := map[string]bool{}
	for _, kind := range kinds {
		msg := MessageFor(kind)
		assert.NotEmpty(t, msg, "kind=%s", kind)
		seen[msg] = true
	}
	// Every kind resolves to its own sentence; the unknown kind resolves to
	// the generic retry-friendly one.
	assert.Len(t, seen, len(kinds))
	assert.Equal(t, genericFailureMessage, MessageFor(enums.GatewayErrorUnknown))
}

func TestClassifyUsesMostRecentError(t *testing.T) {
	trail := types.PaymentErrorTrail{
		{Gateway: "primary", Attempt: 1, Error: "connection refused", Timestamp: time.Now()},
		{Gateway: "primary", Attempt: 2, Error: "gateway primary timeout after 10s", Timestamp: time.Now()},
	}
	assert.Equal(t, MessageFor(enums.GatewayErrorTimeout), Classify(trail))
}

func TestClassifyEmptyTrailIsGeneric(t *testing.T) {
	assert.Equal(t, genericFailureMessage, Classify(nil))
	assert.Equal(t, genericFailureMessage, Classify(types.PaymentErrorTrail{}))
}

func TestClassifyUnknownErrorIsGeneric(t *testing.T) {
	trail := types.PaymentErrorTrail{
		{Gateway: "backup", Attempt: 1, Error: "weird 502 body", Timestamp: time.Now()},
	}
	assert.Equal(t, genericFailureMessage, Classify(trail))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(enums.GatewayErrorTimeout))
	assert.True(t, Retryable(enums.GatewayErrorNetwork))
	assert.True(t, Retryable(enums.GatewayErrorUnknown))
	assert.True(t, Retryable(enums.GatewayErrorCardDeclined))
	assert.False(t, Retryable(enums.GatewayErrorInsufficientFunds))
	assert.False(t, Retryable(enums.GatewayErrorInvalidCard))
}
