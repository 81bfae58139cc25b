package payments

import (
	"strings"

	"github.com/campuseats/settlement-backend/pkg/enums"
	"github.com/campuseats/settlement-backend/pkg/types"
)

// genericFailureMessage is returned whenever no specific kind applies. It must
// stay retry-friendly because unknown failures are retryable by default.
const genericFailureMessage = "The payment could not be completed. Please try again."

// kindTokens maps lowercase substrings of raw gateway errors to error kinds.
// Ordered, first match wins. More specific tokens sit above generic ones.
var kindTokens = []struct {
	token string
	kind  enums.GatewayErrorKind
}{
	{"timed out", enums.GatewayErrorTimeout},
	{"timeout", enums.GatewayErrorTimeout},
	{"insufficient", enums.GatewayErrorInsufficientFunds},
	{"invalid card", enums.GatewayErrorInvalidCard},
	{"card number", enums.GatewayErrorInvalidCard},
	{"expired card", enums.GatewayErrorInvalidCard},
	{"declined", enums.GatewayErrorCardDeclined},
	{"credential", enums.GatewayErrorInvalidCredentials},
	{"unauthorized", enums.GatewayErrorInvalidCredentials},
	{"authentication", enums.GatewayErrorInvalidCredentials},
	{"api key", enums.GatewayErrorInvalidCredentials},
	{"connection", enums.GatewayErrorNetwork},
	{"network", enums.GatewayErrorNetwork},
	{"unreachable", enums.GatewayErrorNetwork},
	{"refused", enums.GatewayErrorNetwork},
}

var kindMessages = map[enums.GatewayErrorKind]string{
	enums.GatewayErrorTimeout:            "The payment gateway timed out. Please try again.",
	enums.GatewayErrorNetwork:            "We could not reach the payment gateway. Please try again.",
	enums.GatewayErrorInvalidCredentials: "The payment could not be processed due to a gateway configuration problem. Please contact support.",
	enums.GatewayErrorInsufficientFunds:  "Your payment was declined due to insufficient funds.",
	enums.GatewayErrorCardDeclined:       "Your card was declined by the bank.",
	enums.GatewayErrorInvalidCard:        "The card details are invalid. Please check them and try again.",
	enums.GatewayErrorUnknown:            genericFailureMessage,
}

// KindOf maps a raw gateway error string onto the closed error kind enum.
func KindOf(raw string) enums.GatewayErrorKind {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return enums.GatewayErrorUnknown
	}
	for _, entry := range kindTokens {
		if strings.Contains(normalized, entry.token) {
			return entry.kind
		}
	}
	return enums.GatewayErrorUnknown
}

// MessageFor returns the stable user-facing message for a kind.
func MessageFor(kind enums.GatewayErrorKind) string {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return genericFailureMessage
}

// Classify derives the user-facing failure message from the most recent entry
// of the error trail. An empty trail yields the generic retryable message.
func Classify(trail types.PaymentErrorTrail) string {
	last := trail.Last()
	if last == nil {
		return genericFailureMessage
	}
	return MessageFor(KindOf(last.Error))
}

// Retryable reports whether a failure of this kind is worth retrying from the
// customer's point of view.
func Retryable(kind enums.GatewayErrorKind) bool {
	switch kind {
	case enums.GatewayErrorInsufficientFunds, enums.GatewayErrorInvalidCard:
		return false
	default:
		return true
	}
}
