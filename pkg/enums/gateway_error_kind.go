package enums

import "fmt"

// GatewayErrorKind is the closed classification of raw gateway failures.
// Raw error strings are mapped onto exactly one kind; anything the mapping
// table does not recognize is KindUnknown.
type GatewayErrorKind string

const (
	GatewayErrorTimeout            GatewayErrorKind = "timeout"
	GatewayErrorNetwork            GatewayErrorKind = "network"
	GatewayErrorInvalidCredentials GatewayErrorKind = "invalid_credentials"
	GatewayErrorInsufficientFunds  GatewayErrorKind = "insufficient_funds"
	GatewayErrorCardDeclined       GatewayErrorKind = "card_declined"
	GatewayErrorInvalidCard        GatewayErrorKind = "invalid_card"
	GatewayErrorUnknown            GatewayErrorKind = "unknown"
)

var validGatewayErrorKinds = []GatewayErrorKind{
	GatewayErrorTimeout,
	GatewayErrorNetwork,
	GatewayErrorInvalidCredentials,
	GatewayErrorInsufficientFunds,
	GatewayErrorCardDeclined,
	GatewayErrorInvalidCard,
	GatewayErrorUnknown,
}

// String implements fmt.Stringer.
func (g GatewayErrorKind) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayErrorKind.
func (g GatewayErrorKind) IsValid() bool {
	for _, candidate := range validGatewayErrorKinds {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayErrorKind converts raw input into a GatewayErrorKind.
func ParseGatewayErrorKind(value string) (GatewayErrorKind, error) {
	for _, candidate := range validGatewayErrorKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway error kind %q", value)
}
