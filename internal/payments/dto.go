package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuseats/settlement-backend/pkg/enums"
	"github.com/campuseats/settlement-backend/pkg/types"
)

// InitiateInput starts settlement for one order.
type InitiateInput struct {
	OrderID uuid.UUID
	Method  enums.PaymentMethod
}

// VerificationInput is the webhook callback body after gateway-side review.
type VerificationInput struct {
	TransactionID   string
	Status          enums.PaymentStatus
	GatewayResponse types.JSONMap
	ErrorDetails    *string
}

// PaymentOutcome is the service-level view of a settled or failed payment.
type PaymentOutcome struct {
	PaymentID     uuid.UUID           `json:"paymentId"`
	OrderID       uuid.UUID           `json:"orderId"`
	TransactionID string              `json:"transactionId"`
	Amount        decimal.Decimal     `json:"amount"`
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.PaymentStatus `json:"status"`
	Gateway       string              `json:"gateway,omitempty"`
	Attempts      int                 `json:"attempts"`
	GatewayData   types.JSONMap       `json:"gatewayData,omitempty"`
	ErrorMessage  *string             `json:"errorMessage,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}
