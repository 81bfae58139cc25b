package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuseats/settlement-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a customer places a new order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	CustomerID  uuid.UUID       `json:"customerId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	PickupTime  time.Time       `json:"pickupTime"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// OrderStateChangedEvent is emitted for every legal order status transition.
type OrderStateChangedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	CustomerID  uuid.UUID         `json:"customerId"`
	FromStatus  enums.OrderStatus `json:"fromStatus"`
	ToStatus    enums.OrderStatus `json:"toStatus"`
	ChangedBy   enums.ActorRole   `json:"changedBy"`
	ChangedAt   time.Time         `json:"changedAt"`
}

// OrderCancelledEvent is emitted when an order reaches the cancelled state.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	CustomerID  uuid.UUID         `json:"customerId"`
	FromStatus  enums.OrderStatus `json:"fromStatus"`
	Reason      string            `json:"reason,omitempty"`
	CancelledBy enums.ActorRole   `json:"cancelledBy"`
	CancelledAt time.Time         `json:"cancelledAt"`
}

// PaymentSettledEvent is emitted when a charge succeeds on any gateway.
type PaymentSettledEvent struct {
	PaymentID     uuid.UUID           `json:"paymentId"`
	OrderID       uuid.UUID           `json:"orderId"`
	TransactionID string              `json:"transactionId"`
	Gateway       string              `json:"gateway"`
	Method        enums.PaymentMethod `json:"method"`
	Amount        decimal.Decimal     `json:"amount"`
	Attempts      int                 `json:"attempts"`
	SettledAt     time.Time           `json:"settledAt"`
}

// PaymentFailedEvent is emitted when every gateway in the failover chain
// has been exhausted for a charge.
type PaymentFailedEvent struct {
	PaymentID     uuid.UUID              `json:"paymentId"`
	OrderID       uuid.UUID              `json:"orderId"`
	TransactionID string                 `json:"transactionId"`
	Gateway       string                 `json:"gateway"`
	Method        enums.PaymentMethod    `json:"method"`
	Amount        decimal.Decimal        `json:"amount"`
	ErrorKind     enums.GatewayErrorKind `json:"errorKind"`
	ErrorMessage  string                 `json:"errorMessage,omitempty"`
	Attempts      int                    `json:"attempts"`
	FailedAt      time.Time              `json:"failedAt"`
}
