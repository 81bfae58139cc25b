package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuseats/settlement-backend/pkg/enums"
)

// Actor identifies who is performing an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// CreateOrderItemInput is one requested line of a new order.
type CreateOrderItemInput struct {
	MenuItemID uuid.UUID
	Name       string
	Price      decimal.Decimal
	Quantity   int
}

// CreateOrderInput carries everything needed to place an order.
type CreateOrderInput struct {
	CustomerID uuid.UUID
	VendorID   uuid.UUID
	PickupTime time.Time
	Items      []CreateOrderItemInput
}
