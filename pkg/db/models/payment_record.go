package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuseats/settlement-backend/pkg/enums"
	"github.com/campuseats/settlement-backend/pkg/types"
)

// PaymentRecord tracks one payment intent for an order across retries and
// gateway failovers. TransactionID is generated once per intent and reused
// for every attempt; the duplicate-intent guard is a partial unique index on
// order_id for records in pending or success.
type PaymentRecord struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Method        enums.PaymentMethod     `gorm:"column:method;type:payment_method;not null"`
	Status        enums.PaymentStatus     `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	TransactionID string                  `gorm:"column:transaction_id;uniqueIndex;not null"`
	Gateway       string                  `gorm:"column:gateway"`
	Attempts      int                     `gorm:"column:attempts;not null;default:0"`
	Errors        types.PaymentErrorTrail `gorm:"column:errors;type:jsonb;serializer:json"`
	ErrorMessage  *string                 `gorm:"column:error_message"`
	GatewayData   *types.JSONMap          `gorm:"column:gateway_data;type:jsonb;serializer:json"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
