package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/settlement-backend/pkg/db/models"
)

// Repository defines persistence operations for payment records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIntent(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentRecord, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRecord, error)
	UpdateOutcome(ctx context.Context, id uuid.UUID, updates map[string]any) error
}
