package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/settlement-backend/pkg/db/models"
	"github.com/campuseats/settlement-backend/pkg/enums"
)

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateStatusCAS flips the status only when the stored status still
	// matches expected. Returns the number of rows changed (0 or 1).
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, expected, next enums.OrderStatus) (int64, error)
}
