package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campuseats/settlement-backend/pkg/db/models"
	"github.com/campuseats/settlement-backend/pkg/enums"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ordersTable := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  order_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending_payment',
  total_amount TEXT NOT NULL,
  pickup_time DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	itemsTable := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  menu_item_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  subtotal TEXT NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(ordersTable).Error)
	require.NoError(t, db.Exec(itemsTable).Error)
	return db
}

func sampleOrder() *models.Order {
	orderID := uuid.New()
	return &models.Order{
		ID:          orderID,
		CustomerID:  uuid.New(),
		VendorID:    uuid.New(),
		OrderNumber: newOrderNumber(),
		Status:      enums.OrderStatusPendingPayment,
		TotalAmount: decimal.NewFromInt(120),
		PickupTime:  time.Now().Add(time.Hour),
		Items: []models.OrderItem{
			{
				ID:         uuid.New(),
				OrderID:    orderID,
				MenuItemID: uuid.New(),
				Name:       "Pad Thai",
				Price:      decimal.NewFromInt(50),
				Quantity:   2,
				Subtotal:   decimal.NewFromInt(100),
			},
			{
				ID:         uuid.New(),
				OrderID:    orderID,
				MenuItemID: uuid.New(),
				Name:       "Iced Tea",
				Price:      decimal.NewFromInt(20),
				Quantity:   1,
				Subtotal:   decimal.NewFromInt(20),
			},
		},
	}
}

func TestCreateAndFindOrderWithItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := sampleOrder()
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, found.OrderNumber)
	assert.Equal(t, enums.OrderStatusPendingPayment, found.Status)
	assert.True(t, found.TotalAmount.Equal(decimal.NewFromInt(120)))
	require.Len(t, found.Items, 2)
}

func TestUpdateStatusCAS(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := sampleOrder()
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	rows, err := repo.UpdateStatusCAS(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// Stale expectation: the order is paid now, not pending.
	rows, err = repo.UpdateStatusCAS(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, found.Status)
}

func TestUpdateStatusCASMissingOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	rows, err := repo.UpdateStatusCAS(context.Background(), uuid.New(), enums.OrderStatusPendingPayment, enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}
