package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuseats/settlement-backend/pkg/db/models"
	"github.com/campuseats/settlement-backend/pkg/enums"
	pkgerrors "github.com/campuseats/settlement-backend/pkg/errors"
	"github.com/campuseats/settlement-backend/pkg/gateway"
	"github.com/campuseats/settlement-backend/pkg/outbox"
	"github.com/campuseats/settlement-backend/pkg/types"
)

type stubPaymentsRepo struct {
	records      map[uuid.UUID]*models.PaymentRecord
	createIntent func(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error)
}

func newStubPaymentsRepo() *stubPaymentsRepo {
	return &stubPaymentsRepo{records: make(map[uuid.UUID]*models.PaymentRecord)}
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPaymentsRepo) CreateIntent(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error) {
	if s.createIntent != nil {
		return s.createIntent(ctx, record)
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	copied := *record
	s.records[record.ID] = &copied
	return record, nil
}

func (s *stubPaymentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *stubPaymentsRepo) FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentRecord, error) {
	for _, record := range s.records {
		if record.TransactionID == transactionID {
			copied := *record
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRecord, error) {
	var out []models.PaymentRecord
	for _, record := range s.records {
		if record.OrderID == orderID {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (s *stubPaymentsRepo) UpdateOutcome(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	record, ok := s.records[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "status":
			record.Status = value.(enums.PaymentStatus)
		case "gateway":
			record.Gateway = value.(string)
		case "attempts":
			record.Attempts = value.(int)
		case "errors":
			record.Errors = value.(types.PaymentErrorTrail)
		case "error_message":
			if value == nil {
				record.ErrorMessage = nil
			} else {
				msg := value.(string)
				record.ErrorMessage = &msg
			}
		case "gateway_data":
			record.GatewayData = value.(*types.JSONMap)
		}
	}
	return nil
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	for _, seen := range s.events {
		if seen.EventType == event.EventType && seen.AggregateID == event.AggregateID {
			return nil
		}
	}
	return s.Emit(ctx, tx, event)
}

type stubOrders struct {
	order        *models.Order
	getErr       error
	markPaidErr  error
	markPaidSeen []uuid.UUID
}

func (s *stubOrders) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrders) MarkPaid(ctx context.Context, orderID uuid.UUID) error {
	s.markPaidSeen = append(s.markPaidSeen, orderID)
	return s.markPaidErr
}

type stubOrchestrator struct {
	result OrchestrationResult
	err    error
	seen   []gateway.ChargeRequest
}

func (s *stubOrchestrator) Run(ctx context.Context, req gateway.ChargeRequest) (OrchestrationResult, error) {
	s.seen = append(s.seen, req)
	return s.result, s.err
}

type paymentsFixture struct {
	repo   *stubPaymentsRepo
	orders *stubOrders
	orch   *stubOrchestrator
	outbox *stubOutbox
	svc    Service
}

func newPaymentsFixture(t *testing.T, order *models.Order, result OrchestrationResult) *paymentsFixture {
	t.Helper()
	repo := newStubPaymentsRepo()
	ordersStub := &stubOrders{order: order}
	orch := &stubOrchestrator{result: result}
	outboxStub := &stubOutbox{}
	svc, err := NewService(ServiceParams{
		Repo:         repo,
		Tx:           stubTx{},
		Orchestrator: orch,
		Orders:       ordersStub,
		Outbox:       outboxStub,
	})
	require.NoError(t, err)
	return &paymentsFixture{repo: repo, orders: ordersStub, orch: orch, outbox: outboxStub, svc: svc}
}

func pendingOrder() *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		CustomerID:  uuid.New(),
		VendorID:    uuid.New(),
		OrderNumber: "CE-1001",
		Status:      enums.OrderStatusPendingPayment,
		TotalAmount: decimal.NewFromInt(120),
	}
}

func TestInitiateSuccess(t *testing.T) {
	order := pendingOrder()
	fx := newPaymentsFixture(t, order, OrchestrationResult{
		Success:  true,
		Gateway:  "primary",
		Data:     types.JSONMap{"reference": "GW-1"},
		Attempts: 1,
	})

	outcome, err := fx.svc.Initiate(context.Background(), InitiateInput{
		OrderID: order.ID,
		Method:  enums.PaymentMethodQRCode,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, enums.PaymentStatusSuccess, outcome.Status)
	assert.Equal(t, "primary", outcome.Gateway)
	assert.Equal(t, 1, outcome.Attempts)
	assert.NotEmpty(t, outcome.TransactionID)
	assert.True(t, outcome.Amount.Equal(decimal.NewFromInt(120)))

	require.Len(t, fx.orders.markPaidSeen, 1)
	assert.Equal(t, order.ID, fx.orders.markPaidSeen[0])
	require.Len(t, fx.outbox.events, 1)
	assert.Equal(t, enums.EventPaymentSettled, fx.outbox.events[0].EventType)

	// The charge carried the order amount and a stable transaction id.
	require.Len(t, fx.orch.seen, 1)
	assert.Equal(t, outcome.TransactionID, fx.orch.seen[0].TransactionID)
}

func TestInitiateRejectsNonPendingOrder(t *testing.T) {
	order := pendingOrder()
	order.Status = enums.OrderStatusPaid
	fx := newPaymentsFixture(t, order, OrchestrationResult{})

	_, err := fx.svc.Initiate(context.Background(), InitiateInput{
		OrderID: order.ID,
		Method:  enums.PaymentMethodQRCode,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Empty(t, fx.orch.seen)
}

func TestInitiateDuplicateIntentIsConflict(t *testing.T) {
	order := pendingOrder()
	fx := newPaymentsFixture(t, order, OrchestrationResult{})
	fx.repo.createIntent = func(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error) {
		return nil, errors.New(`duplicate key value violates unique constraint "ux_payment_records_order_open"`)
	}

	_, err := fx.svc.Initiate(context.Background(), InitiateInput{
		OrderID: order.ID,
		Method:  enums.PaymentMethodQRCode,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestInitiateExhaustionReturnsPaymentError(t *testing.T) {
	order := pendingOrder()
	trail := types.PaymentErrorTrail{
		{Gateway: "primary", Attempt: 1, Error: "insufficient funds"},
		{Gateway: "primary", Attempt: 2, Error: "insufficient funds"},
		{Gateway: "primary", Attempt: 3, Error: "insufficient funds"},
	}
	fx := newPaymentsFixture(t, order, OrchestrationResult{
		Success:  false,
		Attempts: 3,
		Trail:    trail,
	})

	_, err := fx.svc.Initiate(context.Background(), InitiateInput{
		OrderID: order.ID,
		Method:  enums.PaymentMethodDebitCard,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePaymentGateway, typed.Code())
	assert.Equal(t, MessageFor(enums.GatewayErrorInsufficientFunds), typed.Message())

	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, details["canRetry"])

	// Record persisted as failed with the classified message.
	paymentID := details["paymentId"].(uuid.UUID)
	record := fx.repo.records[paymentID]
	require.NotNil(t, record)
	assert.Equal(t, enums.PaymentStatusFailed, record.Status)
	assert.Equal(t, 3, record.Attempts)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, MessageFor(enums.GatewayErrorInsufficientFunds), *record.ErrorMessage)

	require.Len(t, fx.outbox.events, 1)
	assert.Equal(t, enums.EventPaymentFailed, fx.outbox.events[0].EventType)
	assert.Empty(t, fx.orders.markPaidSeen)
}

func TestRetryRejectsSettledPayment(t *testing.T) {
	order := pendingOrder()
	fx := newPaymentsFixture(t, order, OrchestrationResult{})

	record := &models.PaymentRecord{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Status:        enums.PaymentStatusSuccess,
		TransactionID: newTransactionID(),
	}
	fx.repo.records[record.ID] = record

	_, err := fx.svc.Retry(context.Background(), record.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestRetryAccumulatesAttemptsAndTrail(t *testing.T) {
	order := pendingOrder()
	fx := newPaymentsFixture(t, order, OrchestrationResult{
		Success:  true,
		Gateway:  "backup",
		Attempts: 2,
		Trail: types.PaymentErrorTrail{
			{Gateway: "primary", Attempt: 1, Error: "timeout"},
		},
	})

	record := &models.PaymentRecord{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Amount:        decimal.NewFromInt(120),
		Method:        enums.PaymentMethodQRCode,
		Status:        enums.PaymentStatusFailed,
		TransactionID: newTransactionID(),
		Attempts:      3,
		Errors: types.PaymentErrorTrail{
			{Gateway: "primary", Attempt: 1, Error: "timeout"},
			{Gateway: "primary", Attempt: 2, Error: "timeout"},
			{Gateway: "primary", Attempt: 3, Error: "timeout"},
		},
	}
	fx.repo.records[record.ID] = record

	outcome, err := fx.svc.Retry(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSuccess, outcome.Status)
	assert.Equal(t, 5, outcome.Attempts)

	stored := fx.repo.records[record.ID]
	assert.Len(t, stored.Errors, 4)

	// Same transaction id reused for the retry run.
	require.Len(t, fx.orch.seen, 1)
	assert.Equal(t, record.TransactionID, fx.orch.seen[0].TransactionID)
	require.Len(t, fx.orders.markPaidSeen, 1)
}

func TestHandleVerificationIdempotent(t *testing.T) {
	order := pendingOrder()
	fx := newPaymentsFixture(t, order, OrchestrationResult{})

	record := &models.PaymentRecord{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Status:        enums.PaymentStatusSuccess,
		TransactionID: newTransactionID(),
	}
	fx.repo.records[record.ID] = record

	err := fx.svc.HandleVerification(context.Background(), VerificationInput{
		TransactionID: record.TransactionID,
		Status:        enums.PaymentStatusSuccess,
	})
	require.NoError(t, err)
	// Already settled: no transition re-applied, no event emitted.
	assert.Empty(t, fx.orders.markPaidSeen)
	assert.Empty(t, fx.outbox.events)
}

func TestHandleVerificationAppliesSuccessOnce(t *testing.T) {
	order := pendingOrder()
	fx := newPaymentsFixture(t, order, OrchestrationResult{})

	record := &models.PaymentRecord{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Status:        enums.PaymentStatusPending,
		TransactionID: newTransactionID(),
		Gateway:       "primary",
	}
	fx.repo.records[record.ID] = record

	input := VerificationInput{
		TransactionID:   record.TransactionID,
		Status:          enums.PaymentStatusSuccess,
		GatewayResponse: types.JSONMap{"reference": "GW-9"},
	}
	require.NoError(t, fx.svc.HandleVerification(context.Background(), input))
	assert.Equal(t, enums.PaymentStatusSuccess, fx.repo.records[record.ID].Status)
	require.Len(t, fx.orders.markPaidSeen, 1)
	require.Len(t, fx.outbox.events, 1)

	// Duplicate callback is a no-op.
	require.NoError(t, fx.svc.HandleVerification(context.Background(), input))
	assert.Len(t, fx.orders.markPaidSeen, 1)
	assert.Len(t, fx.outbox.events, 1)
}

func TestHandleVerificationCannotUnsettle(t *testing.T) {
	order := pendingOrder()
	fx := newPaymentsFixture(t, order, OrchestrationResult{})

	record := &models.PaymentRecord{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Status:        enums.PaymentStatusSuccess,
		TransactionID: newTransactionID(),
	}
	fx.repo.records[record.ID] = record

	err := fx.svc.HandleVerification(context.Background(), VerificationInput{
		TransactionID: record.TransactionID,
		Status:        enums.PaymentStatusFailed,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestHandleVerificationValidation(t *testing.T) {
	fx := newPaymentsFixture(t, pendingOrder(), OrchestrationResult{})

	err := fx.svc.HandleVerification(context.Background(), VerificationInput{Status: enums.PaymentStatusSuccess})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	err = fx.svc.HandleVerification(context.Background(), VerificationInput{
		TransactionID: "txn_x",
		Status:        enums.PaymentStatusPending,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	err = fx.svc.HandleVerification(context.Background(), VerificationInput{
		TransactionID: "txn_missing",
		Status:        enums.PaymentStatusSuccess,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestMarkPaidStateConflictTolerated(t *testing.T) {
	order := pendingOrder()
	fx := newPaymentsFixture(t, order, OrchestrationResult{
		Success:  true,
		Gateway:  "primary",
		Attempts: 1,
	})
	fx.orders.markPaidErr = pkgerrors.New(pkgerrors.CodeStateConflict, "already paid")

	outcome, err := fx.svc.Initiate(context.Background(), InitiateInput{
		OrderID: order.ID,
		Method:  enums.PaymentMethodQRCode,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSuccess, outcome.Status)
}
