package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/campuseats/settlement-backend/pkg/db"
	"github.com/campuseats/settlement-backend/pkg/db/models"
	"github.com/campuseats/settlement-backend/pkg/enums"
	pkgerrors "github.com/campuseats/settlement-backend/pkg/errors"
	"github.com/campuseats/settlement-backend/pkg/gateway"
	"github.com/campuseats/settlement-backend/pkg/logger"
	"github.com/campuseats/settlement-backend/pkg/outbox"
	"github.com/campuseats/settlement-backend/pkg/outbox/payloads"
	"github.com/campuseats/settlement-backend/pkg/types"
)

const (
	defaultCurrency = "USD"

	// Name of the partial unique index guarding one open payment per order.
	openPaymentConstraint = "ux_payment_records_order_open"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderDirectory is the slice of the orders service the payments flow needs.
type orderDirectory interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID) error
}

type orchestratorRunner interface {
	Run(ctx context.Context, req gateway.ChargeRequest) (OrchestrationResult, error)
}

type settlementMetrics interface {
	RecordSettlement(gateway string, attempts int, success bool)
}

// Service defines the payment settlement operations.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*PaymentOutcome, error)
	Retry(ctx context.Context, paymentID uuid.UUID) (*PaymentOutcome, error)
	HandleVerification(ctx context.Context, input VerificationInput) error
	GetByID(ctx context.Context, paymentID uuid.UUID) (*PaymentOutcome, error)
}

type service struct {
	repo         Repository
	tx           txRunner
	orchestrator orchestratorRunner
	orders       orderDirectory
	outbox       outboxPublisher
	metrics      settlementMetrics
	logg         *logger.Logger
}

// ServiceParams wires the payments service dependencies.
type ServiceParams struct {
	Repo         Repository
	Tx           txRunner
	Orchestrator orchestratorRunner
	Orders       orderDirectory
	Outbox       outboxPublisher
	Metrics      settlementMetrics
	Logger       *logger.Logger
}

// NewService builds the payments service. Metrics and logger are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders service is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher is required")
	}
	return &service{
		repo:         params.Repo,
		tx:           params.Tx,
		orchestrator: params.Orchestrator,
		orders:       params.Orders,
		outbox:       params.Outbox,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*PaymentOutcome, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.Method))
	}

	order, err := s.orders.GetOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, payment can only be initiated while pending_payment", order.Status))
	}

	record := &models.PaymentRecord{
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		Method:        input.Method,
		Status:        enums.PaymentStatusPending,
		TransactionID: newTransactionID(),
	}
	created, err := s.repo.CreateIntent(ctx, record)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, openPaymentConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				"a payment for this order is already pending or settled")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payment record")
	}

	return s.settle(ctx, created, 0, nil)
}

func (s *service) Retry(ctx context.Context, paymentID uuid.UUID) (*PaymentOutcome, error) {
	record, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment record")
	}
	if record.Status == enums.PaymentStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is already settled")
	}

	return s.settle(ctx, record, record.Attempts, record.Errors)
}

// settle runs orchestration for the record's stable transaction id, persists
// the cumulative outcome and emits the matching domain event in one tx.
func (s *service) settle(ctx context.Context, record *models.PaymentRecord, priorAttempts int, priorTrail types.PaymentErrorTrail) (*PaymentOutcome, error) {
	result, runErr := s.orchestrator.Run(ctx, gateway.ChargeRequest{
		TransactionID: record.TransactionID,
		OrderID:       record.OrderID.String(),
		Amount:        record.Amount,
		Currency:      defaultCurrency,
		Method:        record.Method,
	})
	if runErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, runErr, "settlement interrupted")
	}

	attempts := priorAttempts + result.Attempts
	trail := append(append(types.PaymentErrorTrail{}, priorTrail...), result.Trail...)

	if s.metrics != nil {
		s.metrics.RecordSettlement(result.Gateway, result.Attempts, result.Success)
	}

	if result.Success {
		if err := s.persistSuccess(ctx, record, result, attempts, trail); err != nil {
			return nil, err
		}
		if err := s.applyOrderPaid(ctx, record.OrderID); err != nil {
			return nil, err
		}
		return s.GetByID(ctx, record.ID)
	}

	message := Classify(trail)
	kind := enums.GatewayErrorUnknown
	if last := trail.Last(); last != nil {
		kind = KindOf(last.Error)
	}
	if err := s.persistFailure(ctx, record, result, attempts, trail, message, kind); err != nil {
		return nil, err
	}

	return nil, pkgerrors.New(pkgerrors.CodePaymentGateway, message).WithDetails(map[string]any{
		"paymentId": record.ID,
		"canRetry":  Retryable(kind),
	})
}

func (s *service) persistSuccess(ctx context.Context, record *models.PaymentRecord, result OrchestrationResult, attempts int, trail types.PaymentErrorTrail) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":        enums.PaymentStatusSuccess,
			"gateway":       result.Gateway,
			"attempts":      attempts,
			"errors":        trail,
			"error_message": nil,
		}
		if result.Data != nil {
			updates["gateway_data"] = &result.Data
		}
		if err := s.repo.WithTx(tx).UpdateOutcome(ctx, record.ID, updates); err != nil {
			return err
		}
		// A settlement happens once per record; a verification racing the
		// orchestrator must not queue a second copy.
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregatePaymentRecord,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.PaymentSettledEvent{
				PaymentID:     record.ID,
				OrderID:       record.OrderID,
				TransactionID: record.TransactionID,
				Gateway:       result.Gateway,
				Method:        record.Method,
				Amount:        record.Amount,
				Attempts:      attempts,
				SettledAt:     time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting settlement outcome")
	}
	return nil
}

func (s *service) persistFailure(ctx context.Context, record *models.PaymentRecord, result OrchestrationResult, attempts int, trail types.PaymentErrorTrail, message string, kind enums.GatewayErrorKind) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":        enums.PaymentStatusFailed,
			"attempts":      attempts,
			"errors":        trail,
			"error_message": message,
		}
		if err := s.repo.WithTx(tx).UpdateOutcome(ctx, record.ID, updates); err != nil {
			return err
		}
		failedAt := time.Now().UTC()
		var lastError string
		if last := trail.Last(); last != nil {
			lastError = last.Error
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentRecord,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.PaymentFailedEvent{
				PaymentID:     record.ID,
				OrderID:       record.OrderID,
				TransactionID: record.TransactionID,
				Gateway:       result.Gateway,
				Method:        record.Method,
				Amount:        record.Amount,
				ErrorKind:     kind,
				ErrorMessage:  lastError,
				Attempts:      attempts,
				FailedAt:      failedAt,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting settlement outcome")
	}
	return nil
}

// applyOrderPaid runs the system payment transition. An order already past
// pending_payment is treated as applied.
func (s *service) applyOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	err := s.orders.MarkPaid(ctx, orderID)
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
		if s.logg != nil {
			logCtx := s.logg.WithOrderID(ctx, orderID.String())
			s.logg.Warn(logCtx, "payment transition already applied")
		}
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "applying payment transition")
}

func (s *service) HandleVerification(ctx context.Context, input VerificationInput) error {
	if input.TransactionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transactionId is required")
	}
	if input.Status != enums.PaymentStatusSuccess && input.Status != enums.PaymentStatusFailed {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("verification status must be success or failed, got %q", input.Status))
	}

	record, err := s.repo.FindByTransactionID(ctx, input.TransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "unknown transaction")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment record")
	}

	// Idempotent re-application: same target status is a no-op and must not
	// re-apply the order transition.
	if record.Status == input.Status {
		return nil
	}
	if record.Status == enums.PaymentStatusSuccess {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "settled payment cannot change status")
	}

	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{"status": input.Status}
		if input.GatewayResponse != nil {
			updates["gateway_data"] = &input.GatewayResponse
		}
		if input.ErrorDetails != nil {
			updates["error_message"] = *input.ErrorDetails
		}
		if err := s.repo.WithTx(tx).UpdateOutcome(ctx, record.ID, updates); err != nil {
			return err
		}

		if input.Status == enums.PaymentStatusSuccess {
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentSettled,
				AggregateType: enums.AggregatePaymentRecord,
				AggregateID:   record.ID,
				Version:       1,
				Data: payloads.PaymentSettledEvent{
					PaymentID:     record.ID,
					OrderID:       record.OrderID,
					TransactionID: record.TransactionID,
					Gateway:       record.Gateway,
					Method:        record.Method,
					Amount:        record.Amount,
					Attempts:      record.Attempts,
					SettledAt:     time.Now().UTC(),
				},
			})
		}
		var lastError string
		if input.ErrorDetails != nil {
			lastError = *input.ErrorDetails
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentRecord,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.PaymentFailedEvent{
				PaymentID:     record.ID,
				OrderID:       record.OrderID,
				TransactionID: record.TransactionID,
				Gateway:       record.Gateway,
				Method:        record.Method,
				Amount:        record.Amount,
				ErrorKind:     KindOf(lastError),
				ErrorMessage:  lastError,
				Attempts:      record.Attempts,
				FailedAt:      time.Now().UTC(),
			},
		})
	})
	if txErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "applying verification")
	}

	if input.Status == enums.PaymentStatusSuccess {
		return s.applyOrderPaid(ctx, record.OrderID)
	}
	return nil
}

func (s *service) GetByID(ctx context.Context, paymentID uuid.UUID) (*PaymentOutcome, error) {
	record, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment record")
	}
	return outcomeFromRecord(record), nil
}

func outcomeFromRecord(record *models.PaymentRecord) *PaymentOutcome {
	outcome := &PaymentOutcome{
		PaymentID:     record.ID,
		OrderID:       record.OrderID,
		TransactionID: record.TransactionID,
		Amount:        record.Amount,
		Method:        record.Method,
		Status:        record.Status,
		Gateway:       record.Gateway,
		Attempts:      record.Attempts,
		ErrorMessage:  record.ErrorMessage,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
	if record.GatewayData != nil {
		outcome.GatewayData = *record.GatewayData
	}
	return outcome
}

func newTransactionID() string {
	return fmt.Sprintf("txn_%s", uuid.NewString())
}
