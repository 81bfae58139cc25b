package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campuseats/settlement-backend/pkg/db/models"
	"github.com/campuseats/settlement-backend/pkg/enums"
	pkgerrors "github.com/campuseats/settlement-backend/pkg/errors"
	"github.com/campuseats/settlement-backend/pkg/logger"
	"github.com/campuseats/settlement-backend/pkg/outbox"
	"github.com/campuseats/settlement-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor Actor) error
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) error
	MarkPaid(ctx context.Context, orderID uuid.UUID) error
}

// Config carries the order policy knobs.
type Config struct {
	// MinPickupLead is the minimum gap between now and the requested pickup.
	MinPickupLead time.Duration
	// AutoPrepare advances a freshly paid order straight to preparing.
	AutoPrepare bool
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	cfg    Config
	logg   *logger.Logger
	now    func() time.Time
}

// ServiceParams wires the orders service dependencies. Now is optional and
// defaults to wall time.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Config Config
	Logger *logger.Logger
	Now    func() time.Time
}

// NewService builds the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		cfg:    params.Config,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customerId is required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendorId is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}

	now := s.now()
	earliest := now.Add(s.cfg.MinPickupLead)
	if input.PickupTime.Before(earliest) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("pickup time must be at least %s from now", s.cfg.MinPickupLead))
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(input.Items))
	for i, item := range input.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d requires a name", i))
		}
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d requires a positive quantity", i))
		}
		if item.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d requires a non-negative price", i))
		}
		subtotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(subtotal)
		items = append(items, models.OrderItem{
			ID:         uuid.New(),
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Price:      item.Price,
			Quantity:   item.Quantity,
			Subtotal:   subtotal,
		})
	}

	order := &models.Order{
		ID:          uuid.New(),
		CustomerID:  input.CustomerID,
		VendorID:    input.VendorID,
		OrderNumber: newOrderNumber(),
		Status:      enums.OrderStatusPendingPayment,
		TotalAmount: total,
		PickupTime:  input.PickupTime,
		Items:       items,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.CustomerID, Role: enums.ActorRoleCustomer},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				TotalAmount: order.TotalAmount,
				PickupTime:  order.PickupTime,
				CreatedAt:   now,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
	}
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.loadOrder(ctx, id)
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor Actor) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(order.Status, next, actor.Role); err != nil {
		return err
	}
	return s.applyTransition(ctx, order, next, actor, "")
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(order.Status, enums.OrderStatusCancelled, actor.Role); err != nil {
		return err
	}
	return s.applyTransition(ctx, order, enums.OrderStatusCancelled, actor, reason)
}

// MarkPaid applies the system payment transition and, when auto-prepare is
// on, advances the order straight to preparing. A lost race on the second
// hop is logged and swallowed; the order is already paid.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID) error {
	systemActor := Actor{Role: enums.ActorRoleSystem}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is already %s", order.Status))
	}
	if err := s.applyTransition(ctx, order, enums.OrderStatusPaid, systemActor, ""); err != nil {
		return err
	}
	if !s.cfg.AutoPrepare {
		return nil
	}

	order.Status = enums.OrderStatusPaid
	if err := s.applyTransition(ctx, order, enums.OrderStatusPreparing, systemActor, ""); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "auto-prepare lost the status race")
			}
			return nil
		}
		return err
	}
	return nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

// applyTransition performs the CAS status flip and emits exactly one domain
// event in the same transaction. Zero affected rows means the stored status
// moved underneath us.
func (s *service) applyTransition(ctx context.Context, order *models.Order, next enums.OrderStatus, actor Actor, reason string) error {
	from := order.Status
	changedAt := s.now()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateStatusCAS(ctx, order.ID, from, next)
		if err != nil {
			return err
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is no longer %s", from))
		}

		event := outbox.DomainEvent{
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    changedAt,
		}
		if actor.UserID != uuid.Nil || actor.Role != "" {
			event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role}
		}
		if next == enums.OrderStatusCancelled {
			event.EventType = enums.EventOrderCancelled
			event.Data = payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				FromStatus:  from,
				Reason:      reason,
				CancelledBy: actor.Role,
				CancelledAt: changedAt,
			}
		} else {
			event.EventType = enums.EventOrderStateChanged
			event.Data = payloads.OrderStateChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				FromStatus:  from,
				ToStatus:    next,
				ChangedBy:   actor.Role,
				ChangedAt:   changedAt,
			}
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order status")
	}
	return nil
}

func newOrderNumber() string {
	return fmt.Sprintf("CE-%s", strings.ToUpper(uuid.NewString()[:8]))
}
