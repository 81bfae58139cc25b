package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/campuseats/settlement-backend/internal/payments"
	"github.com/campuseats/settlement-backend/pkg/config"
	"github.com/campuseats/settlement-backend/pkg/db/models"
	"github.com/campuseats/settlement-backend/pkg/enums"
	"github.com/campuseats/settlement-backend/pkg/logger"
	"github.com/campuseats/settlement-backend/pkg/outbox"
	"github.com/campuseats/settlement-backend/pkg/outbox/idempotency"
	"github.com/campuseats/settlement-backend/pkg/outbox/payloads"
	pkgredis "github.com/campuseats/settlement-backend/pkg/redis"
	"github.com/google/uuid"
)

const (
	settlementConsumer = "notify-consumer"
	orderStateScope    = "order-state"
)

type consumerRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// orderLookup resolves the order behind payment events, which carry only the
// order id on the wire.
type orderLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type dedupStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DedupKey(scope, id string) string
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
}

// Consumer turns settlement events into notification rows and pushes them to
// the user and role delivery channels.
type Consumer struct {
	repo        consumerRepository
	orders      orderLookup
	subscriber  subscriber
	idempotency *idempotency.Manager
	dedup       dedupStore
	publisher   channelPublisher
	channel     string
	dedupTTL    time.Duration
	logg        *logger.Logger
}

// ConsumerParams wires the consumer dependencies.
type ConsumerParams struct {
	Repo        consumerRepository
	Orders      orderLookup
	Subscriber  subscriber
	Idempotency *idempotency.Manager
	Dedup       dedupStore
	Publisher   channelPublisher
	Channels    config.ChannelsConfig
	Logger      *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order lookup required")
	}
	if params.Subscriber == nil {
		return nil, fmt.Errorf("event subscriber required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Dedup == nil {
		return nil, fmt.Errorf("dedup store required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("channel publisher required")
	}
	if params.Channels.EventsChannel == "" {
		return nil, fmt.Errorf("events channel required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:        params.Repo,
		orders:      params.Orders,
		subscriber:  params.Subscriber,
		idempotency: params.Idempotency,
		dedup:       params.Dedup,
		publisher:   params.Publisher,
		channel:     params.Channels.EventsChannel,
		dedupTTL:    params.Channels.DedupTTL,
		logg:        params.Logger,
	}, nil
}

// Run subscribes to the events channel and processes messages until the
// context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.subscriber.Subscribe(ctx, c.channel)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", c.channel, err)
	}
	defer sub.Close()

	c.logg.Info(c.logg.WithField(ctx, "channel", c.channel), "notification consumer started")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := c.handleMessage(ctx, []byte(msg.Payload)); err != nil {
				c.logg.Error(ctx, "event handling failed", err)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, data []byte) error {
	var frame outbox.ChannelMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		// Malformed frames are dropped; pub/sub has no redelivery.
		c.logg.Error(ctx, "failed to decode event frame", err)
		return nil
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_type": string(frame.EventType),
		"event_id":   frame.Envelope.EventID,
	})

	eventID, err := uuid.Parse(frame.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, settlementConsumer, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	if err := c.dispatch(logCtx, frame); err != nil {
		// Clearing the processed mark lets a republished copy try again.
		_ = c.idempotency.Delete(ctx, settlementConsumer, eventID)
		return err
	}
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, frame outbox.ChannelMessage) error {
	switch frame.EventType {
	case enums.EventOrderCreated:
		var payload payloads.OrderCreatedEvent
		if err := json.Unmarshal(frame.Envelope.Data, &payload); err != nil {
			c.logg.Error(ctx, "failed to parse payload", err)
			return nil
		}
		return c.handleOrderCreated(ctx, payload)
	case enums.EventOrderStateChanged:
		var payload payloads.OrderStateChangedEvent
		if err := json.Unmarshal(frame.Envelope.Data, &payload); err != nil {
			c.logg.Error(ctx, "failed to parse payload", err)
			return nil
		}
		return c.handleOrderStateChanged(ctx, payload)
	case enums.EventOrderCancelled:
		var payload payloads.OrderCancelledEvent
		if err := json.Unmarshal(frame.Envelope.Data, &payload); err != nil {
			c.logg.Error(ctx, "failed to parse payload", err)
			return nil
		}
		return c.handleOrderCancelled(ctx, payload)
	case enums.EventPaymentSettled:
		var payload payloads.PaymentSettledEvent
		if err := json.Unmarshal(frame.Envelope.Data, &payload); err != nil {
			c.logg.Error(ctx, "failed to parse payload", err)
			return nil
		}
		return c.handlePaymentSettled(ctx, payload)
	case enums.EventPaymentFailed:
		var payload payloads.PaymentFailedEvent
		if err := json.Unmarshal(frame.Envelope.Data, &payload); err != nil {
			c.logg.Error(ctx, "failed to parse payload", err)
			return nil
		}
		return c.handlePaymentFailed(ctx, payload)
	default:
		c.logg.Info(ctx, "event type not handled")
		return nil
	}
}

func (c *Consumer) handleOrderCreated(ctx context.Context, payload payloads.OrderCreatedEvent) error {
	notification := &models.Notification{
		UserID:         payload.CustomerID,
		Type:           enums.NotificationTypeOrderUpdate,
		Title:          "Order placed",
		Message:        fmt.Sprintf("Order %s was placed and is awaiting payment.", payload.OrderNumber),
		RelatedOrderID: &payload.OrderID,
	}
	return c.deliver(ctx, notification, pkgredis.VendorsChannel())
}

func (c *Consumer) handleOrderStateChanged(ctx context.Context, payload payloads.OrderStateChangedEvent) error {
	fresh, err := c.markTransition(ctx, payload.OrderID, payload.ToStatus)
	if err != nil {
		return err
	}
	if !fresh {
		c.logg.Info(c.logg.WithOrderID(ctx, payload.OrderID.String()), "transition already notified")
		return nil
	}

	var message string
	switch payload.ToStatus {
	case enums.OrderStatusPaid:
		message = fmt.Sprintf("Order %s is paid and queued for the kitchen.", payload.OrderNumber)
	case enums.OrderStatusPreparing:
		message = fmt.Sprintf("Order %s is being prepared.", payload.OrderNumber)
	case enums.OrderStatusReady:
		message = fmt.Sprintf("Order %s is ready for pickup.", payload.OrderNumber)
	case enums.OrderStatusCompleted:
		message = fmt.Sprintf("Order %s is complete. Enjoy!", payload.OrderNumber)
	default:
		message = fmt.Sprintf("Order %s is now %s.", payload.OrderNumber, payload.ToStatus)
	}

	notification := &models.Notification{
		UserID:         payload.CustomerID,
		Type:           enums.NotificationTypeOrderUpdate,
		Title:          "Order update",
		Message:        message,
		RelatedOrderID: &payload.OrderID,
	}
	return c.deliver(ctx, notification, pkgredis.VendorsChannel())
}

func (c *Consumer) handleOrderCancelled(ctx context.Context, payload payloads.OrderCancelledEvent) error {
	fresh, err := c.markTransition(ctx, payload.OrderID, enums.OrderStatusCancelled)
	if err != nil {
		return err
	}
	if !fresh {
		c.logg.Info(c.logg.WithOrderID(ctx, payload.OrderID.String()), "transition already notified")
		return nil
	}

	message := fmt.Sprintf("Order %s was cancelled.", payload.OrderNumber)
	if payload.Reason != "" {
		message = fmt.Sprintf("Order %s was cancelled: %s", payload.OrderNumber, payload.Reason)
	}
	notification := &models.Notification{
		UserID:         payload.CustomerID,
		Type:           enums.NotificationTypeOrderUpdate,
		Title:          "Order cancelled",
		Message:        message,
		RelatedOrderID: &payload.OrderID,
	}
	return c.deliver(ctx, notification, pkgredis.VendorsChannel())
}

func (c *Consumer) handlePaymentSettled(ctx context.Context, payload payloads.PaymentSettledEvent) error {
	order, err := c.orders.FindByID(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("resolving order %s: %w", payload.OrderID, err)
	}
	notification := &models.Notification{
		UserID: order.CustomerID,
		Type:   enums.NotificationTypePaymentUpdate,
		Title:  "Payment received",
		Message: fmt.Sprintf("Payment of %s for order %s settled via %s.",
			payload.Amount.StringFixed(2), order.OrderNumber, payload.Gateway),
		RelatedOrderID: &payload.OrderID,
	}
	return c.deliver(ctx, notification)
}

func (c *Consumer) handlePaymentFailed(ctx context.Context, payload payloads.PaymentFailedEvent) error {
	order, err := c.orders.FindByID(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("resolving order %s: %w", payload.OrderID, err)
	}
	notification := &models.Notification{
		UserID: order.CustomerID,
		Type:   enums.NotificationTypePaymentUpdate,
		Title:  "Payment failed",
		Message: fmt.Sprintf("%s Order %s is still awaiting payment.",
			payments.MessageFor(payload.ErrorKind), order.OrderNumber),
		RelatedOrderID: &payload.OrderID,
	}
	return c.deliver(ctx, notification, pkgredis.AdminsChannel())
}

// markTransition claims the orderId+toStatus pair. Re-published copies of the
// same transition arrive under fresh event ids, so the event-id guard alone is
// not enough.
func (c *Consumer) markTransition(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (bool, error) {
	key := c.dedup.DedupKey(orderStateScope, fmt.Sprintf("%s:%s", orderID, to))
	set, err := c.dedup.SetNX(ctx, key, "1", c.dedupTTL)
	if err != nil {
		return false, fmt.Errorf("transition dedup: %w", err)
	}
	return set, nil
}

// deliveryPayload is the fixed frame pushed to user and role channels.
type deliveryPayload struct {
	ID             uuid.UUID              `json:"id"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	RelatedOrderID *uuid.UUID             `json:"relatedOrderId,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// deliver persists the row, then pushes best-effort copies to the user channel
// and any extra role channels. Publish failures are logged, not returned; the
// row is already durable.
func (c *Consumer) deliver(ctx context.Context, notification *models.Notification, extraChannels ...string) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("persisting notification: %w", err)
	}

	raw, err := json.Marshal(deliveryPayload{
		ID:             notification.ID,
		Type:           notification.Type,
		Title:          notification.Title,
		Message:        notification.Message,
		RelatedOrderID: notification.RelatedOrderID,
		CreatedAt:      notification.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding delivery payload: %w", err)
	}

	channels := append([]string{pkgredis.UserChannel(notification.UserID.String())}, extraChannels...)
	for _, channel := range channels {
		if err := c.publisher.Publish(ctx, channel, raw); err != nil {
			c.logg.Error(c.logg.WithField(ctx, "channel", channel), "channel publish failed", err)
		}
	}
	c.logg.Info(c.logg.WithUserID(ctx, notification.UserID.String()), "notification delivered")
	return nil
}
