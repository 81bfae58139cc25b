package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/campuseats/settlement-backend/pkg/enums"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID       `json:"userId"`
	Role   enums.ActorRole `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ChannelMessage is the frame published to the redis events channel. Redis
// pub/sub carries no message attributes, so the event type rides in the frame.
type ChannelMessage struct {
	EventType     enums.OutboxEventType     `json:"eventType"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType"`
	AggregateID   uuid.UUID                 `json:"aggregateId"`
	Envelope      PayloadEnvelope           `json:"envelope"`
}
