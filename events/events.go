// Package events announces committed lending transitions to other services
// (notifications, dashboards, the overdue reminder scheduler).
package events

import (
	"context"
	"encoding/json"
	"time"

	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	LendingCheckedOut        Type = "lending.checked_out"
	LendingReturned          Type = "lending.returned"
	LendingRenewed           Type = "lending.renewed"
	LendingPenaltyOverridden Type = "lending.penalty_overridden"
	ApprovalSubmitted        Type = "approval.submitted"
	ApprovalDecided          Type = "approval.decided"
	ApprovalCancelled        Type = "approval.cancelled"
	BlacklistAdded           Type = "blacklist.added"
	BlacklistRemoved         Type = "blacklist.removed"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OrgID      string    `json:"orgId"`
	InstanceID string    `json:"instanceId,omitempty"`
	EntityID   string    `json:"entityId"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload,omitempty"`
}

func New(t Type, scope tenant.Tenant, entityID, actorID string, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OrgID:      scope.OrgID,
		InstanceID: scope.InstanceID,
		EntityID:   entityID,
		ActorID:    actorID,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// Publisher must only be called after the transaction that produced the
// events has committed.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
	Close() error
}

type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher keys messages by entity id so all events of one lending
// land on the same partition in order.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, e := range evs {
		m, err := Message(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// Message encodes e the way it goes on the wire.
func Message(e Event) (kafka.Message, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(e.EntityID),
		Value:   b,
		Time:    e.OccurredAt,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(e.Type)}},
	}, nil
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error                            { return nil }
