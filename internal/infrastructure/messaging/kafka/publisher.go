package kafka

import (
	"context"
)

// EventPublisher wraps payloads in an EventEnvelope before producing them.
// The event type is the topic name.
type EventPublisher struct {
	producer Publisher
}

func NewEventPublisher(p Publisher) *EventPublisher {
	return &EventPublisher{producer: p}
}

func (p *EventPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	env, err := NewEventEnvelope(topic, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic, key)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}
