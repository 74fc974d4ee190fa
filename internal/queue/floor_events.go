package queue

import (
	"context"

	"genfity-floor-services/internal/floor"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "floor.events"

	PaymentsQueue      = "floor.payments"
	PaymentsDLQ        = "floor.payments.dlq"
	PaymentsRoutingKey = "payment.#"
)

// EnsureFloorTopology declares the events exchange and the payments queue
// bound to it. Rejected payment messages land in the DLQ.
func EnsureFloorTopology(ctx context.Context, qc *Client) error {
	if qc == nil {
		return nil
	}

	if err := qc.EnsureExchange(EventsExchange); err != nil {
		return err
	}
	if _, err := qc.EnsureQueue(PaymentsDLQ); err != nil {
		return err
	}

	_, err := qc.EnsureQueueWithArgs(PaymentsQueue, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": PaymentsDLQ,
	})
	if err != nil {
		return err
	}
	// '#' also matches multi-segment keys such as payment.completed.card.
	return qc.BindQueue(PaymentsQueue, EventsExchange, PaymentsRoutingKey)
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, payload any) error
}

// EventPublisher forwards floor events to the events exchange, routed by
// event type.
type EventPublisher struct {
	client jsonPublisher
}

func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) Publish(ctx context.Context, event floor.Event) error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.PublishJSON(ctx, EventsExchange, string(event.Type), event)
}

var _ floor.Publisher = (*EventPublisher)(nil)
