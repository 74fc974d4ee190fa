package floor

import (
	"context"
	"errors"
	"strings"
	"time"
)

type EventType string

const (
	EventTableCreated       EventType = "table.created"
	EventTableDeleted       EventType = "table.deleted"
	EventTableStatusUpdated EventType = "table.status.updated"
	EventGroupMerged        EventType = "group.merged"
	EventGroupDisbanded     EventType = "group.disbanded"
	EventOrderSubmitted     EventType = "order.submitted"
	EventOrderLineUpdated   EventType = "order.line.updated"
	EventOrderSettled       EventType = "order.settled"
)

type Event struct {
	Type          EventType `json:"type"`
	TableIDs      []int64   `json:"tableIds,omitempty"`
	GroupID       *int64    `json:"groupId,omitempty"`
	TableIdentity string    `json:"tableIdentity,omitempty"`
	OrderID       *int64    `json:"orderId,omitempty"`
	LineID        *int64    `json:"lineId,omitempty"`
	Status        string    `json:"status,omitempty"`
	ActorID       int64     `json:"actorId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Topic is the realtime channel an event belongs to.
func (e Event) Topic() string {
	if strings.HasPrefix(string(e.Type), "order.") {
		return "kitchen"
	}
	return "tables"
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Publishers fans an event out to every non-nil publisher.
type Publishers []Publisher

func (p Publishers) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, pub := range p {
		if pub == nil {
			continue
		}
		if err := pub.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

func int64Ptr(v int64) *int64 {
	return &v
}
