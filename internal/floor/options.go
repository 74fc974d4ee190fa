package floor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Option func(*base)

func WithLogger(logger *zap.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithPublisher(events Publisher) Option {
	return func(b *base) {
		if events != nil {
			b.events = events
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

type base struct {
	logger *zap.Logger
	events Publisher
	now    func() time.Time
}

func newBase(opts []Option) base {
	b := base{
		logger: zap.NewNop(),
		events: nopPublisher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) publish(ctx context.Context, event Event) {
	event.OccurredAt = b.now().UTC()
	if err := b.events.Publish(ctx, event); err != nil {
		b.logger.Warn("floor event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
