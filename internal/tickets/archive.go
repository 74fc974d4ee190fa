package tickets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"genfity-floor-services/internal/floor"

	"go.uber.org/zap"
)

const keyPrefix = "kitchen-tickets"

// ObjectStore is the bucket settled tickets are archived in.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID int64) (floor.Order, error)
}

// Service renders kitchen tickets on demand and archives the final ticket of
// every settled order. Store may be nil, in which case nothing is archived.
type Service struct {
	renderer Renderer
	orders   OrderReader
	store    ObjectStore
	logger   *zap.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewService(renderer Renderer, orders OrderReader, store ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{renderer: renderer, orders: orders, store: store, logger: logger, timeout: 30 * time.Second}
}

func ArchiveKey(order floor.Order) string {
	at := order.CreatedAt
	if order.SettledAt != nil {
		at = *order.SettledAt
	}
	return fmt.Sprintf("%s/%s/%s", keyPrefix, at.UTC().Format("2006-01-02"), Filename(order))
}

// Ticket returns the archived copy of a settled order when one exists and a
// freshly rendered ticket otherwise.
func (s *Service) Ticket(ctx context.Context, orderID int64) (floor.Order, []byte, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return floor.Order{}, nil, err
	}
	if s.store != nil && order.Settled() {
		body, err := s.store.GetObject(ctx, ArchiveKey(order))
		if err == nil {
			return order, body, nil
		}
		s.logger.Debug("archived ticket unavailable; rendering", zap.Int64("orderId", orderID), zap.Error(err))
	}
	body, err := s.renderer.Render(order)
	if err != nil {
		return floor.Order{}, nil, err
	}
	return order, body, nil
}

// Publish archives the ticket of a settled order in the background. Other
// events are ignored.
func (s *Service) Publish(ctx context.Context, event floor.Event) error {
	if s.store == nil || event.Type != floor.EventOrderSettled || event.OrderID == nil {
		return nil
	}
	orderID := *event.OrderID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if _, err := s.Archive(archiveCtx, orderID); err != nil {
			s.logger.Warn("ticket archive failed", zap.Int64("orderId", orderID), zap.Error(err))
		}
	}()
	return nil
}

// Archive renders the order's ticket and uploads it, returning the key.
func (s *Service) Archive(ctx context.Context, orderID int64) (string, error) {
	if s.store == nil {
		return "", errors.New("ticket archive is not configured")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	body, err := s.renderer.Render(order)
	if err != nil {
		return "", err
	}
	key := ArchiveKey(order)
	if _, err := s.store.PutObject(ctx, key, body, "application/pdf"); err != nil {
		return "", err
	}
	s.logger.Info("ticket archived", zap.Int64("orderId", orderID), zap.String("key", key))
	return key, nil
}

// Wait blocks until background archives have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

var _ floor.Publisher = (*Service)(nil)
