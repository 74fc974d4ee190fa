package floor

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// OrderCreator is the order side of a cart submission.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	Get(ctx context.Context, orderID int64) (Order, error)
}

type NewCartItem struct {
	Item      ItemRef
	Name      string
	UnitPrice float64
	Notes     *string
}

// CartStore keeps one cart per table-identity. Every mutation of an identity
// goes through its CartSession and runs under that identity's lock.
type CartStore struct {
	base
	repo   CartRepository
	ledger SubmissionLedger
	orders OrderCreator
	locks  *keyedMutex
}

func NewCartStore(repo CartRepository, ledger SubmissionLedger, orders OrderCreator, opts ...Option) *CartStore {
	return &CartStore{
		base:   newBase(opts),
		repo:   repo,
		ledger: ledger,
		orders: orders,
		locks:  newKeyedMutex(),
	}
}

// Select scopes cart operations to one identity.
func (s *CartStore) Select(identity string) *CartSession {
	return &CartSession{store: s, identity: strings.TrimSpace(identity)}
}

// Discard drops whatever cart identity has; used when a group is disbanded.
func (s *CartStore) Discard(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil
	}
	unlock := s.locks.Lock(strings.ToLower(identity))
	defer unlock()
	return s.repo.DeleteCart(ctx, identity)
}

type CartSession struct {
	store    *CartStore
	identity string
}

func (c *CartSession) Identity() string {
	return c.identity
}

func (c *CartSession) Get(ctx context.Context) (Cart, error) {
	if err := c.check(); err != nil {
		return Cart{}, err
	}
	return c.store.repo.LoadCart(ctx, c.identity)
}

// AddItem bumps the quantity of a line already holding item, otherwise it
// appends a new line with quantity 1.
func (c *CartSession) AddItem(ctx context.Context, item NewCartItem) (Cart, error) {
	if !item.Item.Valid() {
		return Cart{}, validationError(ErrInvalidItem, "Invalid item reference", map[string]any{"item": item.Item.String()})
	}
	return c.mutate(ctx, func(cart *Cart) error {
		if i := cart.indexOf(item.Item); i >= 0 {
			cart.Lines[i].Quantity++
			return nil
		}
		cart.Lines = append(cart.Lines, CartLine{
			Item:      item.Item,
			Name:      strings.TrimSpace(item.Name),
			UnitPrice: item.UnitPrice,
			Quantity:  1,
			Notes:     trimmedPtr(item.Notes),
		})
		return nil
	})
}

// UpdateQuantity sets the quantity of an existing line, never below 1.
func (c *CartSession) UpdateQuantity(ctx context.Context, ref ItemRef, quantity int32) (Cart, error) {
	if quantity < 1 {
		quantity = 1
	}
	return c.mutate(ctx, func(cart *Cart) error {
		i := cart.indexOf(ref)
		if i < 0 {
			return notFound(ErrNotFound, "Item is not in the cart", map[string]any{"item": ref.String()})
		}
		cart.Lines[i].Quantity = quantity
		return nil
	})
}

func (c *CartSession) RemoveItem(ctx context.Context, ref ItemRef) (Cart, error) {
	return c.mutate(ctx, func(cart *Cart) error {
		if i := cart.indexOf(ref); i >= 0 {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
		}
		return nil
	})
}

func (c *CartSession) Clear(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	unlock := c.store.locks.Lock(strings.ToLower(c.identity))
	defer unlock()
	return c.store.repo.DeleteCart(ctx, c.identity)
}

// Submit turns the cart into an order and empties it. A failed order
// creation leaves the cart untouched. When idempotencyKey was already used
// the original order is returned and nothing new is created.
func (c *CartSession) Submit(ctx context.Context, idempotencyKey string, actorID int64) (Order, error) {
	if err := c.check(); err != nil {
		return Order{}, err
	}
	unlock := c.store.locks.Lock(strings.ToLower(c.identity))
	defer unlock()

	key := strings.TrimSpace(idempotencyKey)
	if key != "" && c.store.ledger != nil {
		orderID, found, err := c.store.ledger.LookupSubmission(ctx, key)
		if err != nil {
			c.store.logger.Warn("idempotency lookup failed", zap.String("identity", c.identity), zap.Error(err))
		} else if found {
			return c.store.orders.Get(ctx, orderID)
		}
	}

	cart, err := c.store.repo.LoadCart(ctx, c.identity)
	if err != nil {
		return Order{}, err
	}
	if cart.Empty() {
		return Order{}, emptyCart("Cart is empty", map[string]any{"identity": c.identity})
	}

	req := OrderRequest{TableIdentity: c.identity, CreatedBy: actorID, Lines: make([]NewOrderLine, 0, len(cart.Lines))}
	for _, line := range cart.Lines {
		req.Lines = append(req.Lines, NewOrderLine{
			Item:      line.Item,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Notes:     line.Notes,
		})
	}

	order, err := c.store.orders.CreateOrder(ctx, req)
	if err != nil {
		switch CodeOf(err) {
		case ErrNotFound, ErrTableUnavailable, ErrValidation, ErrInvalidItem:
			return Order{}, err
		}
		c.store.logger.Error("order submission failed", zap.String("identity", c.identity), zap.Error(err))
		return Order{}, submissionFailed(err)
	}

	if err := c.store.repo.DeleteCart(ctx, c.identity); err != nil {
		c.store.logger.Warn("clear submitted cart failed", zap.String("identity", c.identity), zap.Int64("orderId", order.ID), zap.Error(err))
	}
	if key != "" && c.store.ledger != nil {
		if err := c.store.ledger.RecordSubmission(ctx, key, order.ID); err != nil {
			c.store.logger.Warn("idempotency record failed", zap.String("identity", c.identity), zap.Error(err))
		}
	}
	return order, nil
}

func (c *CartSession) mutate(ctx context.Context, fn func(cart *Cart) error) (Cart, error) {
	if err := c.check(); err != nil {
		return Cart{}, err
	}
	unlock := c.store.locks.Lock(strings.ToLower(c.identity))
	defer unlock()

	cart, err := c.store.repo.LoadCart(ctx, c.identity)
	if err != nil {
		return Cart{}, err
	}
	cart.Identity = c.identity
	if err := fn(&cart); err != nil {
		return Cart{}, err
	}
	cart.UpdatedAt = c.store.now()
	if cart.Empty() {
		if err := c.store.repo.DeleteCart(ctx, c.identity); err != nil {
			return Cart{}, err
		}
		return cart, nil
	}
	if err := c.store.repo.SaveCart(ctx, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

func (c *CartSession) check() error {
	if c.identity == "" {
		return validationError(ErrValidation, "Table identity is required", nil)
	}
	return nil
}

var _ CartDiscarder = (*CartStore)(nil)
