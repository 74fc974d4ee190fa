package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"genfity-floor-services/internal/floor"

	"github.com/go-redis/redis/v8"
)

const (
	cartKeyPrefix        = "floor:cart:"
	idempotencyKeyPrefix = "floor:idempotent-key:"
)

// RedisCarts keeps carts as JSON documents in Redis so every API replica
// sees the same cart for a table-identity. It also records which order an
// Idempotency-Key produced.
type RedisCarts struct {
	client         *redis.Client
	cartTTL        time.Duration
	idempotencyTTL time.Duration
}

func NewRedisCarts(redisURL string, cartTTL, idempotencyTTL time.Duration) (*RedisCarts, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCarts{
		client:         redis.NewClient(opts),
		cartTTL:        cartTTL,
		idempotencyTTL: idempotencyTTL,
	}, nil
}

func (r *RedisCarts) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCarts) Close() error {
	return r.client.Close()
}

func cartKey(identity string) string {
	return cartKeyPrefix + strings.ToLower(identity)
}

func (r *RedisCarts) LoadCart(ctx context.Context, identity string) (floor.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return floor.Cart{Identity: identity, Lines: []floor.CartLine{}}, nil
	}
	if err != nil {
		return floor.Cart{}, err
	}

	var cart floor.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return floor.Cart{}, fmt.Errorf("decode cart %q: %w", identity, err)
	}
	if cart.Lines == nil {
		cart.Lines = []floor.CartLine{}
	}
	cart.Identity = identity
	return cart, nil
}

func (r *RedisCarts) SaveCart(ctx context.Context, cart floor.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, cartKey(cart.Identity), data, r.cartTTL).Err()
}

func (r *RedisCarts) DeleteCart(ctx context.Context, identity string) error {
	return r.client.Del(ctx, cartKey(identity)).Err()
}

func (r *RedisCarts) LookupSubmission(ctx context.Context, key string) (int64, bool, error) {
	value, err := r.client.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	orderID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode idempotency key %q: %w", key, err)
	}
	return orderID, true, nil
}

func (r *RedisCarts) RecordSubmission(ctx context.Context, key string, orderID int64) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, strconv.FormatInt(orderID, 10), r.idempotencyTTL).Err()
}

var (
	_ floor.CartRepository   = (*RedisCarts)(nil)
	_ floor.SubmissionLedger = (*RedisCarts)(nil)
)
