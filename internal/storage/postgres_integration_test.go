package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"genfity-floor-services/internal/db"
	"genfity-floor-services/internal/floor"

	"go.uber.org/zap"
)

type pgFloor struct {
	registry    *floor.Registry
	coordinator *floor.Coordinator
	lifecycle   *floor.Lifecycle
}

func newPgFloor(t *testing.T) *pgFloor {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.AutoMigrate(ctx, pool, 0, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := NewPostgresStore(pool)
	opts := []floor.Option{floor.WithLogger(zap.NewNop())}
	return &pgFloor{
		registry:    floor.NewRegistry(store, opts...),
		coordinator: floor.NewCoordinator(store, nil, opts...),
		lifecycle:   floor.NewLifecycle(store, opts...),
	}
}

// mergedPair seeds two uniquely named tables and merges them.
func (f *pgFloor) mergedPair(t *testing.T) floor.MergedGroup {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	ids := make([]int64, 0, 2)
	for i := 1; i <= 2; i++ {
		table, err := f.registry.Create(ctx, floor.NewTable{Name: fmt.Sprintf("IT %d-%d", suffix, i), Capacity: 4}, 1)
		if err != nil {
			t.Fatalf("create table: %v", err)
		}
		ids = append(ids, table.ID)
	}
	group, err := f.coordinator.Merge(ctx, floor.MergeRequest{TableIDs: ids, CreatedBy: 1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	return group
}

func concurrently(n int, fn func() error) []error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = fn()
		}(i)
	}
	wg.Wait()
	return errs
}

func TestPostgresConcurrentDisband(t *testing.T) {
	f := newPgFloor(t)
	group := f.mergedPair(t)
	ctx := context.Background()

	ok := 0
	for _, err := range concurrently(6, func() error {
		_, err := f.coordinator.Disband(ctx, group.ID, 1)
		return err
	}) {
		if err == nil {
			ok++
			continue
		}
		if code := floor.CodeOf(err); code != floor.ErrGroupNotFound {
			t.Fatalf("expected GROUP_NOT_FOUND, got %s (%v)", code, err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one disband, got %d", ok)
	}
}

func TestPostgresConcurrentSettle(t *testing.T) {
	f := newPgFloor(t)
	group := f.mergedPair(t)
	ctx := context.Background()

	order, err := f.lifecycle.CreateOrder(ctx, floor.OrderRequest{
		TableIdentity: group.Identity(),
		Lines:         []floor.NewOrderLine{{Item: floor.ItemRef{Kind: floor.ItemDish, ID: 1}, Name: "Phở", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	lineID := order.Lines[0].ID
	if _, err := f.lifecycle.Accept(ctx, lineID, 2); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.lifecycle.Complete(ctx, lineID, 2); err != nil {
		t.Fatalf("complete: %v", err)
	}

	ok := 0
	for _, err := range concurrently(6, func() error {
		_, err := f.lifecycle.Settle(ctx, order.ID, 3)
		return err
	}) {
		if err == nil {
			ok++
			continue
		}
		if !floor.IsAlreadyInState(err) {
			t.Fatalf("expected ALREADY_IN_STATE, got %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one settle, got %d", ok)
	}

	current, err := f.coordinator.Get(ctx, group.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if current.Status != floor.StatusAvailable {
		t.Fatalf("expected group AVAILABLE, got %s", current.Status)
	}
	for _, id := range group.TableIDs {
		view, err := f.registry.Get(ctx, id)
		if err != nil {
			t.Fatalf("get table: %v", err)
		}
		if view.Table.Status != floor.StatusAvailable {
			t.Fatalf("table %d expected AVAILABLE with its group, got %s", id, view.Table.Status)
		}
	}
}

func TestPostgresDisbandRacingSubmit(t *testing.T) {
	f := newPgFloor(t)
	group := f.mergedPair(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var submitErr, disbandErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, submitErr = f.lifecycle.CreateOrder(ctx, floor.OrderRequest{
			TableIdentity: group.Identity(),
			Lines:         []floor.NewOrderLine{{Item: floor.ItemRef{Kind: floor.ItemDish, ID: 1}, Name: "Phở", Quantity: 1}},
		})
	}()
	go func() {
		defer wg.Done()
		_, disbandErr = f.coordinator.Disband(ctx, group.ID, 1)
	}()
	wg.Wait()

	if disbandErr != nil {
		t.Fatalf("disband: %v", disbandErr)
	}
	if submitErr != nil {
		if code := floor.CodeOf(submitErr); code != floor.ErrGroupNotFound && code != floor.ErrNotFound {
			t.Fatalf("unexpected submit error %s (%v)", code, submitErr)
		}
		return
	}
	// The order landed first, so disband kept the members serving.
	for _, id := range group.TableIDs {
		view, err := f.registry.Get(ctx, id)
		if err != nil {
			t.Fatalf("get table: %v", err)
		}
		if view.Table.Status != floor.StatusOccupied || view.Table.GroupID != nil {
			t.Fatalf("table %d expected ungrouped OCCUPIED, got %s %v", id, view.Table.Status, view.Table.GroupID)
		}
	}
}
