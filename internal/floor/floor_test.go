package floor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testFloor struct {
	store       *MemoryStore
	carts       *MemoryCarts
	registry    *Registry
	coordinator *Coordinator
	cartStore   *CartStore
	lifecycle   *Lifecycle
	events      *recordingPublisher
}

func newTestFloor(t *testing.T, tables int) *testFloor {
	t.Helper()
	store := NewMemoryStore()
	carts := NewMemoryCarts()
	events := &recordingPublisher{}
	opts := []Option{WithPublisher(events)}

	f := &testFloor{store: store, carts: carts, events: events}
	f.registry = NewRegistry(store, opts...)
	f.lifecycle = NewLifecycle(store, opts...)
	f.cartStore = NewCartStore(carts, carts, f.lifecycle, opts...)
	f.coordinator = NewCoordinator(store, f.cartStore, opts...)

	for i := 1; i <= tables; i++ {
		if _, err := f.registry.Create(context.Background(), NewTable{Name: fmt.Sprintf("Bàn %d", i), Capacity: 4}, 1); err != nil {
			t.Fatalf("seed table %d: %v", i, err)
		}
	}
	return f
}

func (f *testFloor) table(t *testing.T, id int64) Table {
	t.Helper()
	view, err := f.registry.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get table %d: %v", id, err)
	}
	return view.Table
}

func expectCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func dish(id int64) ItemRef {
	return ItemRef{Kind: ItemDish, ID: id}
}

func TestSetStatus(t *testing.T) {
	f := newTestFloor(t, 3)
	ctx := context.Background()

	cases := []struct {
		name   string
		id     int64
		status TableStatus
		code   ErrorCode
	}{
		{name: "occupy", id: 1, status: StatusOccupied},
		{name: "maintain", id: 2, status: StatusMaintenance},
		{name: "lowercase is not in set", id: 3, status: TableStatus("available"), code: ErrInvalidTransition},
		{name: "unknown status", id: 3, status: TableStatus("CLEANING"), code: ErrInvalidTransition},
		{name: "unknown table", id: 99, status: StatusAvailable, code: ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			table, err := f.registry.SetStatus(ctx, tc.id, tc.status, nil, 7)
			if tc.code != "" {
				expectCode(t, err, tc.code)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if table.Status != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, table.Status)
			}
		})
	}

	tables, err := f.registry.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, table := range tables {
		if !table.Status.Valid() {
			t.Fatalf("table %d has out-of-set status %q", table.ID, table.Status)
		}
	}
}

func TestSetStatusReservedKeepsEstimatedTime(t *testing.T) {
	f := newTestFloor(t, 1)
	ctx := context.Background()
	eta := time.Date(2026, 10, 18, 19, 30, 0, 0, time.UTC)

	table, err := f.registry.SetStatus(ctx, 1, StatusReserved, &eta, 1)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if table.EstimatedTime == nil || !table.EstimatedTime.Equal(eta) {
		t.Fatalf("expected estimated time %v, got %v", eta, table.EstimatedTime)
	}

	table, err = f.registry.SetStatus(ctx, 1, StatusOccupied, nil, 1)
	if err != nil {
		t.Fatalf("occupy: %v", err)
	}
	if table.EstimatedTime != nil {
		t.Fatalf("expected estimated time cleared, got %v", table.EstimatedTime)
	}
}

func TestSetStatusRejectsGroupedTable(t *testing.T) {
	f := newTestFloor(t, 2)
	ctx := context.Background()
	if _, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2}, CreatedBy: 1}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	_, err := f.registry.SetStatus(ctx, 1, StatusAvailable, nil, 1)
	expectCode(t, err, ErrInvalidTransition)
}

func TestCreateTableValidation(t *testing.T) {
	f := newTestFloor(t, 1)
	ctx := context.Background()

	cases := []struct {
		name  string
		input NewTable
		code  ErrorCode
	}{
		{name: "missing name", input: NewTable{Capacity: 2}, code: ErrValidation},
		{name: "zero capacity", input: NewTable{Name: "Bàn 9"}, code: ErrValidation},
		{name: "separator in name", input: NewTable{Name: "Bàn 1 + Bàn 2", Capacity: 2}, code: ErrValidation},
		{name: "duplicate", input: NewTable{Name: "bàn 1", Capacity: 2}, code: ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.registry.Create(ctx, tc.input, 1)
			expectCode(t, err, tc.code)
		})
	}
}

func TestDeleteTable(t *testing.T) {
	f := newTestFloor(t, 3)
	ctx := context.Background()

	if _, err := f.registry.SetStatus(ctx, 1, StatusOccupied, nil, 1); err != nil {
		t.Fatalf("occupy: %v", err)
	}
	expectCode(t, f.registry.Delete(ctx, 1, 1), ErrInvalidTransition)

	if err := f.registry.Delete(ctx, 3, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := f.registry.Get(ctx, 3)
	expectCode(t, err, ErrNotFound)
}

func TestMergeCardinality(t *testing.T) {
	f := newTestFloor(t, 8)
	ctx := context.Background()

	cases := []struct {
		name string
		ids  []int64
		code ErrorCode
	}{
		{name: "empty", ids: nil, code: ErrInsufficientTable},
		{name: "single", ids: []int64{1}, code: ErrInsufficientTable},
		{name: "duplicates collapse", ids: []int64{1, 1}, code: ErrInsufficientTable},
		{name: "seven", ids: []int64{1, 2, 3, 4, 5, 6, 7}, code: ErrTooManyTables},
		{name: "unknown table", ids: []int64{1, 42}, code: ErrTableNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: tc.ids, CreatedBy: 1})
			expectCode(t, err, tc.code)
		})
	}

	group, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2, 3, 4, 5, 6}, CreatedBy: 1})
	if err != nil {
		t.Fatalf("merge six: %v", err)
	}
	if len(group.TableIDs) != MaxMergeTables {
		t.Fatalf("expected 6 members, got %d", len(group.TableIDs))
	}
}

func TestMergeOccupiedTableLeavesOthersUntouched(t *testing.T) {
	f := newTestFloor(t, 3)
	ctx := context.Background()

	if _, err := f.registry.SetStatus(ctx, 2, StatusOccupied, nil, 1); err != nil {
		t.Fatalf("occupy: %v", err)
	}
	_, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2, 3}, CreatedBy: 1})
	expectCode(t, err, ErrTableUnavailable)

	for _, id := range []int64{1, 3} {
		table := f.table(t, id)
		if table.Status != StatusAvailable || table.Grouped() {
			t.Fatalf("table %d modified: status=%s group=%v", id, table.Status, table.GroupID)
		}
	}
	groups, _ := f.coordinator.List(ctx)
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestMergeNamesAndBlocksMembers(t *testing.T) {
	f := newTestFloor(t, 8)
	ctx := context.Background()

	group, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{5, 6, 7}, CreatedBy: 3})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if group.MergedTableName != "Bàn 5 + Bàn 6 + Bàn 7" {
		t.Fatalf("unexpected group name %q", group.MergedTableName)
	}
	if group.CreatedBy != 3 {
		t.Fatalf("expected createdBy 3, got %d", group.CreatedBy)
	}
	for _, id := range group.TableIDs {
		table := f.table(t, id)
		if table.GroupID == nil || *table.GroupID != group.ID {
			t.Fatalf("table %d not linked to group", id)
		}
		if table.Status != StatusOccupied {
			t.Fatalf("table %d expected OCCUPIED, got %s", id, table.Status)
		}
	}

	_, err = f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{6, 8}, CreatedBy: 3})
	expectCode(t, err, ErrTableUnavailable)
}

func TestMergeConcurrentClaims(t *testing.T) {
	f := newTestFloor(t, 3)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for _, ids := range [][]int64{{1, 2}, {2, 3}} {
		wg.Add(1)
		go func(ids []int64) {
			defer wg.Done()
			_, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: ids, CreatedBy: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case CodeOf(err) == ErrTableUnavailable:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(ids)
	}
	wg.Wait()

	if success != 1 || rejected != 1 {
		t.Fatalf("expected one merge and one rejection, got %d/%d", success, rejected)
	}
}

func TestDisbandReleasesTables(t *testing.T) {
	f := newTestFloor(t, 2)
	ctx := context.Background()

	group, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2}, CreatedBy: 1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := f.cartStore.Select(group.Identity()).AddItem(ctx, NewCartItem{Item: dish(1), Name: "Phở", UnitPrice: 45000}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	result, err := f.coordinator.Disband(ctx, group.ID, 1)
	if err != nil {
		t.Fatalf("disband: %v", err)
	}
	if len(result.Released) != 2 || len(result.Occupied) != 0 {
		t.Fatalf("expected both released, got %+v", result)
	}
	for _, id := range []int64{1, 2} {
		table := f.table(t, id)
		if table.Status != StatusAvailable || table.Grouped() {
			t.Fatalf("table %d not released: %s %v", id, table.Status, table.GroupID)
		}
	}

	cart, err := f.cartStore.Select(group.Identity()).Get(ctx)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !cart.Empty() {
		t.Fatalf("expected group cart discarded")
	}

	_, err = f.coordinator.Disband(ctx, group.ID, 1)
	expectCode(t, err, ErrGroupNotFound)
	_, err = f.coordinator.Disband(ctx, 404, 1)
	expectCode(t, err, ErrGroupNotFound)

	if _, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2}, CreatedBy: 1}); err != nil {
		t.Fatalf("re-merge after disband: %v", err)
	}
}

func TestDisbandKeepsServingTablesOccupied(t *testing.T) {
	f := newTestFloor(t, 2)
	ctx := context.Background()

	group, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2}, CreatedBy: 1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	order, err := f.lifecycle.CreateOrder(ctx, OrderRequest{
		TableIdentity: group.Identity(),
		Lines:         []NewOrderLine{{Item: dish(1), Name: "Phở", Quantity: 1, UnitPrice: 45000}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	result, err := f.coordinator.Disband(ctx, group.ID, 1)
	if err != nil {
		t.Fatalf("disband: %v", err)
	}
	if len(result.Occupied) != 2 {
		t.Fatalf("expected both tables kept occupied, got %+v", result)
	}
	for _, id := range []int64{1, 2} {
		table := f.table(t, id)
		if table.Status != StatusOccupied || table.Grouped() {
			t.Fatalf("table %d expected ungrouped OCCUPIED, got %s %v", id, table.Status, table.GroupID)
		}
	}

	line := order.Lines[0]
	if _, err := f.lifecycle.Accept(ctx, line.ID, 2); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.lifecycle.Complete(ctx, line.ID, 2); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.lifecycle.Settle(ctx, order.ID, 3); err != nil {
		t.Fatalf("settle: %v", err)
	}
	for _, id := range []int64{1, 2} {
		if status := f.table(t, id).Status; status != StatusAvailable {
			t.Fatalf("table %d expected AVAILABLE after settle, got %s", id, status)
		}
	}
}

func TestCartAddItemIncrements(t *testing.T) {
	f := newTestFloor(t, 1)
	ctx := context.Background()
	session := f.cartStore.Select("Bàn 1")

	for i := 0; i < 2; i++ {
		if _, err := session.AddItem(ctx, NewCartItem{Item: dish(10), Name: "Phở", UnitPrice: 45000}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	cart, err := session.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 2 {
		t.Fatalf("expected one line of quantity 2, got %+v", cart.Lines)
	}

	_, err = session.AddItem(ctx, NewCartItem{Item: ItemRef{Kind: "drink", ID: 1}})
	expectCode(t, err, ErrInvalidItem)
}

func TestCartQuantityAndRemoval(t *testing.T) {
	f := newTestFloor(t, 1)
	ctx := context.Background()
	session := f.cartStore.Select("Bàn 1")

	combo := ItemRef{Kind: ItemCombo, ID: 3}
	if _, err := session.AddItem(ctx, NewCartItem{Item: combo, Name: "Combo gia đình", UnitPrice: 250000}); err != nil {
		t.Fatalf("add: %v", err)
	}

	cart, err := session.UpdateQuantity(ctx, combo, 0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cart.Lines[0].Quantity != 1 {
		t.Fatalf("expected quantity clamped to 1, got %d", cart.Lines[0].Quantity)
	}
	cart, err = session.UpdateQuantity(ctx, combo, 5)
	if err != nil || cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %+v (%v)", cart.Lines, err)
	}
	_, err = session.UpdateQuantity(ctx, dish(99), 2)
	expectCode(t, err, ErrNotFound)

	if _, err := session.RemoveItem(ctx, dish(99)); err != nil {
		t.Fatalf("remove absent item should be a no-op: %v", err)
	}
	cart, err = session.RemoveItem(ctx, combo)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !cart.Empty() {
		t.Fatalf("expected empty cart after removal")
	}
}

func TestCartIdentitiesAreIndependent(t *testing.T) {
	f := newTestFloor(t, 2)
	ctx := context.Background()

	if _, err := f.cartStore.Select("Bàn 1").AddItem(ctx, NewCartItem{Item: dish(1), Name: "Phở"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.cartStore.Select("Bàn 2").AddItem(ctx, NewCartItem{Item: dish(2), Name: "Bún chả"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.cartStore.Select("Bàn 2").Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	one, _ := f.cartStore.Select("Bàn 1").Get(ctx)
	two, _ := f.cartStore.Select("Bàn 2").Get(ctx)
	if len(one.Lines) != 1 || one.Lines[0].Item != dish(1) {
		t.Fatalf("cart for Bàn 1 leaked or lost lines: %+v", one.Lines)
	}
	if !two.Empty() {
		t.Fatalf("cart for Bàn 2 not cleared: %+v", two.Lines)
	}
	if same, _ := f.cartStore.Select("BÀN 1").Get(ctx); len(same.Lines) != 1 {
		t.Fatalf("identity lookup should ignore case, got %+v", same.Lines)
	}
}

func TestSubmitEmptyCart(t *testing.T) {
	f := newTestFloor(t, 1)
	ctx := context.Background()

	_, err := f.cartStore.Select("Bàn 1").Submit(ctx, "", 1)
	expectCode(t, err, ErrEmptyCart)

	orders, err := f.lifecycle.List(ctx, "", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
}

func TestSubmitCreatesPendingOrder(t *testing.T) {
	f := newTestFloor(t, 3)
	ctx := context.Background()
	session := f.cartStore.Select("Bàn 3")

	for i := 0; i < 2; i++ {
		if _, err := session.AddItem(ctx, NewCartItem{Item: dish(1), Name: "Phở", UnitPrice: 45000}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	order, err := session.Submit(ctx, "", 9)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(order.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(order.Lines))
	}
	line := order.Lines[0]
	if line.Status != LinePending || line.Quantity != 2 || line.UnitPrice != 45000 {
		t.Fatalf("unexpected line %+v", line)
	}
	if order.Total() != 90000 {
		t.Fatalf("expected total 90000, got %v", order.Total())
	}

	cart, _ := session.Get(ctx)
	if !cart.Empty() {
		t.Fatalf("expected cart emptied after submit")
	}
	if status := f.table(t, 3).Status; status != StatusOccupied {
		t.Fatalf("expected table occupied after submit, got %s", status)
	}
	serving, err := f.lifecycle.IsServing(ctx, "Bàn 3")
	if err != nil || !serving {
		t.Fatalf("expected Bàn 3 serving, got %v (%v)", serving, err)
	}
}

func TestSubmitIsIdempotentPerKey(t *testing.T) {
	f := newTestFloor(t, 1)
	ctx := context.Background()
	session := f.cartStore.Select("Bàn 1")

	if _, err := session.AddItem(ctx, NewCartItem{Item: dish(1), Name: "Phở", UnitPrice: 45000}); err != nil {
		t.Fatalf("add: %v", err)
	}
	first, err := session.Submit(ctx, "retry-1", 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := session.Submit(ctx, "retry-1", 1)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same order, got %d and %d", first.ID, second.ID)
	}
}

type failingOrders struct{}

func (failingOrders) CreateOrder(context.Context, OrderRequest) (Order, error) {
	return Order{}, errors.New("connection reset")
}

func (failingOrders) Get(context.Context, int64) (Order, error) {
	return Order{}, ErrRecordNotFound
}

func TestSubmitFailureKeepsCart(t *testing.T) {
	carts := NewMemoryCarts()
	store := NewCartStore(carts, carts, failingOrders{})
	ctx := context.Background()
	session := store.Select("Bàn 1")

	if _, err := session.AddItem(ctx, NewCartItem{Item: dish(1), Name: "Phở"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := session.Submit(ctx, "", 1)
	expectCode(t, err, ErrSubmissionFailed)

	cart, _ := session.Get(ctx)
	if len(cart.Lines) != 1 {
		t.Fatalf("expected cart intact, got %+v", cart.Lines)
	}
}

func TestSubmitToGroupMemberOrMaintenance(t *testing.T) {
	f := newTestFloor(t, 3)
	ctx := context.Background()

	if _, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2}, CreatedBy: 1}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := f.registry.SetStatus(ctx, 3, StatusMaintenance, nil, 1); err != nil {
		t.Fatalf("maintain: %v", err)
	}

	for _, identity := range []string{"Bàn 1", "Bàn 3"} {
		session := f.cartStore.Select(identity)
		if _, err := session.AddItem(ctx, NewCartItem{Item: dish(1), Name: "Phở"}); err != nil {
			t.Fatalf("add: %v", err)
		}
		_, err := session.Submit(ctx, "", 1)
		expectCode(t, err, ErrTableUnavailable)
		cart, _ := session.Get(ctx)
		if cart.Empty() {
			t.Fatalf("cart for %s should be kept", identity)
		}
	}

	session := f.cartStore.Select("Bàn 404")
	if _, err := session.AddItem(ctx, NewCartItem{Item: dish(1), Name: "Phở"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := session.Submit(ctx, "", 1)
	expectCode(t, err, ErrNotFound)
}

func TestLineTransitions(t *testing.T) {
	cases := []struct {
		name    string
		current LineStatus
		action  lineAction
		next    LineStatus
		code    ErrorCode
	}{
		{name: "accept pending", current: LinePending, action: actionAccept, next: LineCooking},
		{name: "complete cooking", current: LineCooking, action: actionComplete, next: LineCompleted},
		{name: "complete pending", current: LinePending, action: actionComplete, code: ErrInvalidTransition},
		{name: "accept cooking", current: LineCooking, action: actionAccept, code: ErrAlreadyInState},
		{name: "accept completed", current: LineCompleted, action: actionAccept, code: ErrAlreadyInState},
		{name: "complete completed", current: LineCompleted, action: actionComplete, code: ErrAlreadyInState},
		{name: "unknown action", current: LinePending, action: lineAction("reject"), code: ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := nextLineStatus(tc.current, tc.action)
			if tc.code != "" {
				expectCode(t, err, tc.code)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if next != tc.next {
				t.Fatalf("expected %s, got %s", tc.next, next)
			}
		})
	}
}

func TestKitchenFlow(t *testing.T) {
	f := newTestFloor(t, 1)
	ctx := context.Background()

	order, err := f.lifecycle.CreateOrder(ctx, OrderRequest{
		TableIdentity: "1",
		Lines: []NewOrderLine{
			{Item: dish(1), Name: "Phở", Quantity: 2, UnitPrice: 45000},
			{Item: ItemRef{Kind: ItemCombo, ID: 2}, Name: "Combo", Quantity: 1, UnitPrice: 120000},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.TableIdentity != "Bàn 1" {
		t.Fatalf("expected numeric id resolved to table name, got %q", order.TableIdentity)
	}

	first, second := order.Lines[0].ID, order.Lines[1].ID
	_, err = f.lifecycle.Complete(ctx, first, 2)
	expectCode(t, err, ErrInvalidTransition)

	line, err := f.lifecycle.Accept(ctx, first, 2)
	if err != nil || line.Status != LineCooking || line.AcceptedAt == nil {
		t.Fatalf("accept: %+v (%v)", line, err)
	}
	line, err = f.lifecycle.Accept(ctx, first, 3)
	expectCode(t, err, ErrAlreadyInState)
	if line.Status != LineCooking {
		t.Fatalf("benign accept should return current line, got %+v", line)
	}

	if _, err := f.lifecycle.Complete(ctx, first, 2); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = f.lifecycle.Complete(ctx, first, 2)
	expectCode(t, err, ErrAlreadyInState)

	queue, err := f.lifecycle.KitchenQueue(ctx)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != second {
		t.Fatalf("expected only second line queued, got %+v", queue)
	}

	_, err = f.lifecycle.Settle(ctx, order.ID, 4)
	expectCode(t, err, ErrInvalidTransition)

	if _, err := f.lifecycle.Accept(ctx, second, 2); err != nil {
		t.Fatalf("accept second: %v", err)
	}
	if _, err := f.lifecycle.Complete(ctx, second, 2); err != nil {
		t.Fatalf("complete second: %v", err)
	}
	serving, _ := f.lifecycle.IsServing(ctx, "Bàn 1")
	if serving {
		t.Fatalf("expected table no longer serving")
	}

	settled, err := f.lifecycle.Settle(ctx, order.ID, 4)
	if err != nil || settled.SettledAt == nil {
		t.Fatalf("settle: %+v (%v)", settled, err)
	}
	if status := f.table(t, 1).Status; status != StatusAvailable {
		t.Fatalf("expected table released, got %s", status)
	}
	_, err = f.lifecycle.Settle(ctx, order.ID, 4)
	expectCode(t, err, ErrAlreadyInState)

	_, err = f.lifecycle.Accept(ctx, 999, 2)
	expectCode(t, err, ErrNotFound)
}

func TestSettleKeepsTableWithOtherOpenOrders(t *testing.T) {
	f := newTestFloor(t, 1)
	ctx := context.Background()

	req := OrderRequest{TableIdentity: "Bàn 1", Lines: []NewOrderLine{{Item: dish(1), Name: "Phở", Quantity: 1}}}
	first, err := f.lifecycle.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("first order: %v", err)
	}
	if _, err := f.lifecycle.CreateOrder(ctx, req); err != nil {
		t.Fatalf("second order: %v", err)
	}

	lineID := first.Lines[0].ID
	if _, err := f.lifecycle.Accept(ctx, lineID, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.lifecycle.Complete(ctx, lineID, 1); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.lifecycle.Settle(ctx, first.ID, 1); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if status := f.table(t, 1).Status; status != StatusOccupied {
		t.Fatalf("expected table to stay occupied, got %s", status)
	}
}

func TestSettleReleasesGroupWithMembers(t *testing.T) {
	f := newTestFloor(t, 2)
	ctx := context.Background()

	group, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2}, CreatedBy: 1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	req := OrderRequest{TableIdentity: "Bàn 1 + Bàn 2", Lines: []NewOrderLine{{Item: dish(1), Name: "Phở", Quantity: 1}}}
	order, err := f.lifecycle.CreateOrder(ctx, req)
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
	if _, err := f.lifecycle.Settle(ctx, order.ID, 3); err != nil {
		t.Fatalf("settle: %v", err)
	}

	assertGroup := func(want TableStatus) {
		t.Helper()
		current, err := f.coordinator.Get(ctx, group.ID)
		if err != nil {
			t.Fatalf("get group: %v", err)
		}
		if current.Status != want {
			t.Fatalf("expected group %s, got %s", want, current.Status)
		}
		for _, id := range group.TableIDs {
			table := f.table(t, id)
			if table.Status != want {
				t.Fatalf("table %d expected %s like its group, got %s", id, want, table.Status)
			}
			if table.GroupID == nil || *table.GroupID != group.ID {
				t.Fatalf("table %d should stay in group %d, got %v", id, group.ID, table.GroupID)
			}
		}
	}
	assertGroup(StatusAvailable)

	if _, err := f.lifecycle.CreateOrder(ctx, req); err != nil {
		t.Fatalf("second order: %v", err)
	}
	assertGroup(StatusOccupied)
}

func TestSubmitToStaleGroupName(t *testing.T) {
	f := newTestFloor(t, 2)
	ctx := context.Background()

	// A group row whose members were already released by another writer.
	err := f.store.Write(ctx, func(tx Tx) error {
		_, err := tx.InsertGroup(ctx, MergedGroup{
			MergedTableName:      "Bàn 1 + Bàn 2",
			IndividualTableNames: []string{"Bàn 1", "Bàn 2"},
			TableIDs:             []int64{1, 2},
			Status:               StatusOccupied,
			CreatedAt:            time.Now(),
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert group: %v", err)
	}

	_, err = f.lifecycle.CreateOrder(ctx, OrderRequest{
		TableIdentity: "Bàn 1 + Bàn 2",
		Lines:         []NewOrderLine{{Item: dish(1), Name: "Phở", Quantity: 1}},
	})
	expectCode(t, err, ErrGroupNotFound)
	for _, id := range []int64{1, 2} {
		if status := f.table(t, id).Status; status != StatusAvailable {
			t.Fatalf("table %d should be untouched, got %s", id, status)
		}
	}
}

func TestConcurrentSettleAndDisband(t *testing.T) {
	f := newTestFloor(t, 2)
	ctx := context.Background()

	group, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2}, CreatedBy: 1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	order, err := f.lifecycle.CreateOrder(ctx, OrderRequest{
		TableIdentity: group.Identity(),
		Lines:         []NewOrderLine{{Item: dish(1), Name: "Phở", Quantity: 1}},
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

	const workers = 8
	run := func(fn func() error) []error {
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = fn()
			}(i)
		}
		wg.Wait()
		return errs
	}

	settled := 0
	for _, err := range run(func() error {
		_, err := f.lifecycle.Settle(ctx, order.ID, 3)
		return err
	}) {
		switch {
		case err == nil:
			settled++
		case !IsAlreadyInState(err):
			t.Fatalf("expected ALREADY_IN_STATE, got %v", err)
		}
	}
	if settled != 1 {
		t.Fatalf("expected exactly one settle, got %d", settled)
	}

	disbanded := 0
	for _, err := range run(func() error {
		_, err := f.coordinator.Disband(ctx, group.ID, 1)
		return err
	}) {
		if err == nil {
			disbanded++
			continue
		}
		expectCode(t, err, ErrGroupNotFound)
	}
	if disbanded != 1 {
		t.Fatalf("expected exactly one disband, got %d", disbanded)
	}
}

func TestEventsPublished(t *testing.T) {
	f := newTestFloor(t, 2)
	ctx := context.Background()

	group, err := f.coordinator.Merge(ctx, MergeRequest{TableIDs: []int64{1, 2}, CreatedBy: 1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := f.coordinator.Disband(ctx, group.ID, 1); err != nil {
		t.Fatalf("disband: %v", err)
	}
	if _, err := f.registry.SetStatus(ctx, 1, StatusReserved, nil, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := f.registry.SetStatus(ctx, 1, StatusReserved, nil, 1); err != nil {
		t.Fatalf("reserve again: %v", err)
	}

	got := f.events.types()
	want := []EventType{EventTableCreated, EventTableCreated, EventGroupMerged, EventGroupDisbanded, EventTableStatusUpdated}
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestOrderStatusAggregate(t *testing.T) {
	cases := []struct {
		name  string
		lines []LineStatus
		want  LineStatus
	}{
		{name: "all pending", lines: []LineStatus{LinePending, LinePending}, want: LinePending},
		{name: "any cooking", lines: []LineStatus{LineCompleted, LineCooking}, want: LineCooking},
		{name: "partially completed", lines: []LineStatus{LineCompleted, LinePending}, want: LinePending},
		{name: "all completed", lines: []LineStatus{LineCompleted, LineCompleted}, want: LineCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var order Order
			for _, s := range tc.lines {
				order.Lines = append(order.Lines, OrderLine{Status: s})
			}
			if got := order.Status(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
