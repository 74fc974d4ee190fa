package floor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps the floor in process memory. Writes hold the store lock
// for their whole callback and are rolled back from a snapshot on error.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memoryData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

func (s *MemoryStore) Read(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *MemoryStore) Write(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(s.data); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type memoryData struct {
	tables     map[int64]Table
	groups     map[int64]MergedGroup
	orders     map[int64]Order
	lineOrder  map[int64]int64
	nextTable  int64
	nextGroup  int64
	nextOrder  int64
	nextLineID int64
}

func newMemoryData() *memoryData {
	return &memoryData{
		tables:    make(map[int64]Table),
		groups:    make(map[int64]MergedGroup),
		orders:    make(map[int64]Order),
		lineOrder: make(map[int64]int64),
	}
}

func (d *memoryData) clone() *memoryData {
	out := &memoryData{
		tables:     make(map[int64]Table, len(d.tables)),
		groups:     make(map[int64]MergedGroup, len(d.groups)),
		orders:     make(map[int64]Order, len(d.orders)),
		lineOrder:  make(map[int64]int64, len(d.lineOrder)),
		nextTable:  d.nextTable,
		nextGroup:  d.nextGroup,
		nextOrder:  d.nextOrder,
		nextLineID: d.nextLineID,
	}
	for id, t := range d.tables {
		out.tables[id] = t
	}
	for id, g := range d.groups {
		out.groups[id] = copyGroup(g)
	}
	for id, o := range d.orders {
		out.orders[id] = copyOrder(o)
	}
	for line, order := range d.lineOrder {
		out.lineOrder[line] = order
	}
	return out
}

func copyGroup(g MergedGroup) MergedGroup {
	g.TableIDs = append([]int64(nil), g.TableIDs...)
	g.IndividualTableNames = append([]string(nil), g.IndividualTableNames...)
	return g
}

func copyOrder(o Order) Order {
	o.TableIDs = append([]int64(nil), o.TableIDs...)
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return o
}

func (d *memoryData) ListTables(_ context.Context) ([]Table, error) {
	out := make([]Table, 0, len(d.tables))
	for _, t := range d.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memoryData) GetTable(_ context.Context, id int64) (Table, error) {
	t, ok := d.tables[id]
	if !ok {
		return Table{}, ErrRecordNotFound
	}
	return t, nil
}

func (d *memoryData) FindTableByName(_ context.Context, name string) (Table, error) {
	for _, t := range d.tables {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return Table{}, ErrRecordNotFound
}

func (d *memoryData) LockTables(_ context.Context, ids []int64) (map[int64]Table, error) {
	out := make(map[int64]Table, len(ids))
	for _, id := range ids {
		if t, ok := d.tables[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (d *memoryData) InsertTable(_ context.Context, table Table) (Table, error) {
	for _, t := range d.tables {
		if strings.EqualFold(t.Name, table.Name) {
			return Table{}, ErrDuplicate
		}
	}
	d.nextTable++
	table.ID = d.nextTable
	d.tables[table.ID] = table
	return table, nil
}

func (d *memoryData) SaveTable(_ context.Context, table Table) error {
	if _, ok := d.tables[table.ID]; !ok {
		return ErrRecordNotFound
	}
	d.tables[table.ID] = table
	return nil
}

func (d *memoryData) DeleteTable(_ context.Context, id int64) error {
	if _, ok := d.tables[id]; !ok {
		return ErrRecordNotFound
	}
	delete(d.tables, id)
	return nil
}

func (d *memoryData) ListGroups(_ context.Context) ([]MergedGroup, error) {
	out := make([]MergedGroup, 0, len(d.groups))
	for _, g := range d.groups {
		out = append(out, copyGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memoryData) GetGroup(_ context.Context, id int64) (MergedGroup, error) {
	g, ok := d.groups[id]
	if !ok {
		return MergedGroup{}, ErrRecordNotFound
	}
	return copyGroup(g), nil
}

func (d *memoryData) FindGroupByName(_ context.Context, name string) (MergedGroup, error) {
	for _, g := range d.groups {
		if strings.EqualFold(g.MergedTableName, name) {
			return copyGroup(g), nil
		}
	}
	return MergedGroup{}, ErrRecordNotFound
}

func (d *memoryData) InsertGroup(_ context.Context, group MergedGroup) (MergedGroup, error) {
	d.nextGroup++
	group.ID = d.nextGroup
	group = copyGroup(group)
	d.groups[group.ID] = group
	return copyGroup(group), nil
}

func (d *memoryData) SaveGroupStatus(_ context.Context, id int64, status TableStatus) error {
	g, ok := d.groups[id]
	if !ok {
		return ErrRecordNotFound
	}
	g.Status = status
	d.groups[id] = g
	return nil
}

func (d *memoryData) DeleteGroup(_ context.Context, id int64) error {
	if _, ok := d.groups[id]; !ok {
		return ErrRecordNotFound
	}
	delete(d.groups, id)
	return nil
}

func (d *memoryData) InsertOrder(_ context.Context, order Order) (Order, error) {
	d.nextOrder++
	order = copyOrder(order)
	order.ID = d.nextOrder
	for i := range order.Lines {
		d.nextLineID++
		order.Lines[i].ID = d.nextLineID
		order.Lines[i].OrderID = order.ID
		d.lineOrder[order.Lines[i].ID] = order.ID
	}
	d.orders[order.ID] = order
	return copyOrder(order), nil
}

func (d *memoryData) GetOrder(_ context.Context, id int64) (Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return Order{}, ErrRecordNotFound
	}
	return copyOrder(o), nil
}

func (d *memoryData) ListOrders(_ context.Context, filter OrderFilter) ([]Order, error) {
	out := make([]Order, 0)
	for _, o := range d.orders {
		if filter.Identity != "" && !strings.EqualFold(o.TableIdentity, filter.Identity) {
			continue
		}
		if filter.TableID != 0 && !o.includesTable(filter.TableID) {
			continue
		}
		if filter.GroupID != 0 && (o.GroupID == nil || *o.GroupID != filter.GroupID) {
			continue
		}
		if filter.UnsettledOnly && o.Settled() {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memoryData) GetLine(_ context.Context, id int64) (OrderLine, error) {
	orderID, ok := d.lineOrder[id]
	if !ok {
		return OrderLine{}, ErrRecordNotFound
	}
	for _, line := range d.orders[orderID].Lines {
		if line.ID == id {
			return line, nil
		}
	}
	return OrderLine{}, ErrRecordNotFound
}

func (d *memoryData) SaveLine(_ context.Context, line OrderLine) error {
	orderID, ok := d.lineOrder[line.ID]
	if !ok {
		return ErrRecordNotFound
	}
	order := d.orders[orderID]
	for i := range order.Lines {
		if order.Lines[i].ID == line.ID {
			order.Lines[i] = line
			d.orders[orderID] = order
			return nil
		}
	}
	return ErrRecordNotFound
}

func (d *memoryData) SettleOrder(_ context.Context, id int64, at time.Time) error {
	o, ok := d.orders[id]
	if !ok {
		return ErrRecordNotFound
	}
	o.SettledAt = &at
	d.orders[id] = o
	return nil
}

func (d *memoryData) ListOpenLines(_ context.Context) ([]OrderLine, error) {
	out := make([]OrderLine, 0)
	for _, o := range d.orders {
		for _, line := range o.Lines {
			if line.Status != LineCompleted {
				out = append(out, line)
			}
		}
	}
	return out, nil
}

// MemoryCarts is the in-process cart repository and submission ledger.
type MemoryCarts struct {
	mu          sync.Mutex
	carts       map[string]Cart
	submissions map[string]int64
}

func NewMemoryCarts() *MemoryCarts {
	return &MemoryCarts{carts: make(map[string]Cart), submissions: make(map[string]int64)}
}

func (m *MemoryCarts) LoadCart(_ context.Context, identity string) (Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[strings.ToLower(identity)]
	if !ok {
		return Cart{Identity: identity, Lines: []CartLine{}}, nil
	}
	cart.Lines = append([]CartLine{}, cart.Lines...)
	return cart, nil
}

func (m *MemoryCarts) SaveCart(_ context.Context, cart Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart.Lines = append([]CartLine{}, cart.Lines...)
	m.carts[strings.ToLower(cart.Identity)] = cart
	return nil
}

func (m *MemoryCarts) DeleteCart(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, strings.ToLower(identity))
	return nil
}

func (m *MemoryCarts) LookupSubmission(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.submissions[key]
	return id, ok, nil
}

func (m *MemoryCarts) RecordSubmission(_ context.Context, key string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[key] = orderID
	return nil
}

var (
	_ Store            = (*MemoryStore)(nil)
	_ CartRepository   = (*MemoryCarts)(nil)
	_ SubmissionLedger = (*MemoryCarts)(nil)
)
