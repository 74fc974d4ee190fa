package floor

import (
	"context"
	"time"
)

type TableRepository interface {
	ListTables(ctx context.Context) ([]Table, error)
	GetTable(ctx context.Context, id int64) (Table, error)
	FindTableByName(ctx context.Context, name string) (Table, error)
	// LockTables returns the requested rows keyed by id and holds them until the
	// surrounding write completes. Unknown ids are simply absent from the map.
	LockTables(ctx context.Context, ids []int64) (map[int64]Table, error)
	InsertTable(ctx context.Context, table Table) (Table, error)
	SaveTable(ctx context.Context, table Table) error
	DeleteTable(ctx context.Context, id int64) error
}

type GroupRepository interface {
	ListGroups(ctx context.Context) ([]MergedGroup, error)
	GetGroup(ctx context.Context, id int64) (MergedGroup, error)
	FindGroupByName(ctx context.Context, name string) (MergedGroup, error)
	InsertGroup(ctx context.Context, group MergedGroup) (MergedGroup, error)
	SaveGroupStatus(ctx context.Context, id int64, status TableStatus) error
	DeleteGroup(ctx context.Context, id int64) error
}

type OrderFilter struct {
	Identity      string
	TableID       int64
	GroupID       int64
	UnsettledOnly bool
}

type OrderRepository interface {
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	GetLine(ctx context.Context, id int64) (OrderLine, error)
	SaveLine(ctx context.Context, line OrderLine) error
	SettleOrder(ctx context.Context, id int64, at time.Time) error
	ListOpenLines(ctx context.Context) ([]OrderLine, error)
}

type Tx interface {
	TableRepository
	GroupRepository
	OrderRepository
}

// Store runs reads and atomic writes against the backing database. A Write
// callback returning an error leaves no trace of its changes.
type Store interface {
	Read(ctx context.Context, fn func(Tx) error) error
	Write(ctx context.Context, fn func(Tx) error) error
}

type CartRepository interface {
	// LoadCart returns an empty cart for an identity with nothing stored.
	LoadCart(ctx context.Context, identity string) (Cart, error)
	SaveCart(ctx context.Context, cart Cart) error
	DeleteCart(ctx context.Context, identity string) error
}

// SubmissionLedger remembers which order an idempotency key produced.
type SubmissionLedger interface {
	LookupSubmission(ctx context.Context, key string) (int64, bool, error)
	RecordSubmission(ctx context.Context, key string, orderID int64) error
}
