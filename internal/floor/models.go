package floor

import (
	"fmt"
	"strings"
	"time"
)

type TableStatus string

const (
	StatusAvailable   TableStatus = "AVAILABLE"
	StatusOccupied    TableStatus = "OCCUPIED"
	StatusReserved    TableStatus = "RESERVED"
	StatusMaintenance TableStatus = "MAINTENANCE"
)

func (s TableStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusReserved, StatusMaintenance:
		return true
	}
	return false
}

// ParseTableStatus accepts any casing; the second result is false for values
// outside the closed set.
func ParseTableStatus(value string) (TableStatus, bool) {
	status := TableStatus(strings.ToUpper(strings.TrimSpace(value)))
	return status, status.Valid()
}

type Table struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	Area          string      `json:"area"`
	SeatingType   string      `json:"seatingType"`
	Capacity      int32       `json:"capacity"`
	Status        TableStatus `json:"status"`
	Notes         *string     `json:"notes"`
	WindowView    bool        `json:"windowView"`
	GroupID       *int64      `json:"groupId"`
	EstimatedTime *time.Time  `json:"estimatedTime"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (t Table) Grouped() bool {
	return t.GroupID != nil
}

type MergedGroup struct {
	ID                   int64       `json:"groupId"`
	MergedTableName      string      `json:"mergedTableName"`
	IndividualTableNames []string    `json:"individualTableNames"`
	TableIDs             []int64     `json:"tableIds"`
	Status               TableStatus `json:"status"`
	CreatedBy            int64       `json:"createdBy"`
	CreatedAt            time.Time   `json:"createdAt"`
	Notes                *string     `json:"notes,omitempty"`
}

// Identity is the cart and order key for the whole group.
func (g MergedGroup) Identity() string {
	return g.MergedTableName
}

const mergedNameSeparator = " + "

func mergedTableName(names []string) string {
	return strings.Join(names, mergedNameSeparator)
}

type ItemKind string

const (
	ItemDish  ItemKind = "dish"
	ItemCombo ItemKind = "combo"
)

type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   int64    `json:"id"`
}

func (r ItemRef) Valid() bool {
	return (r.Kind == ItemDish || r.Kind == ItemCombo) && r.ID > 0
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

func ParseItemKind(value string) (ItemKind, bool) {
	kind := ItemKind(strings.ToLower(strings.TrimSpace(value)))
	return kind, kind == ItemDish || kind == ItemCombo
}

type CartLine struct {
	Item      ItemRef `json:"item"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int32   `json:"quantity"`
	Notes     *string `json:"notes,omitempty"`
}

type Cart struct {
	Identity  string     `json:"identity"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (c Cart) indexOf(ref ItemRef) int {
	for i, line := range c.Lines {
		if line.Item == ref {
			return i
		}
	}
	return -1
}

func (c Cart) Empty() bool {
	return len(c.Lines) == 0
}

type LineStatus string

const (
	LinePending   LineStatus = "pending"
	LineCooking   LineStatus = "cooking"
	LineCompleted LineStatus = "completed"
)

type OrderLine struct {
	ID            int64      `json:"lineId"`
	OrderID       int64      `json:"orderId"`
	Item          ItemRef    `json:"item"`
	Name          string     `json:"name"`
	Quantity      int32      `json:"quantity"`
	UnitPrice     float64    `json:"unitPrice"`
	Notes         *string    `json:"notes"`
	Status        LineStatus `json:"status"`
	TableIdentity string     `json:"tableIdentity"`
	CreatedAt     time.Time  `json:"createdAt"`
	AcceptedAt    *time.Time `json:"acceptedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
}

type Order struct {
	ID            int64       `json:"orderId"`
	TableIdentity string      `json:"tableIdentity"`
	TableIDs      []int64     `json:"tableIds"`
	GroupID       *int64      `json:"groupId"`
	CreatedBy     int64       `json:"createdBy"`
	CreatedAt     time.Time   `json:"createdAt"`
	SettledAt     *time.Time  `json:"settledAt"`
	Lines         []OrderLine `json:"lines"`
}

// Status aggregates line statuses: completed once every line is, cooking when
// any line is on the stove, pending otherwise.
func (o Order) Status() LineStatus {
	if len(o.Lines) == 0 {
		return LinePending
	}
	completed := 0
	for _, line := range o.Lines {
		switch line.Status {
		case LineCooking:
			return LineCooking
		case LineCompleted:
			completed++
		}
	}
	if completed == len(o.Lines) {
		return LineCompleted
	}
	return LinePending
}

func (o Order) HasOpenLines() bool {
	for _, line := range o.Lines {
		if line.Status != LineCompleted {
			return true
		}
	}
	return false
}

func (o Order) Settled() bool {
	return o.SettledAt != nil
}

func (o Order) Total() float64 {
	var total float64
	for _, line := range o.Lines {
		total += float64(line.Quantity) * line.UnitPrice
	}
	return total
}

func (o Order) includesTable(tableID int64) bool {
	for _, id := range o.TableIDs {
		if id == tableID {
			return true
		}
	}
	return false
}
