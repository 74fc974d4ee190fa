package floor

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type lineAction string

const (
	actionAccept   lineAction = "accept"
	actionComplete lineAction = "complete"
)

// lineTransitions lists, per action, the status it starts from and the one
// it produces. Lines never move backwards.
var lineTransitions = map[lineAction]struct {
	from LineStatus
	to   LineStatus
}{
	actionAccept:   {from: LinePending, to: LineCooking},
	actionComplete: {from: LineCooking, to: LineCompleted},
}

var lineRank = map[LineStatus]int{
	LinePending:   0,
	LineCooking:   1,
	LineCompleted: 2,
}

func nextLineStatus(current LineStatus, action lineAction) (LineStatus, error) {
	rule, ok := lineTransitions[action]
	if !ok {
		return current, invalidTransition("Unknown kitchen action", map[string]any{"action": action})
	}
	if current == rule.from {
		return rule.to, nil
	}
	if lineRank[current] >= lineRank[rule.to] {
		return current, alreadyInState("Order line is already "+string(current), map[string]any{"status": current})
	}
	return current, invalidTransition("Cannot "+string(action)+" a "+string(current)+" order line", map[string]any{"status": current})
}

type NewOrderLine struct {
	Item      ItemRef
	Name      string
	Quantity  int32
	UnitPrice float64
	Notes     *string
}

type OrderRequest struct {
	TableIdentity string
	Lines         []NewOrderLine
	CreatedBy     int64
}

type Lifecycle struct {
	base
	store Store
}

func NewLifecycle(store Store, opts ...Option) *Lifecycle {
	return &Lifecycle{base: newBase(opts), store: store}
}

// target is what a table-identity resolves to at submission time.
type target struct {
	identity string
	tables   []Table
	group    *MergedGroup
}

func (t target) tableIDs() []int64 {
	ids := make([]int64, 0, len(t.tables))
	for _, table := range t.tables {
		ids = append(ids, table.ID)
	}
	return ids
}

// resolveIdentity looks the identity up as an active group name first, then as
// a table name, then as a numeric table id.
func resolveIdentity(ctx context.Context, tx Tx, identity string) (target, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return target{}, validationError(ErrValidation, "Table identity is required", nil)
	}

	group, err := tx.FindGroupByName(ctx, identity)
	if err == nil {
		locked, err := tx.LockTables(ctx, group.TableIDs)
		if err != nil {
			return target{}, err
		}
		tables := make([]Table, 0, len(group.TableIDs))
		for _, id := range group.TableIDs {
			t, ok := locked[id]
			if !ok || t.GroupID == nil || *t.GroupID != group.ID {
				return target{}, notFound(ErrGroupNotFound, "Merged table group is no longer active", map[string]any{"groupId": group.ID, "tableId": id})
			}
			tables = append(tables, t)
		}
		return target{identity: group.Identity(), tables: tables, group: &group}, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return target{}, err
	}

	table, err := tx.FindTableByName(ctx, identity)
	if errors.Is(err, ErrRecordNotFound) {
		id, parseErr := strconv.ParseInt(identity, 10, 64)
		if parseErr != nil {
			return target{}, notFound(ErrNotFound, "Table not found", map[string]any{"identity": identity})
		}
		table, err = tx.GetTable(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			return target{}, notFound(ErrNotFound, "Table not found", map[string]any{"identity": identity})
		}
	}
	if err != nil {
		return target{}, err
	}

	locked, err := tx.LockTables(ctx, []int64{table.ID})
	if err != nil {
		return target{}, err
	}
	if t, ok := locked[table.ID]; ok {
		table = t
	}
	return target{identity: table.Name, tables: []Table{table}}, nil
}

// CreateOrder turns submitted lines into an order whose lines all start
// pending, and marks the seating unit occupied.
func (l *Lifecycle) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if len(req.Lines) == 0 {
		return Order{}, emptyCart("Order has no items", nil)
	}
	for _, line := range req.Lines {
		if !line.Item.Valid() {
			return Order{}, validationError(ErrInvalidItem, "Invalid item reference", map[string]any{"item": line.Item.String()})
		}
		if line.Quantity < 1 {
			return Order{}, validationError(ErrValidation, "Quantity must be at least 1", map[string]any{"item": line.Item.String()})
		}
	}

	var created Order
	err := l.store.Write(ctx, func(tx Tx) error {
		tgt, err := resolveIdentity(ctx, tx, req.TableIdentity)
		if err != nil {
			return err
		}

		now := l.now()
		if tgt.group != nil {
			if tgt.group.Status != StatusOccupied {
				if err := tx.SaveGroupStatus(ctx, tgt.group.ID, StatusOccupied); err != nil {
					return err
				}
			}
			for _, table := range tgt.tables {
				if table.Status == StatusOccupied {
					continue
				}
				table.Status = StatusOccupied
				table.EstimatedTime = nil
				table.UpdatedAt = now
				if err := tx.SaveTable(ctx, table); err != nil {
					return err
				}
			}
		} else {
			table := tgt.tables[0]
			if table.Grouped() {
				return tableUnavailable("Table is part of a merged group; order for the group instead", map[string]any{"tableId": table.ID, "groupId": *table.GroupID})
			}
			switch table.Status {
			case StatusMaintenance:
				return tableUnavailable("Table is under maintenance", map[string]any{"tableId": table.ID})
			case StatusAvailable, StatusReserved:
				table.Status = StatusOccupied
				table.EstimatedTime = nil
				table.UpdatedAt = now
				if err := tx.SaveTable(ctx, table); err != nil {
					return err
				}
			}
		}

		order := Order{
			TableIdentity: tgt.identity,
			TableIDs:      tgt.tableIDs(),
			CreatedBy:     req.CreatedBy,
			CreatedAt:     now,
			Lines:         make([]OrderLine, 0, len(req.Lines)),
		}
		if tgt.group != nil {
			order.GroupID = int64Ptr(tgt.group.ID)
		}
		for _, line := range req.Lines {
			order.Lines = append(order.Lines, OrderLine{
				Item:          line.Item,
				Name:          strings.TrimSpace(line.Name),
				Quantity:      line.Quantity,
				UnitPrice:     line.UnitPrice,
				Notes:         trimmedPtr(line.Notes),
				Status:        LinePending,
				TableIdentity: tgt.identity,
				CreatedAt:     now,
			})
		}
		created, err = tx.InsertOrder(ctx, order)
		return err
	})
	if err != nil {
		return Order{}, err
	}

	l.logger.Info("order submitted",
		zap.Int64("orderId", created.ID),
		zap.String("identity", created.TableIdentity),
		zap.Int("lines", len(created.Lines)),
		zap.Int64("actorId", req.CreatedBy),
	)
	l.publish(ctx, Event{
		Type:          EventOrderSubmitted,
		TableIDs:      created.TableIDs,
		GroupID:       created.GroupID,
		TableIdentity: created.TableIdentity,
		OrderID:       int64Ptr(created.ID),
		Status:        string(LinePending),
		ActorID:       req.CreatedBy,
	})
	return created, nil
}

func (l *Lifecycle) Get(ctx context.Context, orderID int64) (Order, error) {
	var order Order
	err := l.store.Read(ctx, func(tx Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, orderID)
		return err
	})
	return order, err
}

func (l *Lifecycle) List(ctx context.Context, identity string, unsettledOnly bool) ([]Order, error) {
	var orders []Order
	err := l.store.Read(ctx, func(tx Tx) error {
		var err error
		orders, err = tx.ListOrders(ctx, OrderFilter{Identity: strings.TrimSpace(identity), UnsettledOnly: unsettledOnly})
		return err
	})
	return orders, err
}

// Accept moves a pending line to cooking. A line another cook already took
// yields the line together with an ErrAlreadyInState error.
func (l *Lifecycle) Accept(ctx context.Context, lineID int64, actorID int64) (OrderLine, error) {
	return l.advance(ctx, lineID, actionAccept, actorID)
}

// Complete moves a cooking line to completed.
func (l *Lifecycle) Complete(ctx context.Context, lineID int64, actorID int64) (OrderLine, error) {
	return l.advance(ctx, lineID, actionComplete, actorID)
}

func (l *Lifecycle) advance(ctx context.Context, lineID int64, action lineAction, actorID int64) (OrderLine, error) {
	var (
		line   OrderLine
		benign error
	)
	err := l.store.Write(ctx, func(tx Tx) error {
		current, err := tx.GetLine(ctx, lineID)
		if errors.Is(err, ErrRecordNotFound) {
			return notFound(ErrNotFound, "Order line not found", map[string]any{"lineId": lineID})
		}
		if err != nil {
			return err
		}

		next, err := nextLineStatus(current.Status, action)
		if err != nil {
			if IsAlreadyInState(err) {
				line, benign = current, err
				return nil
			}
			return err
		}

		now := l.now()
		current.Status = next
		switch next {
		case LineCooking:
			current.AcceptedAt = &now
		case LineCompleted:
			current.CompletedAt = &now
		}
		if err := tx.SaveLine(ctx, current); err != nil {
			return err
		}
		line = current
		return nil
	})
	if err != nil {
		return OrderLine{}, err
	}
	if benign != nil {
		return line, benign
	}

	l.logger.Info("order line updated",
		zap.Int64("lineId", line.ID),
		zap.Int64("orderId", line.OrderID),
		zap.String("status", string(line.Status)),
		zap.Int64("actorId", actorID),
	)
	l.publish(ctx, Event{
		Type:          EventOrderLineUpdated,
		TableIdentity: line.TableIdentity,
		OrderID:       int64Ptr(line.OrderID),
		LineID:        int64Ptr(line.ID),
		Status:        string(line.Status),
		ActorID:       actorID,
	})
	return line, nil
}

// IsServing reports whether the identity owns at least one line that is not
// completed yet.
func (l *Lifecycle) IsServing(ctx context.Context, identity string) (bool, error) {
	orders, err := l.List(ctx, identity, true)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.HasOpenLines() {
			return true, nil
		}
	}
	return false, nil
}

// KitchenQueue returns every line still waiting for or on the stove, oldest first.
func (l *Lifecycle) KitchenQueue(ctx context.Context) ([]OrderLine, error) {
	var lines []OrderLine
	err := l.store.Read(ctx, func(tx Tx) error {
		var err error
		lines, err = tx.ListOpenLines(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].CreatedAt.Equal(lines[j].CreatedAt) {
			return lines[i].ID < lines[j].ID
		}
		return lines[i].CreatedAt.Before(lines[j].CreatedAt)
	})
	return lines, nil
}

// Settle records that payment for a fully completed order was taken and
// releases the seating unit once nothing else is owed on it.
func (l *Lifecycle) Settle(ctx context.Context, orderID int64, actorID int64) (Order, error) {
	var (
		settled  Order
		released []int64
		benign   error
	)
	err := l.store.Write(ctx, func(tx Tx) error {
		order, err := loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Settled() {
			settled, benign = order, alreadyInState("Order is already settled", map[string]any{"orderId": orderID})
			return nil
		}
		if order.HasOpenLines() {
			return invalidTransition("Order still has lines in the kitchen", map[string]any{"orderId": orderID, "status": order.Status()})
		}

		now := l.now()
		err = tx.SettleOrder(ctx, orderID, now)
		if errors.Is(err, ErrRecordNotFound) {
			settled, benign = order, alreadyInState("Order is already settled", map[string]any{"orderId": orderID})
			return nil
		}
		if err != nil {
			return err
		}
		order.SettledAt = &now

		// Members of a released group stay grouped but follow its status.
		var releasedGroup *int64
		if order.GroupID != nil {
			others, err := tx.ListOrders(ctx, OrderFilter{GroupID: *order.GroupID, UnsettledOnly: true})
			if err != nil {
				return err
			}
			if len(withoutOrder(others, orderID)) == 0 {
				err := tx.SaveGroupStatus(ctx, *order.GroupID, StatusAvailable)
				switch {
				case err == nil:
					releasedGroup = order.GroupID
				case !errors.Is(err, ErrRecordNotFound):
					return err
				}
			}
		}

		locked, err := tx.LockTables(ctx, order.TableIDs)
		if err != nil {
			return err
		}
		for _, id := range order.TableIDs {
			table, ok := locked[id]
			if !ok || table.Status != StatusOccupied {
				continue
			}
			if table.Grouped() {
				if releasedGroup == nil || *table.GroupID != *releasedGroup {
					continue
				}
			} else {
				others, err := tx.ListOrders(ctx, OrderFilter{TableID: id, UnsettledOnly: true})
				if err != nil {
					return err
				}
				if len(withoutOrder(others, orderID)) > 0 {
					continue
				}
			}
			table.Status = StatusAvailable
			table.UpdatedAt = now
			if err := tx.SaveTable(ctx, table); err != nil {
				return err
			}
			released = append(released, id)
		}
		settled = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if benign != nil {
		return settled, benign
	}

	l.logger.Info("order settled",
		zap.Int64("orderId", orderID),
		zap.Int64s("releasedTables", released),
		zap.Int64("actorId", actorID),
	)
	l.publish(ctx, Event{
		Type:          EventOrderSettled,
		TableIDs:      settled.TableIDs,
		GroupID:       settled.GroupID,
		TableIdentity: settled.TableIdentity,
		OrderID:       int64Ptr(orderID),
		Status:        string(LineCompleted),
		ActorID:       actorID,
	})
	return settled, nil
}

func loadOrder(ctx context.Context, tx Tx, orderID int64) (Order, error) {
	order, err := tx.GetOrder(ctx, orderID)
	if errors.Is(err, ErrRecordNotFound) {
		return Order{}, notFound(ErrNotFound, "Order not found", map[string]any{"orderId": orderID})
	}
	return order, err
}

func withoutOrder(orders []Order, orderID int64) []Order {
	out := orders[:0:0]
	for _, o := range orders {
		if o.ID != orderID {
			out = append(out, o)
		}
	}
	return out
}
