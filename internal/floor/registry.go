package floor

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TableView is a table as the floor plan shows it: its stored status plus
// whether any of its orders still has lines in the kitchen.
type TableView struct {
	Table
	Serving bool `json:"serving"`
}

type NewTable struct {
	Name        string
	Area        string
	SeatingType string
	Capacity    int32
	Notes       *string
	WindowView  bool
}

type Registry struct {
	base
	store Store
}

func NewRegistry(store Store, opts ...Option) *Registry {
	return &Registry{base: newBase(opts), store: store}
}

func (r *Registry) List(ctx context.Context) ([]TableView, error) {
	var views []TableView
	err := r.store.Read(ctx, func(tx Tx) error {
		tables, err := tx.ListTables(ctx)
		if err != nil {
			return err
		}
		serving, err := servingTables(ctx, tx)
		if err != nil {
			return err
		}
		views = make([]TableView, 0, len(tables))
		for _, t := range tables {
			views = append(views, TableView{Table: t, Serving: serving[t.ID]})
		}
		return nil
	})
	return views, err
}

func (r *Registry) Get(ctx context.Context, id int64) (TableView, error) {
	var view TableView
	err := r.store.Read(ctx, func(tx Tx) error {
		table, err := loadTable(ctx, tx, id)
		if err != nil {
			return err
		}
		serving, err := servingTables(ctx, tx)
		if err != nil {
			return err
		}
		view = TableView{Table: table, Serving: serving[id]}
		return nil
	})
	return view, err
}

// SetStatus moves an ungrouped table to status. Group members change only
// through the coordinator.
func (r *Registry) SetStatus(ctx context.Context, id int64, status TableStatus, estimatedTime *time.Time, actorID int64) (Table, error) {
	if !status.Valid() {
		return Table{}, invalidTransition("Unknown table status", map[string]any{"status": status})
	}

	var updated Table
	changed := false
	err := r.store.Write(ctx, func(tx Tx) error {
		locked, err := tx.LockTables(ctx, []int64{id})
		if err != nil {
			return err
		}
		table, ok := locked[id]
		if !ok {
			return notFound(ErrNotFound, "Table not found", map[string]any{"tableId": id})
		}
		if table.Grouped() {
			return invalidTransition("Table is part of a merged group", map[string]any{"tableId": id, "groupId": *table.GroupID})
		}

		if status == StatusReserved {
			if estimatedTime != nil {
				t := estimatedTime.UTC()
				table.EstimatedTime = &t
			}
		} else {
			table.EstimatedTime = nil
		}
		changed = table.Status != status
		table.Status = status
		table.UpdatedAt = r.now()
		if err := tx.SaveTable(ctx, table); err != nil {
			return err
		}
		updated = table
		return nil
	})
	if err != nil {
		return Table{}, err
	}

	if changed {
		r.logger.Info("table status updated", zap.Int64("tableId", id), zap.String("status", string(status)), zap.Int64("actorId", actorID))
		r.publish(ctx, Event{Type: EventTableStatusUpdated, TableIDs: []int64{id}, Status: string(status), ActorID: actorID})
	}
	return updated, nil
}

func (r *Registry) Create(ctx context.Context, input NewTable, actorID int64) (Table, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Table{}, validationError(ErrValidation, "Table name is required", nil)
	}
	if strings.Contains(name, mergedNameSeparator) {
		return Table{}, validationError(ErrValidation, "Table name cannot contain \"+\" separators", nil)
	}
	if input.Capacity < 1 {
		return Table{}, validationError(ErrValidation, "Capacity must be at least 1", nil)
	}

	now := r.now()
	table := Table{
		Name:        name,
		Area:        strings.TrimSpace(input.Area),
		SeatingType: strings.TrimSpace(input.SeatingType),
		Capacity:    input.Capacity,
		Status:      StatusAvailable,
		Notes:       input.Notes,
		WindowView:  input.WindowView,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var created Table
	err := r.store.Write(ctx, func(tx Tx) error {
		var err error
		created, err = tx.InsertTable(ctx, table)
		if errors.Is(err, ErrDuplicate) {
			return conflict("Table name already exists", map[string]any{"name": name})
		}
		return err
	})
	if err != nil {
		return Table{}, err
	}

	r.logger.Info("table created", zap.Int64("tableId", created.ID), zap.String("name", created.Name), zap.Int64("actorId", actorID))
	r.publish(ctx, Event{Type: EventTableCreated, TableIDs: []int64{created.ID}, Status: string(created.Status), ActorID: actorID})
	return created, nil
}

func (r *Registry) Delete(ctx context.Context, id int64, actorID int64) error {
	err := r.store.Write(ctx, func(tx Tx) error {
		locked, err := tx.LockTables(ctx, []int64{id})
		if err != nil {
			return err
		}
		table, ok := locked[id]
		if !ok {
			return notFound(ErrNotFound, "Table not found", map[string]any{"tableId": id})
		}
		if table.Grouped() {
			return invalidTransition("Table is part of a merged group", map[string]any{"tableId": id})
		}
		if table.Status == StatusOccupied {
			return invalidTransition("Occupied tables cannot be deleted", map[string]any{"tableId": id})
		}
		return tx.DeleteTable(ctx, id)
	})
	if err != nil {
		return err
	}

	r.logger.Info("table deleted", zap.Int64("tableId", id), zap.Int64("actorId", actorID))
	r.publish(ctx, Event{Type: EventTableDeleted, TableIDs: []int64{id}, ActorID: actorID})
	return nil
}

func loadTable(ctx context.Context, tx Tx, id int64) (Table, error) {
	table, err := tx.GetTable(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return Table{}, notFound(ErrNotFound, "Table not found", map[string]any{"tableId": id})
	}
	return table, err
}

// servingTables marks every table that owns at least one non-completed line.
func servingTables(ctx context.Context, tx Tx) (map[int64]bool, error) {
	orders, err := tx.ListOrders(ctx, OrderFilter{UnsettledOnly: true})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool)
	for _, o := range orders {
		if !o.HasOpenLines() {
			continue
		}
		for _, id := range o.TableIDs {
			out[id] = true
		}
	}
	return out, nil
}
