package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"genfity-floor-services/internal/floor"
	"genfity-floor-services/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore keeps the floor in Postgres. Writes run in one transaction
// and lock the table, group and order rows they read with SELECT ... FOR UPDATE.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Read(ctx context.Context, fn func(floor.Tx) error) error {
	return fn(&pgTx{q: s.pool})
}

func (s *PostgresStore) Write(ctx context.Context, fn func(floor.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx, lock: forUpdate}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const forUpdate = ` for update`

// pgTx runs repository queries against the pool or a transaction. Inside
// Write, lock is appended to the group and order lookups so two writers
// on the same row queue behind each other.
type pgTx struct {
	q    querier
	lock string
}

const tableColumns = `id, name, area, seating_type, capacity, status, notes, window_view, group_id, estimated_time, created_at, updated_at`

func scanTable(row rowScanner) (floor.Table, error) {
	var (
		t      floor.Table
		status string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Area, &t.SeatingType, &t.Capacity, &status, &t.Notes, &t.WindowView, &t.GroupID, &t.EstimatedTime, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return floor.Table{}, notFoundOr(err)
	}
	t.Status = floor.TableStatus(status)
	return t, nil
}

func collectTables(rows pgx.Rows) ([]floor.Table, error) {
	defer rows.Close()
	out := make([]floor.Table, 0)
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *pgTx) ListTables(ctx context.Context) ([]floor.Table, error) {
	rows, err := p.q.Query(ctx, `select `+tableColumns+` from floor_tables order by id`)
	if err != nil {
		return nil, err
	}
	return collectTables(rows)
}

func (p *pgTx) GetTable(ctx context.Context, id int64) (floor.Table, error) {
	return scanTable(p.q.QueryRow(ctx, `select `+tableColumns+` from floor_tables where id = $1`, id))
}

func (p *pgTx) FindTableByName(ctx context.Context, name string) (floor.Table, error) {
	return scanTable(p.q.QueryRow(ctx, `select `+tableColumns+` from floor_tables where lower(name) = lower($1)`, name))
}

// LockTables orders by id so concurrent writers always lock in the same order.
func (p *pgTx) LockTables(ctx context.Context, ids []int64) (map[int64]floor.Table, error) {
	out := make(map[int64]floor.Table, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := p.q.Query(ctx, `select `+tableColumns+` from floor_tables where id = any($1) order by id for update`, ids)
	if err != nil {
		return nil, err
	}
	tables, err := collectTables(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		out[t.ID] = t
	}
	return out, nil
}

func (p *pgTx) InsertTable(ctx context.Context, table floor.Table) (floor.Table, error) {
	row := p.q.QueryRow(ctx, `
		insert into floor_tables (name, area, seating_type, capacity, status, notes, window_view, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+tableColumns,
		table.Name, table.Area, table.SeatingType, table.Capacity, string(table.Status), table.Notes, table.WindowView, table.CreatedAt, table.UpdatedAt,
	)
	created, err := scanTable(row)
	if isUniqueViolation(err) {
		return floor.Table{}, floor.ErrDuplicate
	}
	return created, err
}

func (p *pgTx) SaveTable(ctx context.Context, table floor.Table) error {
	tag, err := p.q.Exec(ctx, `
		update floor_tables
		set status = $2, group_id = $3, estimated_time = $4, notes = $5, updated_at = $6
		where id = $1`,
		table.ID, string(table.Status), table.GroupID, table.EstimatedTime, table.Notes, table.UpdatedAt,
	)
	return affected(tag, err)
}

func (p *pgTx) DeleteTable(ctx context.Context, id int64) error {
	tag, err := p.q.Exec(ctx, `delete from floor_tables where id = $1`, id)
	return affected(tag, err)
}

const groupColumns = `id, merged_table_name, individual_table_names, table_ids, status, created_by, created_at, notes`

func scanGroup(row rowScanner) (floor.MergedGroup, error) {
	var (
		g      floor.MergedGroup
		status string
	)
	if err := row.Scan(&g.ID, &g.MergedTableName, &g.IndividualTableNames, &g.TableIDs, &status, &g.CreatedBy, &g.CreatedAt, &g.Notes); err != nil {
		return floor.MergedGroup{}, notFoundOr(err)
	}
	g.Status = floor.TableStatus(status)
	return g, nil
}

func (p *pgTx) ListGroups(ctx context.Context) ([]floor.MergedGroup, error) {
	rows, err := p.q.Query(ctx, `select `+groupColumns+` from merged_table_groups order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]floor.MergedGroup, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (p *pgTx) GetGroup(ctx context.Context, id int64) (floor.MergedGroup, error) {
	return scanGroup(p.q.QueryRow(ctx, `select `+groupColumns+` from merged_table_groups where id = $1`+p.lock, id))
}

func (p *pgTx) FindGroupByName(ctx context.Context, name string) (floor.MergedGroup, error) {
	return scanGroup(p.q.QueryRow(ctx, `
		select `+groupColumns+` from merged_table_groups
		where lower(merged_table_name) = lower($1)
		order by id desc limit 1`+p.lock, name))
}

func (p *pgTx) InsertGroup(ctx context.Context, group floor.MergedGroup) (floor.MergedGroup, error) {
	return scanGroup(p.q.QueryRow(ctx, `
		insert into merged_table_groups (merged_table_name, individual_table_names, table_ids, status, created_by, created_at, notes)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+groupColumns,
		group.MergedTableName, group.IndividualTableNames, group.TableIDs, string(group.Status), group.CreatedBy, group.CreatedAt, group.Notes,
	))
}

func (p *pgTx) SaveGroupStatus(ctx context.Context, id int64, status floor.TableStatus) error {
	tag, err := p.q.Exec(ctx, `update merged_table_groups set status = $2 where id = $1`, id, string(status))
	return affected(tag, err)
}

func (p *pgTx) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := p.q.Exec(ctx, `delete from merged_table_groups where id = $1`, id)
	return affected(tag, err)
}

const lineColumns = `id, order_id, item_kind, item_id, name, quantity, unit_price, notes, status, table_identity, created_at, accepted_at, completed_at`

func scanLine(row rowScanner) (floor.OrderLine, error) {
	var (
		l      floor.OrderLine
		kind   string
		status string
		price  pgtype.Numeric
	)
	err := row.Scan(&l.ID, &l.OrderID, &kind, &l.Item.ID, &l.Name, &l.Quantity, &price, &l.Notes, &status, &l.TableIdentity, &l.CreatedAt, &l.AcceptedAt, &l.CompletedAt)
	if err != nil {
		return floor.OrderLine{}, notFoundOr(err)
	}
	l.Item.Kind = floor.ItemKind(kind)
	l.Status = floor.LineStatus(status)
	l.UnitPrice = utils.NumericToFloat64(price)
	return l, nil
}

func collectLines(rows pgx.Rows) ([]floor.OrderLine, error) {
	defer rows.Close()
	out := make([]floor.OrderLine, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *pgTx) InsertOrder(ctx context.Context, order floor.Order) (floor.Order, error) {
	err := p.q.QueryRow(ctx, `
		insert into floor_orders (table_identity, table_ids, group_id, created_by, created_at)
		values ($1, $2, $3, $4, $5)
		returning id`,
		order.TableIdentity, order.TableIDs, order.GroupID, order.CreatedBy, order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		return floor.Order{}, err
	}

	lines := make([]floor.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		line.OrderID = order.ID
		row := p.q.QueryRow(ctx, `
			insert into floor_order_lines (order_id, item_kind, item_id, name, quantity, unit_price, notes, status, table_identity, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			returning `+lineColumns,
			line.OrderID, string(line.Item.Kind), line.Item.ID, line.Name, line.Quantity, line.UnitPrice, line.Notes, string(line.Status), line.TableIdentity, line.CreatedAt,
		)
		saved, err := scanLine(row)
		if err != nil {
			return floor.Order{}, err
		}
		lines = append(lines, saved)
	}
	order.Lines = lines
	return order, nil
}

const orderColumns = `id, table_identity, table_ids, group_id, created_by, created_at, settled_at`

func scanOrder(row rowScanner) (floor.Order, error) {
	var o floor.Order
	if err := row.Scan(&o.ID, &o.TableIdentity, &o.TableIDs, &o.GroupID, &o.CreatedBy, &o.CreatedAt, &o.SettledAt); err != nil {
		return floor.Order{}, notFoundOr(err)
	}
	return o, nil
}

func (p *pgTx) GetOrder(ctx context.Context, id int64) (floor.Order, error) {
	order, err := scanOrder(p.q.QueryRow(ctx, `select `+orderColumns+` from floor_orders where id = $1`+p.lock, id))
	if err != nil {
		return floor.Order{}, err
	}
	orders := []floor.Order{order}
	if err := p.attachLines(ctx, orders); err != nil {
		return floor.Order{}, err
	}
	return orders[0], nil
}

func (p *pgTx) ListOrders(ctx context.Context, filter floor.OrderFilter) ([]floor.Order, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 3)
	if filter.Identity != "" {
		args = append(args, filter.Identity)
		where = append(where, fmt.Sprintf("lower(table_identity) = lower($%d)", len(args)))
	}
	if filter.TableID != 0 {
		args = append(args, filter.TableID)
		where = append(where, fmt.Sprintf("$%d = any(table_ids)", len(args)))
	}
	if filter.GroupID != 0 {
		args = append(args, filter.GroupID)
		where = append(where, fmt.Sprintf("group_id = $%d", len(args)))
	}
	if filter.UnsettledOnly {
		where = append(where, "settled_at is null")
	}

	query := `select ` + orderColumns + ` from floor_orders`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by id`

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]floor.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := p.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (p *pgTx) attachLines(ctx context.Context, orders []floor.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
		orders[i].Lines = make([]floor.OrderLine, 0)
	}

	rows, err := p.q.Query(ctx, `select `+lineColumns+` from floor_order_lines where order_id = any($1) order by id`, ids)
	if err != nil {
		return err
	}
	lines, err := collectLines(rows)
	if err != nil {
		return err
	}
	for _, line := range lines {
		i := index[line.OrderID]
		orders[i].Lines = append(orders[i].Lines, line)
	}
	return nil
}

func (p *pgTx) GetLine(ctx context.Context, id int64) (floor.OrderLine, error) {
	return scanLine(p.q.QueryRow(ctx, `select `+lineColumns+` from floor_order_lines where id = $1 for update`, id))
}

func (p *pgTx) SaveLine(ctx context.Context, line floor.OrderLine) error {
	tag, err := p.q.Exec(ctx, `
		update floor_order_lines
		set status = $2, accepted_at = $3, completed_at = $4
		where id = $1`,
		line.ID, string(line.Status), line.AcceptedAt, line.CompletedAt,
	)
	return affected(tag, err)
}

func (p *pgTx) SettleOrder(ctx context.Context, id int64, at time.Time) error {
	tag, err := p.q.Exec(ctx, `update floor_orders set settled_at = $2 where id = $1 and settled_at is null`, id, at)
	return affected(tag, err)
}

func (p *pgTx) ListOpenLines(ctx context.Context) ([]floor.OrderLine, error) {
	rows, err := p.q.Query(ctx, `
		select `+lineColumns+` from floor_order_lines
		where status <> 'completed'
		order by created_at, id`)
	if err != nil {
		return nil, err
	}
	return collectLines(rows)
}

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return floor.ErrRecordNotFound
	}
	return err
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return floor.ErrRecordNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ floor.Store = (*PostgresStore)(nil)
