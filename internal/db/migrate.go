package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS floor_tables (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		area TEXT NOT NULL DEFAULT '',
		seating_type TEXT NOT NULL DEFAULT '',
		capacity INT NOT NULL CHECK (capacity > 0),
		status TEXT NOT NULL DEFAULT 'AVAILABLE'
			CONSTRAINT floor_tables_status_check CHECK (status IN ('AVAILABLE', 'OCCUPIED', 'RESERVED', 'MAINTENANCE')),
		notes TEXT,
		window_view BOOLEAN NOT NULL DEFAULT FALSE,
		group_id BIGINT,
		estimated_time TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS floor_tables_name_key ON floor_tables (lower(name))`,
	`CREATE TABLE IF NOT EXISTS merged_table_groups (
		id BIGSERIAL PRIMARY KEY,
		merged_table_name TEXT NOT NULL,
		individual_table_names TEXT[] NOT NULL,
		table_ids BIGINT[] NOT NULL,
		status TEXT NOT NULL DEFAULT 'OCCUPIED'
			CONSTRAINT merged_table_groups_status_check CHECK (status IN ('AVAILABLE', 'OCCUPIED')),
		created_by BIGINT NOT NULL DEFAULT 0,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS merged_table_groups_name_idx ON merged_table_groups (lower(merged_table_name))`,
	`CREATE TABLE IF NOT EXISTS floor_orders (
		id BIGSERIAL PRIMARY KEY,
		table_identity TEXT NOT NULL,
		table_ids BIGINT[] NOT NULL,
		group_id BIGINT,
		created_by BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		settled_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS floor_orders_unsettled_idx ON floor_orders (lower(table_identity)) WHERE settled_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS floor_order_lines (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES floor_orders(id) ON DELETE CASCADE,
		item_kind TEXT NOT NULL CONSTRAINT floor_order_lines_item_kind_check CHECK (item_kind IN ('dish', 'combo')),
		item_id BIGINT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		quantity INT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		notes TEXT,
		status TEXT NOT NULL DEFAULT 'pending'
			CONSTRAINT floor_order_lines_status_check CHECK (status IN ('pending', 'cooking', 'completed')),
		table_identity TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		accepted_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS floor_order_lines_open_idx ON floor_order_lines (created_at, id) WHERE status <> 'completed'`,
	addCheck("floor_tables", "floor_tables_status_check", "status IN ('AVAILABLE', 'OCCUPIED', 'RESERVED', 'MAINTENANCE')"),
	addCheck("merged_table_groups", "merged_table_groups_status_check", "status IN ('AVAILABLE', 'OCCUPIED')"),
	addCheck("floor_order_lines", "floor_order_lines_status_check", "status IN ('pending', 'cooking', 'completed')"),
	addCheck("floor_order_lines", "floor_order_lines_item_kind_check", "item_kind IN ('dish', 'combo')"),
}

// addCheck adds a named CHECK constraint to a table created before the
// constraint existed. It is a no-op once the constraint is present.
func addCheck(table, name, expr string) string {
	return fmt.Sprintf(`DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%[2]s') THEN
		ALTER TABLE %[1]s ADD CONSTRAINT %[2]s CHECK (%[3]s);
	END IF;
END $$`, table, name, expr)
}

// AutoMigrate creates the floor schema when it does not exist yet. Each
// statement is retried a few times so a database that is still starting up
// does not fail the boot.
func AutoMigrate(ctx context.Context, pool *pgxpool.Pool, retries int, logger *zap.Logger) error {
	for i, stmt := range schema {
		var err error
		for attempt := 0; attempt <= retries; attempt++ {
			if _, err = pool.Exec(ctx, stmt); err == nil {
				break
			}
			logger.Warn("migration statement failed", zap.Int("statement", i), zap.Int("attempt", attempt+1), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
		if err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
