package floor

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

const (
	MinMergeTables = 2
	MaxMergeTables = 6
)

type MergeRequest struct {
	TableIDs  []int64
	CreatedBy int64
	Notes     *string
}

type DisbandResult struct {
	Group    MergedGroup `json:"group"`
	Released []int64     `json:"releasedTableIds"`
	Occupied []int64     `json:"occupiedTableIds"`
}

// CartDiscarder drops the cart of an identity that no longer exists.
type CartDiscarder interface {
	Discard(ctx context.Context, identity string) error
}

type Coordinator struct {
	base
	store Store
	carts CartDiscarder
}

func NewCoordinator(store Store, carts CartDiscarder, opts ...Option) *Coordinator {
	return &Coordinator{base: newBase(opts), store: store, carts: carts}
}

func (c *Coordinator) List(ctx context.Context) ([]MergedGroup, error) {
	var groups []MergedGroup
	err := c.store.Read(ctx, func(tx Tx) error {
		var err error
		groups, err = tx.ListGroups(ctx)
		return err
	})
	return groups, err
}

func (c *Coordinator) Get(ctx context.Context, groupID int64) (MergedGroup, error) {
	var group MergedGroup
	err := c.store.Read(ctx, func(tx Tx) error {
		var err error
		group, err = loadGroup(ctx, tx, groupID)
		return err
	})
	return group, err
}

// Merge groups the given tables into one serving unit. Availability is
// re-checked on locked rows inside the write, so a table claimed by another
// client in the meantime fails the whole merge and nothing is modified.
func (c *Coordinator) Merge(ctx context.Context, req MergeRequest) (MergedGroup, error) {
	ids := uniqueIDs(req.TableIDs)
	if len(ids) < MinMergeTables {
		return MergedGroup{}, validationError(ErrInsufficientTable, "At least 2 tables are required to merge", map[string]any{"count": len(ids)})
	}
	if len(ids) > MaxMergeTables {
		return MergedGroup{}, validationError(ErrTooManyTables, "At most 6 tables can be merged", map[string]any{"count": len(ids)})
	}

	var created MergedGroup
	err := c.store.Write(ctx, func(tx Tx) error {
		locked, err := tx.LockTables(ctx, ids)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(ids))
		for _, id := range ids {
			table, ok := locked[id]
			if !ok {
				return notFound(ErrTableNotFound, "Table not found", map[string]any{"tableId": id})
			}
			if table.Grouped() || table.Status != StatusAvailable {
				return tableUnavailable("Table is not available", map[string]any{
					"tableId": id,
					"name":    table.Name,
					"status":  table.Status,
				})
			}
			names = append(names, table.Name)
		}

		now := c.now()
		group, err := tx.InsertGroup(ctx, MergedGroup{
			MergedTableName:      mergedTableName(names),
			IndividualTableNames: names,
			TableIDs:             ids,
			Status:               StatusOccupied,
			CreatedBy:            req.CreatedBy,
			CreatedAt:            now,
			Notes:                trimmedPtr(req.Notes),
		})
		if err != nil {
			return err
		}

		for _, id := range ids {
			table := locked[id]
			table.Status = StatusOccupied
			table.GroupID = int64Ptr(group.ID)
			table.EstimatedTime = nil
			table.UpdatedAt = now
			if err := tx.SaveTable(ctx, table); err != nil {
				return err
			}
		}
		created = group
		return nil
	})
	if err != nil {
		return MergedGroup{}, err
	}

	c.logger.Info("tables merged",
		zap.Int64("groupId", created.ID),
		zap.Int64s("tableIds", created.TableIDs),
		zap.String("name", created.MergedTableName),
		zap.Int64("actorId", req.CreatedBy),
	)
	c.publish(ctx, Event{
		Type:          EventGroupMerged,
		TableIDs:      created.TableIDs,
		GroupID:       int64Ptr(created.ID),
		TableIdentity: created.Identity(),
		Status:        string(created.Status),
		ActorID:       req.CreatedBy,
	})
	return created, nil
}

// Disband removes the group. Members return to AVAILABLE unless an order on
// them still has lines in the kitchen, in which case they stay OCCUPIED.
func (c *Coordinator) Disband(ctx context.Context, groupID int64, actorID int64) (DisbandResult, error) {
	var result DisbandResult
	err := c.store.Write(ctx, func(tx Tx) error {
		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		locked, err := tx.LockTables(ctx, group.TableIDs)
		if err != nil {
			return err
		}
		serving, err := servingTables(ctx, tx)
		if err != nil {
			return err
		}

		result = DisbandResult{Group: group, Released: []int64{}, Occupied: []int64{}}
		now := c.now()
		for _, id := range group.TableIDs {
			table, ok := locked[id]
			if !ok {
				continue
			}
			table.GroupID = nil
			table.UpdatedAt = now
			if serving[id] {
				table.Status = StatusOccupied
				result.Occupied = append(result.Occupied, id)
			} else {
				table.Status = StatusAvailable
				result.Released = append(result.Released, id)
			}
			if err := tx.SaveTable(ctx, table); err != nil {
				return err
			}
		}
		err = tx.DeleteGroup(ctx, groupID)
		if errors.Is(err, ErrRecordNotFound) {
			return notFound(ErrGroupNotFound, "Merged table group not found", map[string]any{"groupId": groupID})
		}
		return err
	})
	if err != nil {
		return DisbandResult{}, err
	}

	if c.carts != nil {
		if err := c.carts.Discard(ctx, result.Group.Identity()); err != nil {
			c.logger.Warn("discard group cart failed", zap.Int64("groupId", groupID), zap.Error(err))
		}
	}

	c.logger.Info("group disbanded",
		zap.Int64("groupId", groupID),
		zap.Int64s("released", result.Released),
		zap.Int64s("occupied", result.Occupied),
		zap.Int64("actorId", actorID),
	)
	c.publish(ctx, Event{
		Type:          EventGroupDisbanded,
		TableIDs:      result.Group.TableIDs,
		GroupID:       int64Ptr(groupID),
		TableIdentity: result.Group.Identity(),
		ActorID:       actorID,
	})
	return result, nil
}

func loadGroup(ctx context.Context, tx Tx, groupID int64) (MergedGroup, error) {
	group, err := tx.GetGroup(ctx, groupID)
	if errors.Is(err, ErrRecordNotFound) {
		return MergedGroup{}, notFound(ErrGroupNotFound, "Merged table group not found", map[string]any{"groupId": groupID})
	}
	return group, err
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
