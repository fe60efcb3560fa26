package db

import (
	"context"
	"time"

	"thermostat/internal/types"
)

// DefaultActionsLimit is the page size when callers pass a non-positive limit.
const DefaultActionsLimit = 20

// ActionRepository provides data access for the append-only actions table.
type ActionRepository struct {
	db DBTX
}

// NewActionRepository creates an ActionRepository backed by the given
// database connection (pool or transaction).
func NewActionRepository(db DBTX) *ActionRepository {
	return &ActionRepository{db: db}
}

// Save appends a and returns its id.
func (r *ActionRepository) Save(ctx context.Context, a *types.Action) (int64, error) {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO actions (timestamp, action, reason, avg_temp, target_temp)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		ts,
		string(a.Kind),
		a.Reason,
		a.AvgTemp,
		a.TargetTemp,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to insert action", err)
	}
	return id, nil
}

// List returns the most recent actions, newest first.
func (r *ActionRepository) List(ctx context.Context, limit int) ([]types.Action, error) {
	if limit <= 0 {
		limit = DefaultActionsLimit
	}
	return r.query(ctx,
		`SELECT id, timestamp, action, reason, avg_temp, target_temp
		 FROM actions
		 ORDER BY id DESC
		 LIMIT $1`,
		limit,
	)
}

// ListSince returns every action at or after since, newest first.
func (r *ActionRepository) ListSince(ctx context.Context, since time.Time) ([]types.Action, error) {
	return r.query(ctx,
		`SELECT id, timestamp, action, reason, avg_temp, target_temp
		 FROM actions
		 WHERE timestamp >= $1
		 ORDER BY id DESC`,
		since,
	)
}

func (r *ActionRepository) query(ctx context.Context, sql string, args ...any) ([]types.Action, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query actions", err)
	}
	defer rows.Close()

	actions := []types.Action{}
	for rows.Next() {
		var (
			a      types.Action
			kind   string
			reason *string
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &kind, &reason, &a.AvgTemp, &a.TargetTemp); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan action", err)
		}
		a.Kind = types.ActionKind(kind)
		if reason != nil {
			a.Reason = *reason
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating actions", err)
	}
	return actions, nil
}
