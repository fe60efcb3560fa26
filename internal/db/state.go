package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"thermostat/internal/types"

	"github.com/jackc/pgx/v5"
)

// StateRepository provides data access for the key/value state table.
// Values are stored as JSON so scalars and objects round-trip unchanged.
type StateRepository struct {
	db  DBTX
	now func() time.Time
}

// NewStateRepository creates a StateRepository backed by the given
// database connection (pool or transaction).
func NewStateRepository(db DBTX) *StateRepository {
	return &StateRepository{db: db, now: time.Now}
}

// Set upserts key with the JSON encoding of value.
func (r *StateRepository) Set(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("failed to encode state %q", key), err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO state (key, value, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE
		   SET value = EXCLUDED.value,
		       updated_at = EXCLUDED.updated_at`,
		key,
		encoded,
		r.now().UTC(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("failed to set state %q", key), err)
	}
	return nil
}

// Get returns the raw JSON value for key, or nil when the key is absent.
func (r *StateRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value []byte
	err := r.db.QueryRow(ctx, `SELECT value FROM state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("failed to get state %q", key), err)
	}
	return json.RawMessage(value), nil
}

// All returns every state entry keyed by name.
func (r *StateRepository) All(ctx context.Context) (types.ControlState, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value, updated_at FROM state`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query state", err)
	}
	defer rows.Close()

	state := types.ControlState{}
	for rows.Next() {
		var (
			key   string
			value []byte
			entry types.StateEntry
		)
		if err := rows.Scan(&key, &value, &entry.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan state", err)
		}
		if value == nil {
			value = []byte("null")
		}
		entry.Value = json.RawMessage(value)
		state[key] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating state", err)
	}
	return state, nil
}
