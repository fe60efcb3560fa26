package db

import (
	"context"
	"encoding/json"
	"time"

	"thermostat/internal/types"
)

// Store bundles the three repositories behind the interface the control
// engine and the API handlers consume.
type Store struct {
	Readings *ReadingRepository
	Actions  *ActionRepository
	State    *StateRepository
}

// NewStore creates a Store whose repositories share db.
func NewStore(db DBTX) *Store {
	return &Store{
		Readings: NewReadingRepository(db),
		Actions:  NewActionRepository(db),
		State:    NewStateRepository(db),
	}
}

func (s *Store) SaveReading(ctx context.Context, r *types.Reading) error {
	_, err := s.Readings.Save(ctx, r)
	return err
}

func (s *Store) SaveAction(ctx context.Context, a *types.Action) error {
	_, err := s.Actions.Save(ctx, a)
	return err
}

func (s *Store) SetState(ctx context.Context, key string, value any) error {
	return s.State.Set(ctx, key, value)
}

func (s *Store) GetStateValue(ctx context.Context, key string) (json.RawMessage, error) {
	return s.State.Get(ctx, key)
}

func (s *Store) GetCurrentState(ctx context.Context) (types.ControlState, error) {
	return s.State.All(ctx)
}

func (s *Store) GetReadings(ctx context.Context, limit int) ([]types.Reading, error) {
	return s.Readings.List(ctx, limit)
}

func (s *Store) GetReadingsSince(ctx context.Context, since time.Time) ([]types.Reading, error) {
	return s.Readings.ListSince(ctx, since)
}

func (s *Store) GetActions(ctx context.Context, limit int) ([]types.Action, error) {
	return s.Actions.List(ctx, limit)
}

func (s *Store) GetActionsSince(ctx context.Context, since time.Time) ([]types.Action, error) {
	return s.Actions.ListSince(ctx, since)
}
