// Package handlers contains the HTTP handlers of the presentation API.
//
// This file exposes the controller's state and history to dashboards:
//   - Current control state (GET /v1/state)
//   - Reading and action history (GET /v1/readings, GET /v1/actions)
//   - External API health (GET /v1/apis)
//   - Runtime settings (PUT /v1/settings/target, PUT /v1/settings/fan)
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"thermostat/internal/core"
	"thermostat/internal/types"
)

const (
	defaultReadingsLimit = 50
	defaultActionsLimit  = 20
	maxHistoryLimit      = 1000
)

// HistoryStore is the read side of the time-series store.
type HistoryStore interface {
	GetCurrentState(ctx context.Context) (types.ControlState, error)
	GetReadings(ctx context.Context, limit int) ([]types.Reading, error)
	GetReadingsSince(ctx context.Context, since time.Time) ([]types.Reading, error)
	GetActions(ctx context.Context, limit int) ([]types.Action, error)
	GetActionsSince(ctx context.Context, since time.Time) ([]types.Action, error)
}

// Settings applies runtime control settings. A new target takes effect on
// the next cycle.
type Settings interface {
	SetTargetTemp(ctx context.Context, tempF float64) error
	SetFanAlwaysOn(ctx context.Context, enabled bool) error
}

// APIStatus reports per-API health.
type APIStatus interface {
	Status() map[string]types.APIHealth
}

// ControlHandler serves control state, history and settings.
type ControlHandler struct {
	store     HistoryStore
	settings  Settings
	apis      APIStatus
	validator *core.Validator
	logger    *slog.Logger
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(
	store HistoryStore,
	settings Settings,
	apis APIStatus,
	v *core.Validator,
	logger *slog.Logger,
) *ControlHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlHandler{
		store:     store,
		settings:  settings,
		apis:      apis,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the control endpoints onto r.
func (h *ControlHandler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.HandleGetState)
	r.Get("/readings", h.HandleListReadings)
	r.Get("/actions", h.HandleListActions)
	r.Get("/apis", h.HandleGetAPIs)
	r.Put("/settings/target", h.HandleSetTarget)
	r.Put("/settings/fan", h.HandleSetFan)
}

// TargetRequest is the body of PUT /v1/settings/target.
type TargetRequest struct {
	TargetTemp *float64 `json:"target_temp" validate:"required,target_temp"`
}

// FanRequest is the body of PUT /v1/settings/fan.
type FanRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// HandleGetState handles GET /v1/state.
func (h *ControlHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.GetCurrentState(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load control state", "error", err)
		core.Error(w, r, err)
		return
	}
	if state == nil {
		state = types.ControlState{}
	}
	core.Data(w, r, state)
}

// HandleListReadings handles GET /v1/readings?limit=N or ?since=RFC3339.
func (h *ControlHandler) HandleListReadings(w http.ResponseWriter, r *http.Request) {
	limit, since, err := parseHistoryQuery(r, defaultReadingsLimit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var readings []types.Reading
	if since != nil {
		readings, err = h.store.GetReadingsSince(r.Context(), *since)
	} else {
		readings, err = h.store.GetReadings(r.Context(), limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list readings", "error", err)
		core.Error(w, r, err)
		return
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	core.Data(w, r, readings)
}

// HandleListActions handles GET /v1/actions?limit=N or ?since=RFC3339.
func (h *ControlHandler) HandleListActions(w http.ResponseWriter, r *http.Request) {
	limit, since, err := parseHistoryQuery(r, defaultActionsLimit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var actions []types.Action
	if since != nil {
		actions, err = h.store.GetActionsSince(r.Context(), *since)
	} else {
		actions, err = h.store.GetActions(r.Context(), limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list actions", "error", err)
		core.Error(w, r, err)
		return
	}
	if actions == nil {
		actions = []types.Action{}
	}
	core.Data(w, r, actions)
}

// HandleGetAPIs handles GET /v1/apis.
func (h *ControlHandler) HandleGetAPIs(w http.ResponseWriter, r *http.Request) {
	core.Data(w, r, h.apis.Status())
}

// HandleSetTarget handles PUT /v1/settings/target.
func (h *ControlHandler) HandleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.settings.SetTargetTemp(r.Context(), *req.TargetTemp); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to set target temperature", "error", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "target temperature updated", "target_temp", *req.TargetTemp)
	core.Data(w, r, map[string]float64{"target_temp": *req.TargetTemp})
}

// HandleSetFan handles PUT /v1/settings/fan.
func (h *ControlHandler) HandleSetFan(w http.ResponseWriter, r *http.Request) {
	var req FanRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.settings.SetFanAlwaysOn(r.Context(), *req.Enabled); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to set fan mode", "error", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "fan mode updated", "fan_always_on", *req.Enabled)
	core.Data(w, r, map[string]bool{"fan_always_on": *req.Enabled})
}

// parseHistoryQuery reads ?limit and ?since. since takes precedence.
func parseHistoryQuery(r *http.Request, defaultLimit int) (int, *time.Time, error) {
	q := r.URL.Query()

	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, nil, types.NewAppError(
				types.ErrCodeValidationInvalidQuery,
				"since must be a valid RFC3339 timestamp",
				err,
			)
		}
		t = t.UTC()
		return 0, &t, nil
	}

	limit := defaultLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxHistoryLimit {
			return 0, nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidQuery,
				"limit must be an integer between 1 and "+strconv.Itoa(maxHistoryLimit),
				err,
				map[string]any{"limit": s},
			)
		}
		limit = n
	}
	return limit, nil, nil
}
