package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/pipeline"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

const maxBodyBytes = 1 << 16

// ViewResponse is the JSON form of the current view state. Markers are
// published as a GeoJSON FeatureCollection of points.
type ViewResponse struct {
	Center     domain.Geo                 `json:"center"`
	Zoom       int                        `json:"zoom"`
	Status     string                     `json:"status"`
	YearRange  domain.YearRange           `json:"year_range"`
	Generation int                        `json:"generation"`
	Identities []domain.Identity          `json:"identities"`
	UpdatedAt  time.Time                  `json:"updated_at"`
	Markers    *geojson.FeatureCollection `json:"markers"`
}

// CycleResponse reports one reconciliation cycle and the surface commands it
// produced.
type CycleResponse struct {
	Transition reconcile.Transition `json:"transition"`
	RegionID   string               `json:"region_id,omitempty"`
	Added      int                  `json:"added"`
	Status     string               `json:"status,omitempty"`
	Commands   []reconcile.Command  `json:"commands"`
}

type recomputeRequest struct {
	StartYear *int       `json:"start_year"`
	EndYear   *int       `json:"end_year"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
}

type activateRequest struct {
	Kind      domain.IdentityKind `json:"kind"`
	Key       string              `json:"key"`
	StartYear *int                `json:"start_year,omitempty"`
	EndYear   *int                `json:"end_year,omitempty"`
	FiredAt   *time.Time          `json:"fired_at,omitempty"`
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewViewResponse(s.view.Snapshot()))
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.apply(w, r, pipeline.UIEvent{
		Type:      pipeline.EventTypeRecompute,
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
		FiredAt:   req.FiredAt,
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.apply(w, r, pipeline.UIEvent{
		Type:      pipeline.EventTypeActivate,
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
		Identity:  &domain.Identity{Kind: req.Kind, Key: req.Key},
		FiredAt:   req.FiredAt,
	})
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request, wire pipeline.UIEvent) {
	ev, err := s.events.Event(wire, s.clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var buf reconcile.CommandBuffer
	outcome, err := s.view.Apply(r.Context(), []reconcile.Event{ev}, &buf)
	if err != nil {
		status := statusForCycleError(err)
		s.logger.Warn("cycle rejected", "event", wire.Type, "status", status, "error", err)
		writeError(w, status, err)
		return
	}

	commands := buf.Commands
	if commands == nil {
		commands = []reconcile.Command{}
	}
	writeJSON(w, http.StatusOK, CycleResponse{
		Transition: outcome.Transition,
		RegionID:   outcome.RegionID,
		Added:      outcome.Added,
		Status:     outcome.Status,
		Commands:   commands,
	})
}

// statusForCycleError maps data errors to 422 and everything else to 500.
func statusForCycleError(err error) int {
	var cellErr *domain.CellError
	var dateErr *domain.DateError
	switch {
	case errors.As(err, &cellErr), errors.As(err, &dateErr), errors.Is(err, domain.ErrInvalidYearRange):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
