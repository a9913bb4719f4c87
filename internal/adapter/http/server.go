// Package http serves the map page, its JSON API, and the operational
// endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/inflation-map/internal/pipeline"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

// MapView is the reconciler as seen by the HTTP surface.
type MapView interface {
	Apply(ctx context.Context, batch []reconcile.Event, surface reconcile.Surface) (reconcile.Outcome, error)
	Snapshot() reconcile.ViewState
	CheckReadiness(ctx context.Context) error
}

// EventBuilder validates a wire event and converts it into a reconciler event.
type EventBuilder interface {
	Event(ev pipeline.UIEvent, received time.Time) (reconcile.Event, error)
}

// Server exposes the map page, the view API, and health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	view       MapView
	events     EventBuilder
	page       PageConfig
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the page, /api, /healthz, /readyz,
// and /metrics routes.
func NewServer(addr string, view MapView, events EventBuilder, page PageConfig, clock clockwork.Clock, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		view:   view,
		events: events,
		page:   page,
		clock:  clock,
		logger: logger,
	}

	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("POST /api/recompute", s.handleRecompute)
	mux.HandleFunc("POST /api/activate", s.handleActivate)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(view))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// writeJSON encodes v before any header is written, so an unencodable value
// (a NaN rate, say) becomes a 500 instead of a 200 with an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode response: " + err.Error()})
		return
	}
	sharedobs.WriteJSON(w, status, json.RawMessage(data))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
