// Package reconcile owns the map's view state and turns batches of UI events
// into the next marker set, viewport and status message.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/observability"
)

// Transition names the path a cycle took.
type Transition string

const (
	TransitionRecompute      Transition = "recompute"
	TransitionDrilldown      Transition = "drilldown"
	TransitionDrilldownEmpty Transition = "drilldown_empty"
	TransitionNoOp           Transition = "noop"
)

// Status messages shown on the surface.
const (
	StatusUpdated = "Map updated with new data!"
)

func statusAdded(n int, regionID string) string {
	return fmt.Sprintf("Added %d markers for region %s.", n, regionID)
}

func statusNoData(regionID string) string {
	return fmt.Sprintf("No data for region %s.", regionID)
}

// Dataset is the read-only data the reconciler renders from.
type Dataset interface {
	Regions() *domain.RegionTable
	Properties() *domain.PropertyTable
	RegionLocation(regionID string) (domain.Geo, error)
}

// Options holds the fixed viewport and sizing parameters.
type Options struct {
	Center           domain.Geo
	BaseZoom         int
	DetailZoom       int
	MaxDetailMarkers int
	InitialRange     domain.YearRange
}

// ViewState is a complete, consistent rendering state. Markers holds the
// region markers followed by the detail markers in drilldown order.
type ViewState struct {
	Markers           []domain.Marker   `json:"markers"`
	Center            domain.Geo        `json:"center"`
	Zoom              int               `json:"zoom"`
	CurrentIdentities []domain.Identity `json:"current_identities"`
	YearRange         domain.YearRange  `json:"year_range"`
	Status            string            `json:"status"`
	Generation        int               `json:"generation"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Outcome summarises one cycle.
type Outcome struct {
	Transition Transition
	RegionID   string
	Added      int
	Status     string
}

// detailBatch is the set of detail markers one drilldown added.
type detailBatch struct {
	regionID string
	markers  []domain.Marker
}

// Reconciler serialises cycles and commits each one's result atomically.
type Reconciler struct {
	dataset    Dataset
	aggregator Aggregator
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options

	mu          sync.Mutex
	state       ViewState
	regions     []domain.Marker
	details     []detailBatch
	initialized bool
}

// New creates a Reconciler. Call Init before Apply.
func New(ds Dataset, agg Aggregator, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Reconciler {
	if opts.MaxDetailMarkers <= 0 {
		opts.MaxDetailMarkers = 1
	}
	return &Reconciler{
		dataset:    ds,
		aggregator: agg,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// Init renders the region markers over the initial range with undecorated
// identities and the default viewport. The surface may be nil.
func (r *Reconciler) Init(ctx context.Context, surface Surface) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rng := r.opts.InitialRange
	records, err := r.aggregator.Aggregate(r.dataset.Regions(), rng.Start, rng.End)
	if err != nil {
		return fmt.Errorf("initial render: %w", err)
	}

	regions := domain.RegionMarkers(records, 0)
	r.regions = regions
	r.details = nil
	r.state = ViewState{
		Markers:           cloneMarkers(regions),
		Center:            r.opts.Center,
		Zoom:              r.opts.BaseZoom,
		CurrentIdentities: identities(regions),
		YearRange:         rng,
		UpdatedAt:         r.clock.Now(),
	}
	r.initialized = true
	r.metrics.MarkersRendered.Set(float64(len(r.state.Markers)))
	r.logger.Info("initial render complete",
		"regions", len(regions),
		"start_year", rng.Start,
		"end_year", rng.End,
	)

	if surface == nil {
		return nil
	}
	return r.notify(ctx, surface, TransitionRecompute)
}

// CheckReadiness returns nil once the initial render has completed.
func (r *Reconciler) CheckReadiness(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return errors.New("initial render has not completed")
	}
	return nil
}

// Snapshot returns a deep copy of the current view state.
func (r *Reconciler) Snapshot() ViewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Apply runs one reconciliation cycle over a batch of events. On error the
// view state is left untouched. Surface calls happen after the new state is
// committed; a surface error is returned alongside the committed outcome.
func (r *Reconciler) Apply(ctx context.Context, batch []Event, surface Surface) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.clock.Now()
	outcome, err := r.cycle(Resolve(batch))
	elapsed := r.clock.Since(start)

	if err != nil {
		r.metrics.Cycles.WithLabelValues("error").Inc()
		r.logger.Error("reconciliation cycle failed", "error", err, "events", len(batch))
		return outcome, err
	}

	label := string(outcome.Transition)
	r.metrics.Cycles.WithLabelValues(label).Inc()
	r.metrics.CycleDuration.WithLabelValues(label).Observe(elapsed.Seconds())

	if outcome.Transition == TransitionNoOp {
		r.logger.Debug("no resolvable trigger", "events", len(batch))
		return outcome, nil
	}

	r.logger.Info("reconciliation cycle complete",
		"transition", label,
		"region_id", outcome.RegionID,
		"added", outcome.Added,
		"markers", len(r.state.Markers),
		"duration_ms", elapsed.Milliseconds(),
	)

	if surface == nil {
		return outcome, nil
	}
	if err := r.notify(ctx, surface, outcome.Transition); err != nil {
		return outcome, fmt.Errorf("notify surface: %w", err)
	}
	return outcome, nil
}

func (r *Reconciler) cycle(ev Event) (Outcome, error) {
	if !r.initialized {
		return Outcome{}, errors.New("reconciler not initialized")
	}
	switch ev := ev.(type) {
	case RecomputeRequested:
		return r.recompute(ev)
	case MarkerActivated:
		return r.drilldown(ev)
	default:
		return Outcome{Transition: TransitionNoOp}, nil
	}
}

func (r *Reconciler) recompute(ev RecomputeRequested) (Outcome, error) {
	records, err := r.aggregator.Aggregate(r.dataset.Regions(), ev.Range.Start, ev.Range.End)
	if err != nil {
		return Outcome{}, fmt.Errorf("recompute: %w", err)
	}

	generation := r.state.Generation + 1
	regions := domain.RegionMarkers(records, generation)

	r.regions = regions
	r.details = nil
	r.state = ViewState{
		Markers:           cloneMarkers(regions),
		Center:            r.opts.Center,
		Zoom:              r.opts.BaseZoom,
		CurrentIdentities: identities(regions),
		YearRange:         ev.Range,
		Status:            StatusUpdated,
		Generation:        generation,
		UpdatedAt:         r.clock.Now(),
	}
	r.metrics.MarkersRendered.Set(float64(len(r.state.Markers)))

	return Outcome{Transition: TransitionRecompute, Added: len(regions), Status: StatusUpdated}, nil
}

func (r *Reconciler) drilldown(ev MarkerActivated) (Outcome, error) {
	regionID, ok := domain.MatchRegion(ev.Identity, r.state.CurrentIdentities)
	if !ok {
		return Outcome{Transition: TransitionNoOp}, nil
	}

	rng := r.state.YearRange
	if ev.Range != nil {
		rng = *ev.Range
	}

	sel, err := domain.Select(rng, r.dataset.Properties(), regionID, domain.OverlapNarrow)
	if err != nil {
		return Outcome{}, fmt.Errorf("drilldown %s: %w", regionID, err)
	}

	if sel.Empty() {
		status := statusNoData(regionID)
		r.state.Status = status
		r.state.UpdatedAt = r.clock.Now()
		return Outcome{Transition: TransitionDrilldownEmpty, RegionID: regionID, Status: status}, nil
	}

	center, err := r.dataset.RegionLocation(regionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("drilldown %s: %w", regionID, err)
	}

	added := domain.DetailMarkers(sel)
	details := r.withDetails(regionID, added)
	status := statusAdded(len(added), regionID)

	r.details = details
	r.state.Markers = flatten(r.regions, details)
	r.state.Center = center
	r.state.Zoom = r.opts.DetailZoom
	r.state.Status = status
	r.state.UpdatedAt = r.clock.Now()
	r.metrics.MarkersRendered.Set(float64(len(r.state.Markers)))

	return Outcome{Transition: TransitionDrilldown, RegionID: regionID, Added: len(added), Status: status}, nil
}

// withDetails returns the detail batches with regionID's markers replaced by
// added, evicting the oldest detail markers beyond the configured cap.
func (r *Reconciler) withDetails(regionID string, added []domain.Marker) []detailBatch {
	limit := r.opts.MaxDetailMarkers
	if len(added) > limit {
		r.logger.Warn("drilldown exceeds detail marker limit, truncating",
			"region_id", regionID,
			"markers", len(added),
			"limit", limit,
		)
		added = added[:limit]
	}

	out := make([]detailBatch, 0, len(r.details)+1)
	total := len(added)
	for _, b := range r.details {
		if b.regionID == regionID {
			continue
		}
		out = append(out, b)
		total += len(b.markers)
	}
	out = append(out, detailBatch{regionID: regionID, markers: added})

	evicted := 0
	for total > limit {
		drop := min(total-limit, len(out[0].markers))
		out[0].markers = out[0].markers[drop:]
		total -= drop
		evicted += drop
		if len(out[0].markers) == 0 {
			out = out[1:]
		}
	}
	if evicted > 0 {
		r.logger.Debug("evicted detail markers", "evicted", evicted, "limit", limit)
	}
	return out
}

func (r *Reconciler) notify(ctx context.Context, surface Surface, t Transition) error {
	snap := r.snapshotLocked()
	if t != TransitionDrilldownEmpty {
		if err := surface.RenderMarkers(ctx, snap.Markers); err != nil {
			return err
		}
		if err := surface.SetViewport(ctx, snap.Center, snap.Zoom); err != nil {
			return err
		}
	}
	if snap.Status == "" {
		return nil
	}
	return surface.SetStatusMessage(ctx, snap.Status)
}

func (r *Reconciler) snapshotLocked() ViewState {
	s := r.state
	s.Markers = cloneMarkers(r.state.Markers)
	s.CurrentIdentities = append([]domain.Identity(nil), r.state.CurrentIdentities...)
	return s
}

func flatten(regions []domain.Marker, details []detailBatch) []domain.Marker {
	n := len(regions)
	for _, b := range details {
		n += len(b.markers)
	}
	out := make([]domain.Marker, 0, n)
	out = append(out, regions...)
	for _, b := range details {
		out = append(out, b.markers...)
	}
	return out
}

func identities(markers []domain.Marker) []domain.Identity {
	ids := make([]domain.Identity, len(markers))
	for i, m := range markers {
		ids[i] = m.Identity
	}
	return ids
}

// cloneMarkers copies the marker slice and the overlay slices it references.
func cloneMarkers(in []domain.Marker) []domain.Marker {
	if in == nil {
		return nil
	}
	out := make([]domain.Marker, len(in))
	for i, m := range in {
		m.Overlay.Lines = append([]string(nil), m.Overlay.Lines...)
		m.Overlay.Headers = append([]string(nil), m.Overlay.Headers...)
		if m.Overlay.Rows != nil {
			rows := make([][]string, len(m.Overlay.Rows))
			for j, row := range m.Overlay.Rows {
				rows[j] = append([]string(nil), row...)
			}
			m.Overlay.Rows = rows
		}
		out[i] = m
	}
	return out
}
