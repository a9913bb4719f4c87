// Package pipeline drives the reconciler from a stream of UI event batches and
// forwards the resulting surface commands.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/observability"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// EventDecoder converts a raw message into a reconciler event.
type EventDecoder interface {
	Decode(raw domain.RawEvent) (reconcile.Event, error)
}

// StateReconciler applies one batch of events as a single cycle.
type StateReconciler interface {
	Apply(ctx context.Context, batch []reconcile.Event, surface reconcile.Surface) (reconcile.Outcome, error)
}

// BatchLoader writes the surface commands of one cycle to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, commands []reconcile.Command) error
}

// Pipeline orchestrates the extract-reconcile-load loop. Each extracted batch
// is one reconciliation cycle.
type Pipeline struct {
	extractor  BatchExtractor
	decoder    EventDecoder
	reconciler StateReconciler
	loader     BatchLoader
	logger     *slog.Logger
	metrics    *observability.Metrics
	batchSize  int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, d EventDecoder, r StateReconciler, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:  e,
		decoder:    d,
		reconciler: r,
		loader:     l,
		logger:     logger,
		metrics:    metrics,
		batchSize:  batchSize,
	}
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-reconcile-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.EventsConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	return p.reconcileAndLoad(ctx, rawBatch, backoff, maxBackoff)
}

// reconcileAndLoad decodes the batch, applies it to the reconciler, publishes
// the surface commands and commits offsets. Undecodable messages and failed
// cycles are logged and committed so they cannot stall the stream. Returns
// false if the pipeline should stop.
func (p *Pipeline) reconcileAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) bool {
	events := make([]reconcile.Event, 0, len(rawBatch))
	decoded := make([]domain.RawEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		ev, err := p.decoder.Decode(raw)
		if err != nil {
			p.logger.Warn("decode failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.DecodeErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		events = append(events, ev)
		decoded = append(decoded, raw)
	}

	if len(events) == 0 {
		return true
	}

	surface := &reconcile.CommandBuffer{}
	outcome, err := p.reconciler.Apply(ctx, events, surface)
	if err != nil {
		p.logger.Warn("reconciliation failed, skipping batch", "error", err, "events", len(events))
	}

	if len(surface.Commands) > 0 {
		if err := p.loader.LoadBatch(ctx, surface.Commands); err != nil {
			p.logger.Error("load batch failed", "error", err, "commands", len(surface.Commands))
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		p.metrics.CommandsProduced.Add(float64(len(surface.Commands)))
	}

	for _, raw := range decoded {
		p.commitOffset(ctx, raw)
	}

	p.logger.Debug("batch reconciled",
		"events", len(events),
		"transition", string(outcome.Transition),
		"commands", len(surface.Commands),
	)
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
