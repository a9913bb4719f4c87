package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

// Wire event types.
const (
	EventTypeRecompute = "recompute"
	EventTypeActivate  = "activate"
)

// ErrYearOutOfBounds is returned for a year range outside the configured slider bounds.
var ErrYearOutOfBounds = errors.New("year range outside allowed bounds")

// UIEvent is the JSON wire form of a map UI event.
type UIEvent struct {
	Type      string           `json:"type"`
	StartYear *int             `json:"start_year,omitempty"`
	EndYear   *int             `json:"end_year,omitempty"`
	Identity  *domain.Identity `json:"identity,omitempty"`
	FiredAt   *time.Time       `json:"fired_at,omitempty"`
}

// Decoder turns raw messages into reconciler events.
type Decoder struct {
	bounds domain.YearRange
}

// NewDecoder creates a Decoder accepting year ranges inside bounds.
func NewDecoder(bounds domain.YearRange) *Decoder {
	return &Decoder{bounds: bounds}
}

// Decode parses a raw message. Events without fired_at take the message
// timestamp.
func (d *Decoder) Decode(raw domain.RawEvent) (reconcile.Event, error) {
	var ev UIEvent
	if err := json.Unmarshal(raw.Value, &ev); err != nil {
		return nil, fmt.Errorf("decode ui event: %w", err)
	}
	return d.Event(ev, raw.Timestamp)
}

// Event validates a wire event and converts it. received stands in for a
// missing fired_at.
func (d *Decoder) Event(ev UIEvent, received time.Time) (reconcile.Event, error) {
	firedAt := received
	if ev.FiredAt != nil {
		firedAt = *ev.FiredAt
	}

	rng, hasRange, err := d.yearRange(ev)
	if err != nil {
		return nil, err
	}

	switch ev.Type {
	case EventTypeRecompute:
		if !hasRange {
			return nil, errors.New("recompute event requires start_year and end_year")
		}
		return reconcile.RecomputeRequested{Range: rng, FiredAt: firedAt}, nil
	case EventTypeActivate:
		if ev.Identity == nil || ev.Identity.Key == "" {
			return nil, errors.New("activate event requires an identity")
		}
		if err := ValidateKind(ev.Identity.Kind); err != nil {
			return nil, err
		}
		activated := reconcile.MarkerActivated{Identity: *ev.Identity, FiredAt: firedAt}
		if hasRange {
			activated.Range = &rng
		}
		return activated, nil
	default:
		return nil, fmt.Errorf("unknown ui event type %q", ev.Type)
	}
}

// CheckRange rejects ranges that are inverted or outside bounds.
func (d *Decoder) CheckRange(rng domain.YearRange) error {
	if !rng.Valid() {
		return fmt.Errorf("%d-%d: %w", rng.Start, rng.End, domain.ErrInvalidYearRange)
	}
	if !rng.Within(d.bounds) {
		return fmt.Errorf("%d-%d not within %d-%d: %w", rng.Start, rng.End, d.bounds.Start, d.bounds.End, ErrYearOutOfBounds)
	}
	return nil
}

func (d *Decoder) yearRange(ev UIEvent) (domain.YearRange, bool, error) {
	if ev.StartYear == nil && ev.EndYear == nil {
		return domain.YearRange{}, false, nil
	}
	if ev.StartYear == nil || ev.EndYear == nil {
		return domain.YearRange{}, false, errors.New("start_year and end_year must be given together")
	}
	rng := domain.YearRange{Start: *ev.StartYear, End: *ev.EndYear}
	if err := d.CheckRange(rng); err != nil {
		return domain.YearRange{}, false, err
	}
	return rng, true, nil
}

// ValidateKind rejects identity kinds the map never renders.
func ValidateKind(kind domain.IdentityKind) error {
	switch kind {
	case domain.KindRegion, domain.KindProperty, domain.KindGroup:
		return nil
	}
	return fmt.Errorf("unknown identity kind %q", kind)
}
