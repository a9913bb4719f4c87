package reconcile

import (
	"time"

	"github.com/couchcryptid/inflation-map/internal/domain"
)

// Event is an input to one reconciliation cycle. The variants are
// RecomputeRequested and MarkerActivated.
type Event interface {
	firedAt() time.Time
}

// RecomputeRequested asks for the region markers to be rebuilt over a range.
type RecomputeRequested struct {
	Range   domain.YearRange
	FiredAt time.Time
}

func (e RecomputeRequested) firedAt() time.Time { return e.FiredAt }

// MarkerActivated reports a click on a marker. Range, when set, overrides the
// view's current year range for the drilldown.
type MarkerActivated struct {
	Identity domain.Identity
	Range    *domain.YearRange
	FiredAt  time.Time
}

func (e MarkerActivated) firedAt() time.Time { return e.FiredAt }

// Resolve picks the event that decides a cycle: the most recently fired one,
// with ties going to the later position in the batch. It returns nil for an
// empty batch.
func Resolve(batch []Event) Event {
	var winner Event
	for _, ev := range batch {
		if ev == nil {
			continue
		}
		if winner == nil || !ev.firedAt().Before(winner.firedAt()) {
			winner = ev
		}
	}
	return winner
}
