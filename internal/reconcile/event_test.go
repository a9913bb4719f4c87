package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/inflation-map/internal/domain"
)

func TestResolve(t *testing.T) {
	t0 := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	recompute := RecomputeRequested{Range: domain.YearRange{Start: 2000, End: 2010}, FiredAt: t0}
	earlyClick := MarkerActivated{Identity: domain.RegionIdentity("SW1", 1), FiredAt: t0.Add(-time.Second)}
	lateClick := MarkerActivated{Identity: domain.RegionIdentity("E1", 1), FiredAt: t0.Add(time.Second)}
	tiedClick := MarkerActivated{Identity: domain.RegionIdentity("N1", 1), FiredAt: t0}

	tests := []struct {
		name  string
		batch []Event
		want  Event
	}{
		{name: "empty", batch: nil, want: nil},
		{name: "nil entries only", batch: []Event{nil}, want: nil},
		{name: "single", batch: []Event{recompute}, want: recompute},
		{name: "recompute after click", batch: []Event{earlyClick, recompute}, want: recompute},
		{name: "click after recompute", batch: []Event{lateClick, recompute}, want: lateClick},
		{name: "tie goes to later position", batch: []Event{recompute, tiedClick}, want: tiedClick},
		{name: "tie goes to later position reversed", batch: []Event{tiedClick, recompute}, want: recompute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.batch))
		})
	}
}
