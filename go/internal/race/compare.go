package race

import (
	"time"

	"github.com/mcdev12/trierg/go/internal/models"
)

// Delta is an informational comparison against an estimate. Positive means
// behind the estimate, negative means ahead. Comparisons never touch stored
// data.
type Delta struct {
	Behind time.Duration
}

// Ahead reports whether the racer is at or under the estimate.
func (d Delta) Ahead() bool { return d.Behind <= 0 }

// Magnitude is the absolute display delta.
func (d Delta) Magnitude() time.Duration {
	if d.Behind < 0 {
		return -d.Behind
	}
	return d.Behind
}

// CurrentSegmentDelta compares time spent in the running segment so far
// against that discipline's estimate. False when the race is terminal or
// the running discipline has no estimate.
func CurrentSegmentDelta(r models.ActiveRace, now time.Time) (Delta, bool) {
	disc, ok := r.CurrentDiscipline()
	if !ok {
		return Delta{}, false
	}
	est := r.EstimatedSplits.ForDiscipline(disc)
	if est == nil {
		return Delta{}, false
	}
	inSegment := now.Sub(r.StartTime) - r.CompletedSplitsTime()
	return Delta{Behind: inSegment - *est}, true
}

// TotalDelta compares live elapsed time against a blended estimated total:
// per discipline the actual split time where known, the estimate otherwise.
// False when any discipline has neither.
func TotalDelta(r models.ActiveRace, now time.Time) (Delta, bool) {
	var blended time.Duration
	for _, disc := range models.Disciplines {
		if s, ok := r.SplitFor(disc); ok {
			blended += s.Time
			continue
		}
		est := r.EstimatedSplits.ForDiscipline(disc)
		if est == nil {
			return Delta{}, false
		}
		blended += *est
	}
	return Delta{Behind: now.Sub(r.StartTime) - blended}, true
}

// SplitDelta compares a completed split directly against its per-discipline
// estimate. False when the split is not yet recorded or has no estimate.
func SplitDelta(r models.ActiveRace, disc models.Discipline) (Delta, bool) {
	s, ok := r.SplitFor(disc)
	if !ok {
		return Delta{}, false
	}
	est := r.EstimatedSplits.ForDiscipline(disc)
	if est == nil {
		return Delta{}, false
	}
	return Delta{Behind: s.Time - *est}, true
}
