package leaderboard

import (
	"time"

	"github.com/mcdev12/trierg/go/internal/models"
)

// Tier is a display color bucket. TierNone means the discipline has no
// usable distribution; otherwise 1 is the fastest bucket and 5 the slowest,
// cut at the 80/60/40/20 percentile points.
type Tier int

const (
	TierNone Tier = 0
)

type paceRange struct {
	min, max float64
}

// Tiers holds the per-discipline pace distributions the coloring is
// computed from. Only durable results feed the distribution; provisional
// entries never perturb it.
type Tiers struct {
	ranges map[models.Discipline]paceRange
}

// ComputeTiers builds the pace distributions from the durable result set.
func ComputeTiers(results []models.RaceResult) Tiers {
	t := Tiers{ranges: make(map[models.Discipline]paceRange, models.NumDisciplines)}
	for _, d := range models.Disciplines {
		var have bool
		var r paceRange
		for _, res := range results {
			split, ok := res.SplitTime(d)
			if !ok {
				continue
			}
			v := paceValue(d, split)
			if !have {
				r = paceRange{min: v, max: v}
				have = true
				continue
			}
			if v < r.min {
				r.min = v
			}
			if v > r.max {
				r.max = v
			}
		}
		if have {
			t.ranges[d] = r
		}
	}
	return t
}

// TierFor assigns the display tier for one discipline time. TierNone when
// the discipline has no data or a degenerate (min == max) distribution.
func (t Tiers) TierFor(d models.Discipline, split time.Duration) Tier {
	r, ok := t.ranges[d]
	if !ok || r.min == r.max || split == NoTime {
		return TierNone
	}

	ratio := (paceValue(d, split) - r.min) / (r.max - r.min)
	// Treadmill pace is speed: higher is better. Erg pace per 500m: lower
	// is better, so the percentile inverts.
	percentile := ratio
	if d != models.DisciplineTreadmill {
		percentile = 1 - ratio
	}

	switch {
	case percentile >= 0.8:
		return 1
	case percentile >= 0.6:
		return 2
	case percentile >= 0.4:
		return 3
	case percentile >= 0.2:
		return 4
	default:
		return 5
	}
}
