// Package leaderboard combines finalized results with live projections of
// in-progress races into one sorted, re-sortable table with
// percentile-based pace coloring.
package leaderboard

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/trierg/go/internal/models"
	"github.com/mcdev12/trierg/go/internal/timefmt"
)

// SortKey selects the column the table is ordered by.
type SortKey string

const (
	SortKeyTotal     SortKey = "total"
	SortKeyTreadmill SortKey = "treadmill"
	SortKeySkiErg    SortKey = "skiErg"
	SortKeyRowing    SortKey = "rowing"
)

// NoTime is the missing-value sentinel; it is greater than any real
// duration, so rows missing the sorted discipline always land last.
const NoTime = time.Duration(math.MaxInt64)

// Row is one leaderboard entry. Provisional rows are synthesized from a
// still-running race, mixing recorded splits with estimates.
type Row struct {
	ID          uuid.UUID
	PersonID    uuid.UUID
	PersonName  string
	Treadmill   time.Duration // NoTime when absent
	SkiErg      time.Duration
	Rowing      time.Duration
	Total       time.Duration
	Provisional bool
}

// SplitTime returns the row's time for one discipline, NoTime when absent.
func (r Row) SplitTime(d models.Discipline) time.Duration {
	switch d {
	case models.DisciplineTreadmill:
		return r.Treadmill
	case models.DisciplineSkiErg:
		return r.SkiErg
	case models.DisciplineRowing:
		return r.Rowing
	}
	return NoTime
}

func (r Row) keyValue(k SortKey) time.Duration {
	switch k {
	case SortKeyTreadmill:
		return r.Treadmill
	case SortKeySkiErg:
		return r.SkiErg
	case SortKeyRowing:
		return r.Rowing
	default:
		return r.Total
	}
}

// Ranker holds the table's sort state across re-renders.
type Ranker struct {
	key        SortKey
	descending bool
}

// NewRanker starts with total time ascending.
func NewRanker() *Ranker {
	return &Ranker{key: SortKeyTotal}
}

// ToggleSort selects a sort column. Selecting the current column again
// flips direction; a new column resets to ascending.
func (rk *Ranker) ToggleSort(k SortKey) {
	if rk.key == k {
		rk.descending = !rk.descending
		return
	}
	rk.key = k
	rk.descending = false
}

// SetSort sets the sort state explicitly, for callers that carry it in a
// request instead of toggling a column header.
func (rk *Ranker) SetSort(k SortKey, descending bool) {
	rk.key = k
	rk.descending = descending
}

// Sort reports the current sort state.
func (rk *Ranker) Sort() (SortKey, bool) {
	return rk.key, rk.descending
}

// Rank merges durable results with provisional projections of active races
// carrying at least one estimate, ordered by the current sort state.
func (rk *Ranker) Rank(results []models.RaceResult, active []models.ActiveRace) []Row {
	rows := make([]Row, 0, len(results)+len(active))
	for _, res := range results {
		rows = append(rows, resultRow(res))
	}
	for _, r := range active {
		if !r.EstimatedSplits.HasAny() {
			continue
		}
		rows = append(rows, provisionalRow(r))
	}

	key, desc := rk.key, rk.descending
	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := rows[i].keyValue(key), rows[j].keyValue(key)
		// The sentinel sorts last regardless of direction.
		if vi == NoTime || vj == NoTime {
			return vj == NoTime && vi != NoTime
		}
		if desc {
			return vi > vj
		}
		return vi < vj
	})
	return rows
}

func resultRow(res models.RaceResult) Row {
	row := Row{
		ID:         res.ID,
		PersonID:   res.PersonID,
		PersonName: res.PersonName,
		Treadmill:  NoTime,
		SkiErg:     NoTime,
		Rowing:     NoTime,
		Total:      res.TotalTime,
	}
	for _, d := range models.Disciplines {
		if t, ok := res.SplitTime(d); ok {
			row.setSplit(d, t)
		}
	}
	return row
}

// provisionalRow uses the actual recorded split where present, the estimate
// otherwise, and zero for the total contribution of a discipline with
// neither.
func provisionalRow(r models.ActiveRace) Row {
	row := Row{
		ID:          r.ID,
		PersonID:    r.PersonID,
		PersonName:  r.PersonName,
		Treadmill:   NoTime,
		SkiErg:      NoTime,
		Rowing:      NoTime,
		Provisional: true,
	}
	var total time.Duration
	for _, d := range models.Disciplines {
		if s, ok := r.SplitFor(d); ok {
			row.setSplit(d, s.Time)
			total += s.Time
			continue
		}
		if est := r.EstimatedSplits.ForDiscipline(d); est != nil {
			row.setSplit(d, *est)
			total += *est
		}
	}
	row.Total = total
	return row
}

func (r *Row) setSplit(d models.Discipline, t time.Duration) {
	switch d {
	case models.DisciplineTreadmill:
		r.Treadmill = t
	case models.DisciplineSkiErg:
		r.SkiErg = t
	case models.DisciplineRowing:
		r.Rowing = t
	}
}

func paceValue(d models.Discipline, t time.Duration) float64 {
	if d == models.DisciplineTreadmill {
		return timefmt.TreadmillSpeed(t)
	}
	return float64(timefmt.PacePer500(t, distanceFor(d)))
}

func distanceFor(d models.Discipline) int {
	if d == models.DisciplineSkiErg {
		return timefmt.SkiErgDistanceM
	}
	return timefmt.RowingDistanceM
}
