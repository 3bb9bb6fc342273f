package models

import (
	"time"

	"github.com/google/uuid"
)

// Discipline identifies one of the three fixed race segments.
type Discipline string

const (
	DisciplineTreadmill Discipline = "TREADMILL"
	DisciplineSkiErg    Discipline = "SKI_ERG"
	DisciplineRowing    Discipline = "ROWING"
)

// Disciplines is the fixed race order. A race always runs all three, in
// this order.
var Disciplines = [3]Discipline{DisciplineTreadmill, DisciplineSkiErg, DisciplineRowing}

// NumDisciplines is the number of segments in a race.
const NumDisciplines = 3

// Split is the recorded duration of one discipline segment. It is the
// segment duration, not a cumulative clock reading, and is immutable once
// recorded.
type Split struct {
	Discipline Discipline
	Time       time.Duration
	Timestamp  time.Time
}

// EstimatedSplits holds operator-supplied predicted durations per
// discipline. Total is derived: present iff all three estimates are
// present, and then always equal to their sum.
type EstimatedSplits struct {
	Treadmill *time.Duration
	SkiErg    *time.Duration
	Rowing    *time.Duration
	Total     *time.Duration
}

// ForDiscipline returns the estimate for a single discipline, nil when unset.
func (e *EstimatedSplits) ForDiscipline(d Discipline) *time.Duration {
	if e == nil {
		return nil
	}
	switch d {
	case DisciplineTreadmill:
		return e.Treadmill
	case DisciplineSkiErg:
		return e.SkiErg
	case DisciplineRowing:
		return e.Rowing
	}
	return nil
}

// HasAny reports whether at least one per-discipline estimate is set.
func (e *EstimatedSplits) HasAny() bool {
	return e != nil && (e.Treadmill != nil || e.SkiErg != nil || e.Rowing != nil)
}

// ActiveRace is a race currently in progress, shared live across clients.
// Invariant: len(Splits) == CurrentDisciplineIndex. Index 3 is never a
// persisted state; reaching it triggers the transactional completion that
// emits a RaceResult and deletes this document.
type ActiveRace struct {
	ID                     uuid.UUID        `json:"id"`
	PersonID               uuid.UUID        `json:"person_id"`
	PersonName             string           `json:"person_name"`
	StartTime              time.Time        `json:"start_time"`
	Splits                 []Split          `json:"splits"`
	CurrentDisciplineIndex int              `json:"current_discipline_index"`
	EstimatedSplits        *EstimatedSplits `json:"estimated_splits,omitempty"`
	CreatedBy              string           `json:"created_by,omitempty"`
}

// CurrentDiscipline returns the discipline now running, false when the
// index is out of the running range.
func (a *ActiveRace) CurrentDiscipline() (Discipline, bool) {
	if a.CurrentDisciplineIndex < 0 || a.CurrentDisciplineIndex >= NumDisciplines {
		return "", false
	}
	return Disciplines[a.CurrentDisciplineIndex], true
}

// CompletedSplitsTime is the sum of all recorded segment durations.
func (a *ActiveRace) CompletedSplitsTime() time.Duration {
	var sum time.Duration
	for _, s := range a.Splits {
		sum += s.Time
	}
	return sum
}

// SplitFor returns the recorded split for a discipline, false when the race
// has not reached it yet.
func (a *ActiveRace) SplitFor(d Discipline) (Split, bool) {
	for _, s := range a.Splits {
		if s.Discipline == d {
			return s, true
		}
	}
	return Split{}, false
}

// RaceResult is the durable record of a completed race. TotalTime always
// equals the sum of the three split times. PersonName is denormalized so the
// result survives deletion of the person record.
type RaceResult struct {
	ID          uuid.UUID
	PersonID    uuid.UUID
	PersonName  string
	Splits      [NumDisciplines]Split
	TotalTime   time.Duration
	CompletedAt time.Time
	CreatedBy   string
}

// SplitTime returns the recorded time for one discipline of the result,
// false when the result does not carry it (imported partial data).
func (r *RaceResult) SplitTime(d Discipline) (time.Duration, bool) {
	for _, s := range r.Splits {
		if s.Discipline == d && s.Time > 0 {
			return s.Time, true
		}
	}
	return 0, false
}
