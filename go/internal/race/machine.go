// Package race owns the per-race lifecycle: discipline progression, split
// recording, elapsed time and comparison against estimates.
package race

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/trierg/go/internal/models"
)

var (
	// ErrRaceCompleted is returned when a transition is attempted on a
	// terminal machine.
	ErrRaceCompleted = errors.New("race already completed")
	// ErrNotCompleted is returned when a result is requested before the
	// final split.
	ErrNotCompleted = errors.New("race not completed")
)

// Machine tracks one race through its three disciplines. It is constructed
// from an ActiveRace document at any discipline index, so a client can
// resume a race another client started. The machine itself is pure; callers
// supply wall-clock time on every transition.
type Machine struct {
	race models.ActiveRace
}

// NewMachine validates the document invariant and wraps it in a machine.
func NewMachine(r models.ActiveRace) (*Machine, error) {
	if len(r.Splits) != r.CurrentDisciplineIndex {
		return nil, fmt.Errorf("active race %s: %d splits at discipline index %d",
			r.ID, len(r.Splits), r.CurrentDisciplineIndex)
	}
	if r.CurrentDisciplineIndex < 0 || r.CurrentDisciplineIndex > models.NumDisciplines {
		return nil, fmt.Errorf("active race %s: discipline index %d out of range",
			r.ID, r.CurrentDisciplineIndex)
	}
	return &Machine{race: r}, nil
}

// Race returns a copy of the underlying document.
func (m *Machine) Race() models.ActiveRace {
	r := m.race
	r.Splits = append([]models.Split(nil), m.race.Splits...)
	return r
}

// Completed reports whether the machine is terminal.
func (m *Machine) Completed() bool {
	return m.race.CurrentDisciplineIndex >= models.NumDisciplines
}

// Elapsed is the continuously advancing race time. Display only; the
// authoritative split computation happens in TakeSplit.
func (m *Machine) Elapsed(now time.Time) time.Duration {
	return now.Sub(m.race.StartTime)
}

// TakeSplit records the segment duration for the running discipline and
// advances the machine. The split time is (now − start) minus the sum of
// the already recorded segments, never a cumulative reading.
func (m *Machine) TakeSplit(now time.Time) (models.Split, error) {
	if m.Completed() {
		return models.Split{}, ErrRaceCompleted
	}

	disc := models.Disciplines[m.race.CurrentDisciplineIndex]
	split := models.Split{
		Discipline: disc,
		Time:       now.Sub(m.race.StartTime) - m.race.CompletedSplitsTime(),
		Timestamp:  now,
	}
	m.race.Splits = append(m.race.Splits, split)
	m.race.CurrentDisciplineIndex++
	return split, nil
}

// Result finalizes the completed race. TotalTime is the sum of the three
// split durations, the canonical form.
func (m *Machine) Result(now time.Time) (models.RaceResult, error) {
	if !m.Completed() {
		return models.RaceResult{}, ErrNotCompleted
	}

	var splits [models.NumDisciplines]models.Split
	copy(splits[:], m.race.Splits)

	return models.RaceResult{
		ID:          uuid.New(),
		PersonID:    m.race.PersonID,
		PersonName:  m.race.PersonName,
		Splits:      splits,
		TotalTime:   m.race.CompletedSplitsTime(),
		CompletedAt: now,
		CreatedBy:   m.race.CreatedBy,
	}, nil
}
