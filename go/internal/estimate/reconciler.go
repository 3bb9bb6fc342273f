// Package estimate merges operator-edited estimated splits with previously
// stored estimates and maintains the derived total.
package estimate

import (
	"fmt"
	"time"

	"github.com/mcdev12/trierg/go/internal/models"
	"github.com/mcdev12/trierg/go/internal/timefmt"
)

// ValidationError reports a malformed estimate edit. The whole edit is
// rejected; no field is applied.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid estimate for %s: %q", e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Field is one submitted per-discipline value. Touched distinguishes "the
// operator edited this field" from "the form left it alone"; a touched
// field with an empty Value clears the stored estimate.
type Field struct {
	Touched bool
	Value   string
}

// Input carries one estimate edit across all three disciplines.
type Input struct {
	Treadmill Field
	SkiErg    Field
	Rowing    Field
}

func (in Input) field(d models.Discipline) Field {
	switch d {
	case models.DisciplineTreadmill:
		return in.Treadmill
	case models.DisciplineSkiErg:
		return in.SkiErg
	case models.DisciplineRowing:
		return in.Rowing
	}
	return Field{}
}

// Merge applies an estimate edit to the stored estimates. splitsTaken is the
// race's current discipline index: disciplines already past are locked and
// edits to them are ignored. Parsing is all-or-nothing; any malformed
// touched field fails the whole edit with a ValidationError.
//
// Returns nil when no estimate remains set after the merge.
func Merge(existing *models.EstimatedSplits, in Input, splitsTaken int) (*models.EstimatedSplits, error) {
	// Validate every touched field up front so a failure applies nothing.
	parsed := make(map[models.Discipline]*time.Duration, models.NumDisciplines)
	for _, d := range models.Disciplines {
		f := in.field(d)
		if !f.Touched || f.Value == "" {
			continue
		}
		v, err := timefmt.Parse(f.Value)
		if err != nil {
			return nil, &ValidationError{Field: string(d), Value: f.Value, Err: err}
		}
		parsed[d] = &v
	}

	merged := &models.EstimatedSplits{}
	for i, d := range models.Disciplines {
		prior := existing.ForDiscipline(d)
		f := in.field(d)

		switch {
		case i < splitsTaken:
			// Split already recorded; the estimate is frozen.
			setDiscipline(merged, d, prior)
		case !f.Touched:
			setDiscipline(merged, d, prior)
		case f.Value == "":
			// Explicit blank clears.
		default:
			setDiscipline(merged, d, parsed[d])
		}
	}

	if merged.Treadmill != nil && merged.SkiErg != nil && merged.Rowing != nil {
		total := *merged.Treadmill + *merged.SkiErg + *merged.Rowing
		merged.Total = &total
	}

	if !merged.HasAny() {
		return nil, nil
	}
	return merged, nil
}

func setDiscipline(e *models.EstimatedSplits, d models.Discipline, v *time.Duration) {
	if v == nil {
		return
	}
	vv := *v
	switch d {
	case models.DisciplineTreadmill:
		e.Treadmill = &vv
	case models.DisciplineSkiErg:
		e.SkiErg = &vv
	case models.DisciplineRowing:
		e.Rowing = &vv
	}
}
