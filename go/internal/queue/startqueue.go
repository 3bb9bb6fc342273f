// Package queue coordinates a mass start: a finite queue of estimate
// prompts consumed one person at a time by a single routine, with the batch
// of start calls issued only once the queue is drained.
package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/trierg/go/internal/models"
)

// Starter is what the queue needs from the synchronizer.
type Starter interface {
	StartRace(ctx context.Context, personID uuid.UUID, est *models.EstimatedSplits) (models.ActiveRace, error)
}

type entry struct {
	personID  uuid.UUID
	estimates *models.EstimatedSplits
}

// StartQueue walks a fixed list of persons, one prompt at a time. Not safe
// for concurrent use; a single coordinating routine owns it.
type StartQueue struct {
	pending   []uuid.UUID
	collected []entry
	launched  bool
}

// New builds a queue over the persons to mass-start, in prompt order.
func New(personIDs []uuid.UUID) *StartQueue {
	return &StartQueue{pending: append([]uuid.UUID(nil), personIDs...)}
}

// Next returns the person currently being prompted, false when drained.
func (q *StartQueue) Next() (uuid.UUID, bool) {
	if len(q.pending) == 0 {
		return uuid.UUID{}, false
	}
	return q.pending[0], true
}

// Collect records the prompted estimate for the current person and
// advances.
func (q *StartQueue) Collect(est *models.EstimatedSplits) {
	q.advance(est)
}

// Skip advances past the current prompt; the race still starts, without
// estimates.
func (q *StartQueue) Skip() {
	q.advance(nil)
}

func (q *StartQueue) advance(est *models.EstimatedSplits) {
	if len(q.pending) == 0 {
		return
	}
	q.collected = append(q.collected, entry{personID: q.pending[0], estimates: est})
	q.pending = q.pending[1:]
}

// Drained reports whether every prompt has been consumed.
func (q *StartQueue) Drained() bool {
	return len(q.pending) == 0
}

// Launch issues the batch of start calls. It refuses to run before the
// queue is drained and runs at most once. Per-person failures (typically a
// duplicate active race) are collected, not fatal to the rest of the batch.
func (q *StartQueue) Launch(ctx context.Context, starter Starter) []error {
	if !q.Drained() {
		return []error{fmt.Errorf("start queue still has %d pending prompts", len(q.pending))}
	}
	if q.launched {
		return []error{fmt.Errorf("start queue already launched")}
	}
	q.launched = true

	var errs []error
	for _, e := range q.collected {
		if _, err := starter.StartRace(ctx, e.personID, e.estimates); err != nil {
			log.Warn().
				Err(err).
				Str("person_id", e.personID.String()).
				Msg("mass start failed for person")
			errs = append(errs, fmt.Errorf("start race for %s: %w", e.personID, err))
		}
	}
	log.Info().
		Int("started", len(q.collected)-len(errs)).
		Int("failed", len(errs)).
		Msg("mass start launched")
	return errs
}
