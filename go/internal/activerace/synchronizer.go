// Package activerace maintains the shared set of currently-running races
// across all connected clients. It bridges the race state machine to the
// store: every local transition becomes a store write, every remote
// transition arrives back through the snapshot feed.
package activerace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/trierg/go/internal/estimate"
	"github.com/mcdev12/trierg/go/internal/identity"
	"github.com/mcdev12/trierg/go/internal/models"
	"github.com/mcdev12/trierg/go/internal/race"
	"github.com/mcdev12/trierg/go/internal/store"
)

// Synchronizer applies operator actions against the cached view and writes
// the outcome through the store. Writes are fire-and-forget: the caller
// gets control back before the store acknowledges, failures surface through
// the SyncError handler, and the local view converges via the feed.
type Synchronizer struct {
	store store.Store
	feed  store.Feed
	cache *Cache
	clock clockwork.Clock

	onSyncError func(*SyncError)

	mu   sync.Mutex
	subs []store.Subscription
	wg   sync.WaitGroup
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock injects the time source, a fake clock in tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Synchronizer) { s.clock = c }
}

// WithSyncErrorHandler routes asynchronous store failures to the caller,
// e.g. for a non-blocking operator notice.
func WithSyncErrorHandler(h func(*SyncError)) Option {
	return func(s *Synchronizer) { s.onSyncError = h }
}

// New creates a synchronizer over a store and its change feed.
func New(st store.Store, feed store.Feed, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store: st,
		feed:  feed,
		cache: NewCache(),
		clock: clockwork.NewRealClock(),
		onSyncError: func(e *SyncError) {
			log.Warn().Err(e.Err).Str("op", e.Op).Msg("sync error")
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache exposes the local read view.
func (s *Synchronizer) Cache() *Cache { return s.cache }

// Now returns the synchronizer's notion of the current time, so callers
// computing elapsed times and deltas agree with the split clock.
func (s *Synchronizer) Now() time.Time { return s.clock.Now() }

// Subscribe attaches the cache to every collection feed. A failed
// subscription is surfaced as a SyncError and does not stop the others;
// the cache keeps serving whatever it last saw.
func (s *Synchronizer) Subscribe(ctx context.Context) error {
	for _, c := range store.Collections {
		sub, err := s.feed.Subscribe(ctx, c, s.cache.Apply)
		if err != nil {
			s.onSyncError(&SyncError{Op: "subscribe " + string(c), Err: err})
			continue
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}
	return nil
}

// Close detaches all feed subscriptions and waits for in-flight writes.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to unsubscribe from feed")
		}
	}
	s.wg.Wait()
}

// StartRace creates a new active race for a person, optionally carrying
// estimates. The duplicate check runs against the cached view; two clients
// racing through the same propagation window may both succeed, and the
// resulting duplicate stays visible rather than being silently merged.
func (s *Synchronizer) StartRace(ctx context.Context, personID uuid.UUID, est *models.EstimatedSplits) (models.ActiveRace, error) {
	caller := identity.FromContext(ctx)
	if !caller.CanWrite() {
		return models.ActiveRace{}, ErrPermissionDenied
	}

	person, ok := s.cache.PersonByID(personID)
	if !ok {
		return models.ActiveRace{}, ErrPersonNotFound
	}
	if len(s.cache.ActiveRacesForPerson(personID)) > 0 {
		return models.ActiveRace{}, ErrDuplicateActiveRace
	}

	r := models.ActiveRace{
		ID:                     uuid.New(),
		PersonID:               person.ID,
		PersonName:             person.Name,
		StartTime:              s.clock.Now(),
		Splits:                 []models.Split{},
		CurrentDisciplineIndex: 0,
		EstimatedSplits:        est,
		CreatedBy:              caller.ID,
	}

	log.Info().
		Str("race_id", r.ID.String()).
		Str("person", person.Name).
		Str("created_by", caller.ID).
		Msg("race started")

	s.write(ctx, "startRace", func(ctx context.Context) error {
		return s.store.UpsertActiveRace(ctx, r)
	})
	return r, nil
}

// TakeSplit records the running discipline's segment duration. On the third
// split the race completes: the finalized result is written and the active
// race removed in one atomic store operation.
func (s *Synchronizer) TakeSplit(ctx context.Context, raceID uuid.UUID) (models.Split, bool, error) {
	doc, err := s.authorizedRace(ctx, raceID)
	if err != nil {
		return models.Split{}, false, err
	}

	m, err := race.NewMachine(doc)
	if err != nil {
		return models.Split{}, false, err
	}

	now := s.clock.Now()
	split, err := m.TakeSplit(now)
	if err != nil {
		return models.Split{}, false, err
	}

	if m.Completed() {
		result, err := m.Result(now)
		if err != nil {
			return models.Split{}, false, err
		}
		log.Info().
			Str("race_id", raceID.String()).
			Str("person", doc.PersonName).
			Dur("total", result.TotalTime).
			Msg("race completed")
		s.write(ctx, "completeRace", func(ctx context.Context) error {
			return s.store.CompleteRace(ctx, raceID, result)
		})
		return split, true, nil
	}

	updated := m.Race()
	log.Info().
		Str("race_id", raceID.String()).
		Str("discipline", string(split.Discipline)).
		Dur("split", split.Time).
		Msg("split taken")
	s.write(ctx, "takeSplit", func(ctx context.Context) error {
		return s.store.UpdateActiveRaceProgress(ctx, raceID, updated.Splits, updated.CurrentDisciplineIndex)
	})
	return split, false, nil
}

// UpdateEstimates merges an estimate edit into the race document. Only the
// estimated_splits field is written, so a concurrent split-take on the same
// race is not clobbered.
func (s *Synchronizer) UpdateEstimates(ctx context.Context, raceID uuid.UUID, in estimate.Input) (*models.EstimatedSplits, error) {
	doc, err := s.authorizedRace(ctx, raceID)
	if err != nil {
		return nil, err
	}

	merged, err := estimate.Merge(doc.EstimatedSplits, in, doc.CurrentDisciplineIndex)
	if err != nil {
		return nil, err
	}

	s.write(ctx, "updateEstimates", func(ctx context.Context) error {
		return s.store.UpdateActiveRaceEstimates(ctx, raceID, merged)
	})
	return merged, nil
}

// StopRace abandons a race without emitting a result.
func (s *Synchronizer) StopRace(ctx context.Context, raceID uuid.UUID) error {
	doc, err := s.authorizedRace(ctx, raceID)
	if err != nil {
		return err
	}

	log.Info().
		Str("race_id", raceID.String()).
		Str("person", doc.PersonName).
		Msg("race stopped without result")
	s.write(ctx, "stopRace", func(ctx context.Context) error {
		return s.store.DeleteActiveRace(ctx, raceID)
	})
	return nil
}

// CreatePerson registers a new competitor.
func (s *Synchronizer) CreatePerson(ctx context.Context, name string) (models.Person, error) {
	caller := identity.FromContext(ctx)
	if !caller.CanWrite() {
		return models.Person{}, ErrPermissionDenied
	}

	p := models.Person{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: s.clock.Now(),
		CreatedBy: caller.ID,
	}
	s.write(ctx, "createPerson", func(ctx context.Context) error {
		return s.store.UpsertPerson(ctx, p)
	})
	return p, nil
}

// DeletePerson removes a person record. Admin only; results keep their
// denormalized person name.
func (s *Synchronizer) DeletePerson(ctx context.Context, id uuid.UUID) error {
	if !identity.FromContext(ctx).IsAdmin() {
		return ErrPermissionDenied
	}
	s.write(ctx, "deletePerson", func(ctx context.Context) error {
		return s.store.DeletePerson(ctx, id)
	})
	return nil
}

// UpsertUser creates or updates an operator account. Admin only; the stored
// role is authoritative over whatever a token claims.
func (s *Synchronizer) UpsertUser(ctx context.Context, u models.User) (models.User, error) {
	if !identity.FromContext(ctx).IsAdmin() {
		return models.User{}, ErrPermissionDenied
	}

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock.Now()
	}
	s.write(ctx, "upsertUser", func(ctx context.Context) error {
		return s.store.UpsertUser(ctx, u)
	})
	return u, nil
}

// DeleteResult removes a durable result. Admin only.
func (s *Synchronizer) DeleteResult(ctx context.Context, id uuid.UUID) error {
	if !identity.FromContext(ctx).IsAdmin() {
		return ErrPermissionDenied
	}
	s.write(ctx, "deleteResult", func(ctx context.Context) error {
		return s.store.DeleteResult(ctx, id)
	})
	return nil
}

// Flush blocks until every issued write has been acknowledged or failed.
// Used by batch flows and tests; normal operation never waits.
func (s *Synchronizer) Flush() {
	s.wg.Wait()
}

// authorizedRace fetches the cached document and applies the createdBy or
// admin rule.
func (s *Synchronizer) authorizedRace(ctx context.Context, raceID uuid.UUID) (models.ActiveRace, error) {
	doc, ok := s.cache.ActiveRaceByID(raceID)
	if !ok {
		return models.ActiveRace{}, ErrRaceNotFound
	}
	if !identity.FromContext(ctx).CanMutate(doc.CreatedBy) {
		return models.ActiveRace{}, ErrPermissionDenied
	}
	return doc, nil
}

// write runs a store mutation without blocking the caller. The context is
// detached so an already-finished request does not cancel the write; there
// is no timeout, the feed corrects any divergence eventually.
func (s *Synchronizer) write(ctx context.Context, op string, fn func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(detached); err != nil {
			s.onSyncError(&SyncError{Op: op, Err: err})
		}
	}()
}
