package activerace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/trierg/go/internal/estimate"
	"github.com/mcdev12/trierg/go/internal/identity"
	"github.com/mcdev12/trierg/go/internal/models"
	"github.com/mcdev12/trierg/go/internal/store"
)

func ctxAs(id string, role models.Role) context.Context {
	return identity.NewContext(context.Background(), identity.Identity{ID: id, Role: role})
}

func newTestSync(t *testing.T) (*Synchronizer, *store.Memory, *clockwork.FakeClock) {
	t.Helper()
	mem := store.NewMemory()
	clock := clockwork.NewFakeClock()
	s := New(mem, mem, WithClock(clock))
	require.NoError(t, s.Subscribe(context.Background()))
	t.Cleanup(s.Close)
	return s, mem, clock
}

func addPerson(t *testing.T, s *Synchronizer, name string) models.Person {
	t.Helper()
	p, err := s.CreatePerson(ctxAs("op1", models.RoleUser), name)
	require.NoError(t, err)
	s.Flush()
	return p
}

func TestStartRaceAndDuplicateCheck(t *testing.T) {
	s, _, _ := newTestSync(t)
	p := addPerson(t, s, "Alice")

	r, err := s.StartRace(ctxAs("op1", models.RoleUser), p.ID, nil)
	require.NoError(t, err)
	s.Flush()

	assert.Equal(t, 0, r.CurrentDisciplineIndex)
	assert.Empty(t, r.Splits)
	assert.Equal(t, "op1", r.CreatedBy)

	cached, ok := s.Cache().ActiveRaceByID(r.ID)
	require.True(t, ok)
	assert.Equal(t, p.ID, cached.PersonID)

	_, err = s.StartRace(ctxAs("op2", models.RoleUser), p.ID, nil)
	assert.ErrorIs(t, err, ErrDuplicateActiveRace)
}

func TestStartRaceUnknownPerson(t *testing.T) {
	s, _, _ := newTestSync(t)
	_, err := s.StartRace(ctxAs("op1", models.RoleUser), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrPersonNotFound)
}

func TestGuestCannotStart(t *testing.T) {
	s, _, _ := newTestSync(t)
	p := addPerson(t, s, "Alice")
	_, err := s.StartRace(ctxAs("", models.RoleGuest), p.ID, nil)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFullRaceFlow(t *testing.T) {
	s, mem, clock := newTestSync(t)
	p := addPerson(t, s, "Alice")
	ctx := ctxAs("op1", models.RoleUser)

	r, err := s.StartRace(ctx, p.ID, nil)
	require.NoError(t, err)
	s.Flush()

	clock.Advance(900000 * time.Millisecond)
	split, completed, err := s.TakeSplit(ctx, r.ID)
	require.NoError(t, err)
	s.Flush()
	assert.False(t, completed)
	assert.Equal(t, 900000*time.Millisecond, split.Time)

	clock.Advance(1100000 * time.Millisecond)
	split, completed, err = s.TakeSplit(ctx, r.ID)
	require.NoError(t, err)
	s.Flush()
	assert.False(t, completed)
	assert.Equal(t, 1100000*time.Millisecond, split.Time)

	clock.Advance(500000 * time.Millisecond)
	split, completed, err = s.TakeSplit(ctx, r.ID)
	require.NoError(t, err)
	s.Flush()
	assert.True(t, completed)
	assert.Equal(t, 500000*time.Millisecond, split.Time)

	// The race is gone from the active set and exactly one result exists.
	_, ok := s.Cache().ActiveRaceByID(r.ID)
	assert.False(t, ok)
	results, err := mem.ListResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2500000*time.Millisecond, results[0].TotalTime)
	assert.Equal(t, p.ID, results[0].PersonID)
	assert.Equal(t, "Alice", results[0].PersonName)
}

func TestTakeSplitPermissionDeniedLeavesRaceUnchanged(t *testing.T) {
	s, mem, clock := newTestSync(t)
	p := addPerson(t, s, "Alice")

	r, err := s.StartRace(ctxAs("op1", models.RoleUser), p.ID, nil)
	require.NoError(t, err)
	s.Flush()

	before, err := mem.ListActiveRaces(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, _, err = s.TakeSplit(ctxAs("op2", models.RoleUser), r.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	s.Flush()

	after, err := mem.ListActiveRaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after, "stored document must be untouched")
}

func TestAdminMayMutateAnyRace(t *testing.T) {
	s, _, clock := newTestSync(t)
	p := addPerson(t, s, "Alice")

	r, err := s.StartRace(ctxAs("op1", models.RoleUser), p.ID, nil)
	require.NoError(t, err)
	s.Flush()

	clock.Advance(time.Minute)
	_, _, err = s.TakeSplit(ctxAs("boss", models.RoleAdmin), r.ID)
	assert.NoError(t, err)
}

func TestStopRaceLeavesNoResult(t *testing.T) {
	s, mem, _ := newTestSync(t)
	p := addPerson(t, s, "Alice")
	ctx := ctxAs("op1", models.RoleUser)

	r, err := s.StartRace(ctx, p.ID, nil)
	require.NoError(t, err)
	s.Flush()

	require.NoError(t, s.StopRace(ctx, r.ID))
	s.Flush()

	_, ok := s.Cache().ActiveRaceByID(r.ID)
	assert.False(t, ok)
	results, err := mem.ListResults(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpdateEstimatesIsFieldScoped(t *testing.T) {
	s, _, clock := newTestSync(t)
	p := addPerson(t, s, "Alice")
	ctx := ctxAs("op1", models.RoleUser)

	r, err := s.StartRace(ctx, p.ID, nil)
	require.NoError(t, err)
	s.Flush()

	clock.Advance(10 * time.Minute)
	_, _, err = s.TakeSplit(ctx, r.ID)
	require.NoError(t, err)
	s.Flush()

	merged, err := s.UpdateEstimates(ctx, r.ID, estimate.Input{
		SkiErg: estimate.Field{Touched: true, Value: "12:00"},
	})
	require.NoError(t, err)
	s.Flush()
	require.NotNil(t, merged.SkiErg)

	cached, ok := s.Cache().ActiveRaceByID(r.ID)
	require.True(t, ok)
	assert.Equal(t, 1, cached.CurrentDisciplineIndex, "split progress survives the estimate write")
	require.NotNil(t, cached.EstimatedSplits)
	assert.Equal(t, 12*time.Minute, *cached.EstimatedSplits.SkiErg)
}

func TestDeleteResultRequiresAdmin(t *testing.T) {
	s, _, _ := newTestSync(t)
	err := s.DeleteResult(ctxAs("op1", models.RoleUser), uuid.New())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	err = s.DeleteResult(ctxAs("boss", models.RoleAdmin), uuid.New())
	assert.NoError(t, err)
}

func TestDeletePersonKeepsResultName(t *testing.T) {
	s, mem, clock := newTestSync(t)
	p := addPerson(t, s, "Alice")
	ctx := ctxAs("op1", models.RoleUser)

	r, err := s.StartRace(ctx, p.ID, nil)
	require.NoError(t, err)
	s.Flush()
	for range models.Disciplines {
		clock.Advance(time.Minute)
		_, _, err = s.TakeSplit(ctx, r.ID)
		require.NoError(t, err)
		s.Flush()
	}

	require.NoError(t, s.DeletePerson(ctxAs("boss", models.RoleAdmin), p.ID))
	s.Flush()

	results, err := mem.ListResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Alice", results[0].PersonName)
}

func TestDuplicateActiveRacesAreSurfaced(t *testing.T) {
	s, mem, clock := newTestSync(t)
	p := addPerson(t, s, "Alice")

	// Two clients won the same check-then-act window; both documents land.
	for range 2 {
		r := models.ActiveRace{
			ID:       uuid.New(),
			PersonID: p.ID, PersonName: p.Name,
			StartTime: clock.Now(),
			Splits:    []models.Split{},
			CreatedBy: "op1",
		}
		require.NoError(t, mem.UpsertActiveRace(context.Background(), r))
	}

	assert.Len(t, s.Cache().ActiveRaces(), 2, "both timers stay visible")
	dups := s.Cache().DuplicateRacePersons()
	require.Len(t, dups, 1)
	assert.Equal(t, p.ID, dups[0])

	// Any admin can stop either one.
	races := s.Cache().ActiveRaces()
	require.NoError(t, s.StopRace(ctxAs("boss", models.RoleAdmin), races[0].ID))
	s.Flush()
	assert.Len(t, s.Cache().ActiveRaces(), 1)
	assert.Empty(t, s.Cache().DuplicateRacePersons())
}

type failingStore struct {
	*store.Memory
}

func (f *failingStore) UpsertActiveRace(ctx context.Context, r models.ActiveRace) error {
	return errors.New("connection reset")
}

func TestWriteFailureSurfacesAsSyncError(t *testing.T) {
	mem := store.NewMemory()
	clock := clockwork.NewFakeClock()

	errCh := make(chan *SyncError, 1)
	s := New(&failingStore{mem}, mem, WithClock(clock), WithSyncErrorHandler(func(e *SyncError) {
		errCh <- e
	}))
	require.NoError(t, s.Subscribe(context.Background()))
	defer s.Close()

	p := addPerson(t, s, "Alice")
	_, err := s.StartRace(ctxAs("op1", models.RoleUser), p.ID, nil)
	require.NoError(t, err, "start returns before the write is acknowledged")
	s.Flush()

	select {
	case e := <-errCh:
		assert.Equal(t, "startRace", e.Op)
	default:
		t.Fatal("expected a sync error")
	}

	// The cache never saw the failed write and keeps serving.
	assert.Empty(t, s.Cache().ActiveRaces())
}

type failingFeed struct {
	*store.Memory
	refuse store.Collection
}

func (f *failingFeed) Subscribe(ctx context.Context, c store.Collection, h store.SnapshotHandler) (store.Subscription, error) {
	if c == f.refuse {
		return nil, errors.New("subscription refused")
	}
	return f.Memory.Subscribe(ctx, c, h)
}

func TestSubscribeFailureIsNonFatal(t *testing.T) {
	mem := store.NewMemory()
	feed := &failingFeed{Memory: mem, refuse: store.CollectionResults}

	var ops []string
	s := New(mem, feed, WithClock(clockwork.NewFakeClock()), WithSyncErrorHandler(func(e *SyncError) {
		ops = append(ops, e.Op)
	}))
	require.NoError(t, s.Subscribe(context.Background()))
	defer s.Close()

	assert.Equal(t, []string{"subscribe results"}, ops)

	// The other collections still attached: a person write reaches the cache.
	p := addPerson(t, s, "Alice")
	_, ok := s.Cache().PersonByID(p.ID)
	assert.True(t, ok)

	// The results view keeps serving what it last saw, which is nothing;
	// a write landing behind the dead subscription stays invisible.
	require.NoError(t, mem.UpsertResult(context.Background(), models.RaceResult{
		ID:       uuid.New(),
		PersonID: p.ID,
	}))
	assert.Empty(t, s.Cache().Results())
}
