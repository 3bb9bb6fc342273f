package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/trierg/go/internal/models"
)

type fakeStarter struct {
	started []uuid.UUID
	ests    []*models.EstimatedSplits
	failFor map[uuid.UUID]error
}

func (f *fakeStarter) StartRace(ctx context.Context, personID uuid.UUID, est *models.EstimatedSplits) (models.ActiveRace, error) {
	if err := f.failFor[personID]; err != nil {
		return models.ActiveRace{}, err
	}
	f.started = append(f.started, personID)
	f.ests = append(f.ests, est)
	return models.ActiveRace{ID: uuid.New(), PersonID: personID}, nil
}

func dur(d time.Duration) *time.Duration { return &d }

func TestQueueLaunchesOnlyWhenDrained(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	q := New([]uuid.UUID{p1, p2})
	starter := &fakeStarter{}

	errs := q.Launch(context.Background(), starter)
	require.Len(t, errs, 1, "launch before drain must refuse")
	assert.Empty(t, starter.started)

	next, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, p1, next)
	q.Collect(&models.EstimatedSplits{Treadmill: dur(10 * time.Minute)})

	next, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, p2, next)
	q.Skip()

	require.True(t, q.Drained())
	errs = q.Launch(context.Background(), starter)
	assert.Empty(t, errs)
	assert.Equal(t, []uuid.UUID{p1, p2}, starter.started)
	require.NotNil(t, starter.ests[0])
	assert.Nil(t, starter.ests[1], "skipped prompt starts without estimates")
}

func TestQueueCollectsPerPersonFailures(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	q := New([]uuid.UUID{p1, p2})
	q.Skip()
	q.Skip()

	boom := errors.New("person already has an active race")
	starter := &fakeStarter{failFor: map[uuid.UUID]error{p1: boom}}
	errs := q.Launch(context.Background(), starter)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, []uuid.UUID{p2}, starter.started, "one failure does not stop the batch")
}

func TestQueueLaunchesAtMostOnce(t *testing.T) {
	q := New(nil)
	starter := &fakeStarter{}
	assert.Empty(t, q.Launch(context.Background(), starter))
	assert.Len(t, q.Launch(context.Background(), starter), 1)
}
