package estimate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/trierg/go/internal/models"
)

func dur(d time.Duration) *time.Duration { return &d }

func TestMergeSetsTotalOnlyWhenComplete(t *testing.T) {
	got, err := Merge(nil, Input{
		Treadmill: Field{Touched: true, Value: "10:00"},
		SkiErg:    Field{Touched: true, Value: "12:00"},
	}, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, dur(10*time.Minute), got.Treadmill)
	assert.Equal(t, dur(12*time.Minute), got.SkiErg)
	assert.Nil(t, got.Rowing)
	assert.Nil(t, got.Total, "total must be absent while rowing is missing")

	got, err = Merge(got, Input{Rowing: Field{Touched: true, Value: "11:00"}}, 0)
	require.NoError(t, err)
	require.NotNil(t, got.Total)
	assert.Equal(t, 33*time.Minute, *got.Total)
}

func TestMergeClearingAFieldDropsTotal(t *testing.T) {
	existing := &models.EstimatedSplits{
		Treadmill: dur(10 * time.Minute),
		SkiErg:    dur(12 * time.Minute),
		Rowing:    dur(11 * time.Minute),
		Total:     dur(33 * time.Minute),
	}
	got, err := Merge(existing, Input{SkiErg: Field{Touched: true, Value: ""}}, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.SkiErg)
	assert.Nil(t, got.Total)
	assert.Equal(t, dur(10*time.Minute), got.Treadmill)
	assert.Equal(t, dur(11*time.Minute), got.Rowing)
}

func TestMergeUntouchedFieldsPreserved(t *testing.T) {
	existing := &models.EstimatedSplits{Treadmill: dur(9 * time.Minute)}
	got, err := Merge(existing, Input{Rowing: Field{Touched: true, Value: "11:30"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, dur(9*time.Minute), got.Treadmill)
	assert.Equal(t, dur(11*time.Minute+30*time.Second), got.Rowing)
}

func TestMergeLockedDisciplineIgnoresEdit(t *testing.T) {
	existing := &models.EstimatedSplits{Treadmill: dur(9 * time.Minute)}
	// Treadmill split already taken: its estimate is frozen.
	got, err := Merge(existing, Input{Treadmill: Field{Touched: true, Value: "8:00"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, dur(9*time.Minute), got.Treadmill)

	// Clearing a locked estimate is ignored too.
	got, err = Merge(existing, Input{Treadmill: Field{Touched: true, Value: ""}}, 1)
	require.NoError(t, err)
	assert.Equal(t, dur(9*time.Minute), got.Treadmill)
}

func TestMergeRejectsWholeEditOnBadField(t *testing.T) {
	existing := &models.EstimatedSplits{Treadmill: dur(9 * time.Minute)}
	got, err := Merge(existing, Input{
		SkiErg: Field{Touched: true, Value: "12:00"},
		Rowing: Field{Touched: true, Value: "not-a-time"},
	}, 0)
	assert.Nil(t, got)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, string(models.DisciplineRowing), verr.Field)
}

func TestMergeAllCleared(t *testing.T) {
	existing := &models.EstimatedSplits{Treadmill: dur(9 * time.Minute)}
	got, err := Merge(existing, Input{Treadmill: Field{Touched: true, Value: ""}}, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}
