package statedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, db.Close()) })

	return db
}

func TestOpen_MigratesFreshDatabase(t *testing.T) {
	db := openTestDB(t)

	// Empty tables behave, they don't error.
	last, err := db.LastSuccess(context.Background())
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	n, err := db.NewItems(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	history, err := db.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOpen_ReopenExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	db, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, db.SetNewItems(ctx, 7))
	require.NoError(t, db.Close())

	// Reopening runs migrations again; they must be a no-op.
	db, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.NewItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestRecordCycle_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	started := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)

	require.NoError(t, db.RecordCycle(ctx, CycleRecord{
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    OutcomeSuccess,
		NewItems:   4,
		Trigger:    TriggerScheduled,
	}))

	history, err := db.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)

	rec := history[0]
	assert.True(t, rec.StartedAt.Equal(started))
	assert.True(t, rec.FinishedAt.Equal(finished))
	assert.Equal(t, OutcomeSuccess, rec.Outcome)
	assert.Equal(t, 4, rec.NewItems)
	assert.Equal(t, TriggerScheduled, rec.Trigger)
}

func TestRecordCycle_RejectsUnknownOutcome(t *testing.T) {
	db := openTestDB(t)

	err := db.RecordCycle(context.Background(), CycleRecord{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Outcome:    "partial",
		Trigger:    TriggerManual,
	})
	assert.Error(t, err)
}

func TestLastSuccess_IgnoresFailedCycles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordCycle(ctx, CycleRecord{
		StartedAt:  base,
		FinishedAt: base.Add(time.Second),
		Outcome:    OutcomeSuccess,
		Trigger:    TriggerScheduled,
	}))
	require.NoError(t, db.RecordCycle(ctx, CycleRecord{
		StartedAt:  base.Add(time.Minute),
		FinishedAt: base.Add(time.Minute + time.Second),
		Outcome:    OutcomeFailure,
		Trigger:    TriggerScheduled,
	}))

	last, err := db.LastSuccess(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(base.Add(time.Second)), "a later failure must not advance last success")
}

func TestHistory_NewestFirstAndBounded(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i := range historyLimit + 5 {
		require.NoError(t, db.RecordCycle(ctx, CycleRecord{
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Outcome:    OutcomeSuccess,
			Trigger:    TriggerScheduled,
		}))
	}

	history, err := db.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, historyLimit)

	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].FinishedAt.Before(history[i-1].FinishedAt))
	}
}

func TestSetNewItems_Overwrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetNewItems(ctx, 12))
	require.NoError(t, db.SetNewItems(ctx, 0))

	n, err := db.NewItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
