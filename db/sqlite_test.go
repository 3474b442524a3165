package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history", "training.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, store.RecordTraining(ctx, []TrainingLog{
		{RunID: "a", ModelName: "knn", Accuracy: 0.8, MacroF1: 0.7, WeightedF1: 0.75, TrainSize: 80, TestSize: 20, TrainedAt: first},
		{RunID: "a", ModelName: "lr", Accuracy: 0.85, MacroF1: 0.8, WeightedF1: 0.82, TrainSize: 80, TestSize: 20, TrainedAt: first},
	}))
	require.NoError(t, store.RecordTraining(ctx, []TrainingLog{
		{RunID: "b", ModelName: "voting", Accuracy: 0.9, MacroF1: 0.88, WeightedF1: 0.89, TrainSize: 80, TestSize: 20, TrainedAt: second},
	}))

	logs, err := store.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "b", logs[0].RunID)
	assert.Equal(t, "voting", logs[0].ModelName)
	assert.InDelta(t, 0.9, logs[0].Accuracy, 1e-12)
	assert.Equal(t, 80, logs[0].TrainSize)
	assert.Equal(t, 20, logs[0].TestSize)
	assert.True(t, logs[0].TrainedAt.Equal(second))
	// same timestamp: later insert first
	assert.Equal(t, "lr", logs[1].ModelName)
	assert.Equal(t, "knn", logs[2].ModelName)

	limited, err := store.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestHistoryEmpty(t *testing.T) {
	store := openTestStore(t)
	logs, err := store.History(context.Background(), 20)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestRecordTrainingRejectsUnnamedModel(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	err := store.RecordTraining(ctx, []TrainingLog{
		{RunID: "a", ModelName: "knn", TrainedAt: time.Now()},
		{RunID: "a", TrainedAt: time.Now()},
	})
	require.Error(t, err)

	logs, err := store.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logs, "failed run must not be partially recorded")
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordTraining(context.Background(), []TrainingLog{
		{RunID: "a", ModelName: "rf", Accuracy: 0.7, TrainedAt: time.Now()},
	}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	logs, err := store.History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "rf", logs[0].ModelName)
}

func TestClosedStore(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.History(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.RecordTraining(context.Background(), []TrainingLog{{ModelName: "x"}}), ErrClosed)
	assert.NoError(t, store.Close())
}
