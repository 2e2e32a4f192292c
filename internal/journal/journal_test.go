package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func ptr[T any](v T) *T { return &v }

// TestJournal_RunLifecycle checks a run with epochs round-trips.
func TestJournal_RunLifecycle(t *testing.T) {
	j := openJournal(t)

	run, err := j.StartRun("kitti", "model:\n  rnn_hidden_size: 8\n")
	require.NoError(t, err)
	assert.NotZero(t, run.ID)

	require.NoError(t, j.RecordEpoch(run, Epoch{Number: 1, TrainLoss: 2, ValidLoss: ptr(1.5), Steps: 10, Duration: time.Second}))
	require.NoError(t, j.RecordEpoch(run, Epoch{Number: 2, TrainLoss: 1, ValidLoss: ptr(0.5), Steps: 10, Duration: time.Second}))
	require.NoError(t, j.RecordEpoch(run, Epoch{Number: 3, TrainLoss: 0.8, ValidLoss: ptr(0.9), Steps: 10}))
	require.NoError(t, j.FinishRun(run, StatusFinished))

	got, err := j.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	assert.NotNil(t, got.FinishedAt)
	require.NotNil(t, got.BestValidLoss)
	assert.InDelta(t, 0.5, *got.BestValidLoss, 1e-12)
	assert.Equal(t, 2, *got.BestEpoch)
	require.Len(t, got.Epochs, 3)
	assert.Equal(t, 1, got.Epochs[0].Number)
	assert.Equal(t, time.Second, got.Epochs[0].Duration)
}

// TestJournal_DuplicateEpoch checks an epoch number is unique per run.
func TestJournal_DuplicateEpoch(t *testing.T) {
	j := openJournal(t)
	run, err := j.StartRun("a", "")
	require.NoError(t, err)

	require.NoError(t, j.RecordEpoch(run, Epoch{Number: 1, TrainLoss: 1}))
	assert.Error(t, j.RecordEpoch(run, Epoch{Number: 1, TrainLoss: 1}))
}

// TestJournal_Runs checks listing order and missing runs.
func TestJournal_Runs(t *testing.T) {
	j := openJournal(t)
	first, err := j.StartRun("first", "")
	require.NoError(t, err)
	second, err := j.StartRun("second", "")
	require.NoError(t, err)

	runs, err := j.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	_, err = j.Run(999)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// TestLogger_LogMode checks gorm levels map onto zerolog levels.
func TestLogger_LogMode(t *testing.T) {
	l := NewLogger(zerolog.Nop())

	assert.Equal(t, zerolog.Disabled, l.LogMode(gormlogger.Silent).(Logger).GetLevel())
	assert.Equal(t, zerolog.WarnLevel, l.LogMode(gormlogger.Warn).(Logger).GetLevel())
	assert.Equal(t, zerolog.TraceLevel, l.LogMode(gormlogger.Info+1).(Logger).GetLevel())
}
