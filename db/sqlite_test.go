package db

import (
	"path/filepath"
	"testing"
	"time"

	"speech-emotion/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *SQLiteClient {
	t.Helper()
	client, err := NewSQLiteClient(filepath.Join(t.TempDir(), "data", "runs.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRecordAndListRuns(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := client.RecordRun(models.InferenceRun{
		CreatedAt:     base,
		SourceFormat:  "wav",
		SourceSeconds: 2.5,
		SourceRate:    44100,
		Channels:      2,
		Outcome:       models.OutcomeOK,
		LatencyMs:     41.5,
	})
	require.NoError(t, err)

	second, err := client.RecordRun(models.InferenceRun{
		CreatedAt:    base.Add(time.Minute),
		SourceFormat: "mp3",
		Outcome:      models.OutcomeDecodeError,
		LatencyMs:    3,
	})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	runs, err := client.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, models.OutcomeDecodeError, runs[0].Outcome)

	assert.Equal(t, "wav", runs[1].SourceFormat)
	assert.InDelta(t, 2.5, runs[1].SourceSeconds, 1e-12)
	assert.Equal(t, 44100, runs[1].SourceRate)
	assert.Equal(t, 2, runs[1].Channels)
	assert.InDelta(t, 41.5, runs[1].LatencyMs, 1e-12)
	assert.True(t, base.Equal(runs[1].CreatedAt), "created_at %v", runs[1].CreatedAt)

	limited, err := client.RecentRuns(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordRunRequiresOutcome(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	_, err := client.RecordRun(models.InferenceRun{SourceFormat: "wav"})
	require.Error(t, err)
}

func TestOutcomeCounts(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	for _, o := range []models.Outcome{models.OutcomeOK, models.OutcomeOK, models.OutcomeContractMismatch} {
		_, err := client.RecordRun(models.InferenceRun{Outcome: o})
		require.NoError(t, err)
	}

	counts, err := client.OutcomeCounts()
	require.NoError(t, err)
	assert.Len(t, counts, len(models.Outcomes))
	assert.Equal(t, 2, counts[models.OutcomeOK])
	assert.Equal(t, 1, counts[models.OutcomeContractMismatch])
	assert.Equal(t, 0, counts[models.OutcomeInferenceError])
}

func TestPruneRuns(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	now := time.Now().UTC()
	_, err := client.RecordRun(models.InferenceRun{CreatedAt: now.Add(-48 * time.Hour), Outcome: models.OutcomeOK})
	require.NoError(t, err)
	_, err = client.RecordRun(models.InferenceRun{CreatedAt: now, Outcome: models.OutcomeOK})
	require.NoError(t, err)

	removed, err := client.PruneRuns(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	runs, err := client.RecentRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
