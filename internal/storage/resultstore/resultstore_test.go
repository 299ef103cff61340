// internal/storage/resultstore/resultstore_test.go
package resultstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inklore/toonforge/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord() Record {
	return Record{
		EntityID:     "scene-1",
		ArtifactType: models.ArtifactToonplay,
		Candidate: &models.Candidate{
			ID:           "cand-1",
			ArtifactType: models.ArtifactToonplay,
			Panels: []models.Panel{
				{Index: 1, ShotType: models.ShotWide, Description: "开场"},
			},
		},
		Evaluation: &models.EvaluationResult{
			CategoryScores: map[string]models.CategoryScore{
				models.CategoryPacing: {Score: 3.5},
			},
			OverallScore: 3.5,
			Pass:         true,
			EvaluatedAt:  time.Now(),
		},
		Metadata: map[string]string{"run_id": "run-1"},
	}
}

func TestUpsertAndGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleRecord()))

	rec, err := store.Get(ctx, "scene-1", models.ArtifactToonplay)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "scene-1", rec.EntityID)
	assert.Equal(t, "cand-1", rec.Candidate.ID)
	assert.InDelta(t, 3.5, rec.Evaluation.OverallScore, 0.001)
	assert.True(t, rec.Evaluation.Pass)
	assert.Equal(t, "run-1", rec.Metadata["run_id"])
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestUpsertReplacesExistingRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleRecord()))

	updated := sampleRecord()
	updated.Candidate.ID = "cand-2"
	updated.Evaluation.OverallScore = 4.2
	require.NoError(t, store.Upsert(ctx, updated))

	rec, err := store.Get(ctx, "scene-1", models.ArtifactToonplay)
	require.NoError(t, err)
	assert.Equal(t, "cand-2", rec.Candidate.ID)
	assert.InDelta(t, 4.2, rec.Evaluation.OverallScore, 0.001)
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := openTestStore(t)

	rec, err := store.Get(context.Background(), "missing", models.ArtifactToonplay)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSameEntityDifferentArtifactTypes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleRecord()))

	prose := sampleRecord()
	prose.ArtifactType = models.ArtifactProseScene
	prose.Candidate.ID = "cand-prose"
	require.NoError(t, store.Upsert(ctx, prose))

	toonplayRec, err := store.Get(ctx, "scene-1", models.ArtifactToonplay)
	require.NoError(t, err)
	proseRec, err := store.Get(ctx, "scene-1", models.ArtifactProseScene)
	require.NoError(t, err)

	assert.Equal(t, "cand-1", toonplayRec.Candidate.ID)
	assert.Equal(t, "cand-prose", proseRec.Candidate.ID)
}

func TestSaveAndLoadHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	history := []models.IterationRecord{
		{Index: 0, OverallScore: 2.5, Timestamp: time.Now()},
		{Index: 1, OverallScore: 2.8, Timestamp: time.Now()},
		{Index: 2, OverallScore: 3.6, Pass: true, Timestamp: time.Now()},
	}
	require.NoError(t, store.SaveHistory(ctx, "scene-1", models.ArtifactToonplay, "run-1", history))

	loaded, err := store.History(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	for i, rec := range loaded {
		assert.Equal(t, i, rec.Index)
		assert.InDelta(t, history[i].OverallScore, rec.OverallScore, 0.001)
	}
	assert.True(t, loaded[2].Pass)
}

func TestHistoryUnknownRunIsEmpty(t *testing.T) {
	store := openTestStore(t)

	loaded, err := store.History(context.Background(), "missing-run")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
