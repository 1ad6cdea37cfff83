package job_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokeshec23/GC-AI/features/job"
	"github.com/lokeshec23/GC-AI/internal/testutils"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	j1 := &job.Job{
		SessionID: "session-1",
		Kind:      "ingest",
		Status:    "completed",
		Payload:   json.RawMessage(`{"failed_chunks": 1}`),
		Error:     "1 of 5 chunks failed",
	}
	require.NoError(t, repo.Save(ctx, j1))

	// Sleep to ensure time difference for ordering test
	time.Sleep(100 * time.Millisecond)

	j2 := &job.Job{
		SessionID: "session-2",
		Kind:      "compare",
		Status:    "failed",
		Payload:   json.RawMessage(`{"error": "quota"}`),
		Error:     "gemini quota_exceeded",
	}
	require.NoError(t, repo.Save(ctx, j2))

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, j2.ID, jobs[0].ID, "Newest job should be first")
	assert.Equal(t, j1.ID, jobs[1].ID, "Oldest job should be last")

	got, err := repo.Get(ctx, j1.ID)
	require.NoError(t, err)
	assert.Equal(t, "session-1", got.SessionID)
	assert.JSONEq(t, `{"failed_chunks": 1}`, string(got.Payload))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, repo.Delete(ctx, j1.ID))
	_, err = repo.Get(ctx, j1.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
