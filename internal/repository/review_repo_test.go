package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/testutil"
)

func TestReviewRepository_CreateBatchAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewReviewRepository(db)
	ctx := context.Background()
	job := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusCompleted)

	items := []*model.ReviewItem{
		{JobID: job.ID, AssetID: "a-1", TeamID: "team-1", LeafTagID: "t-low", TagPath: model.StringArray{"A", "Low"}, Score: 40, Status: model.ReviewStatusPending},
		{JobID: job.ID, AssetID: "a-1", TeamID: "team-1", LeafTagID: "t-high", TagPath: model.StringArray{"A", "High"}, Score: 90, Status: model.ReviewStatusPending},
	}
	require.NoError(t, repo.CreateBatch(ctx, items))
	for _, item := range items {
		assert.NotZero(t, item.ID)
	}

	found, err := repo.ListByJobID(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "t-high", found[0].LeafTagID)
	assert.Equal(t, model.StringArray{"A", "High"}, found[0].TagPath)
	assert.Equal(t, "t-low", found[1].LeafTagID)
}

func TestReviewRepository_CreateBatch_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewReviewRepository(db)
	assert.NoError(t, repo.CreateBatch(context.Background(), nil))
}

func TestReviewRepository_ListPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewReviewRepository(db)
	job := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusCompleted)
	other := testutil.TestJob(t, db, "team-2", "a-2", model.JobStatusCompleted)

	testutil.TestReviewItem(t, db, job, "t-1", 80, model.ReviewStatusPending)
	testutil.TestReviewItem(t, db, job, "t-2", 70, model.ReviewStatusApproved)
	testutil.TestReviewItem(t, db, other, "t-3", 60, model.ReviewStatusPending)

	items, err := repo.ListPending(context.Background(), "team-1", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "t-1", items[0].LeafTagID)
}
