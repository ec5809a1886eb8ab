package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/testutil"
)

func TestJobRepository_Enqueue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	opts := model.JobOptions{MatchingSources: model.AllMatchingSources(), RecognitionAccuracy: model.AccuracyPrecise}

	job, err := repo.Enqueue(ctx, "team-1", "asset-1", opts, model.TaskTypeManual)
	require.NoError(t, err)
	assert.Len(t, job.ID, 36)

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, found.Status)
	assert.Equal(t, model.TaskTypeManual, found.TaskType)
	assert.Equal(t, opts, found.Options)
	assert.NotNil(t, found.StartsAt)
	assert.Nil(t, found.EndsAt)
	assert.True(t, found.Result.IsEmpty())
}

func TestJobRepository_Enqueue_NoDeduplication(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, "team-1", "asset-1", model.JobOptions{}, "")
	require.NoError(t, err)
	second, err := repo.Enqueue(ctx, "team-1", "asset-1", model.JobOptions{}, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, model.TaskTypeDefault, first.TaskType)
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestJobRepository_GetPendingJobs_OrderedByStartsAt(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	base := time.Now().Add(-time.Hour)

	newest := testutil.TestJob(t, db, "team-1", "a-3", model.JobStatusPending, testutil.WithStartsAt(base.Add(2*time.Minute)))
	oldest := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusPending, testutil.WithStartsAt(base))
	middle := testutil.TestJob(t, db, "team-1", "a-2", model.JobStatusPending, testutil.WithStartsAt(base.Add(time.Minute)))
	testutil.TestJob(t, db, "team-1", "a-4", model.JobStatusProcessing, testutil.WithStartsAt(base.Add(-time.Hour)))

	jobs, err := repo.GetPendingJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, oldest.ID, jobs[0].ID)
	assert.Equal(t, middle.ID, jobs[1].ID)
	assert.Equal(t, newest.ID, jobs[2].ID)
}

func TestJobRepository_GetPendingJobs_WithLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	for i := 0; i < 5; i++ {
		testutil.TestJob(t, db, "team-1", "asset", model.JobStatusPending)
	}

	jobs, err := repo.GetPendingJobs(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestJobRepository_ClaimBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()

	testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusPending)
	testutil.TestJob(t, db, "team-1", "a-2", model.JobStatusPending)
	testutil.TestJob(t, db, "team-1", "a-3", model.JobStatusCompleted)

	result, err := repo.ClaimBatch(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, result.Claimed, 2)
	assert.Zero(t, result.Skipped)

	for _, job := range result.Claimed {
		assert.Equal(t, model.JobStatusProcessing, job.Status)
		found, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, found.Status)
	}

	// 再次领取不应拿到已处理中的任务
	again, err := repo.ClaimBatch(ctx, 30)
	require.NoError(t, err)
	assert.Empty(t, again.Claimed)
}

func TestJobRepository_TryClaim_OnlyOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	job := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusPending)

	ok, err := repo.TryClaim(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryClaim(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.TryClaim(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobRepository_ClaimBatch_CountsRaceSkips(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	job := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusPending)

	// 模拟另一个调度者在查询和更新之间抢先领取
	raced := false
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:race", func(tx *gorm.DB) {
		if raced {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true, SkipHooks: true}).
			Exec("UPDATE tagging_jobs SET status = ? WHERE id = ?", model.JobStatusProcessing, job.ID)
	}))

	result, err := repo.ClaimBatch(ctx, 30)
	require.NoError(t, err)
	assert.Empty(t, result.Claimed)
	assert.Equal(t, 1, result.Skipped)
}

func TestJobRepository_ClaimBatch_Concurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	const total = 10
	for i := 0; i < total; i++ {
		testutil.TestJob(t, db, "team-1", "asset", model.JobStatusPending)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[string]int)
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := repo.ClaimBatch(context.Background(), total)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, job := range result.Claimed {
				claimed[job.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, total)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestJobRepository_Complete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	job := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusProcessing)

	result := model.JobResult{
		Predictions: []model.SourcePrediction{{Source: model.SourceBasicInfo, Tags: []model.TagGuess{
			{LeafTagID: "t-1", TagPath: []string{"Nature"}, Confidence: 0.5},
		}}},
		ScoredTags: []model.ScoredTag{{LeafTagID: "t-1", TagPath: []string{"Nature"}, Score: 62,
			ConfidenceBySources: map[model.Source]float64{model.SourceBasicInfo: 0.5}}},
		Usage: &model.Usage{TotalTokens: 120},
	}
	require.NoError(t, repo.Complete(ctx, job.ID, result))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, found.Status)
	assert.NotNil(t, found.EndsAt)
	assert.Equal(t, result, found.Result)
	assert.Empty(t, found.Result.Error)
}

func TestJobRepository_Fail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	job := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusProcessing)

	require.NoError(t, repo.Fail(ctx, job.ID, "model returned no structured output"))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, found.Status)
	assert.NotNil(t, found.EndsAt)
	assert.Equal(t, "model returned no structured output", found.Result.Error)
	assert.Nil(t, found.Result.Predictions)
	assert.Nil(t, found.Result.ScoredTags)
}

func TestJobRepository_Reset(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	job := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusFailed,
		testutil.WithEndsAt(time.Now()),
		testutil.WithResult(model.JobResult{Error: "boom"}))

	ok, err := repo.Reset(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, found.Status)
	assert.Nil(t, found.StartsAt)
	assert.Nil(t, found.EndsAt)
	assert.True(t, found.Result.IsEmpty())

	// 重置后的任务可以再次被领取
	claim, err := repo.ClaimBatch(ctx, 30)
	require.NoError(t, err)
	require.Len(t, claim.Claimed, 1)
	assert.Equal(t, job.ID, claim.Claimed[0].ID)
}

func TestJobRepository_Reset_OnlyFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()

	for _, status := range []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing, model.JobStatusCompleted} {
		job := testutil.TestJob(t, db, "team-1", "a-1", status)
		ok, err := repo.Reset(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, ok, "status %s should not be reset", status)

		found, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, status, found.Status)
	}
}

func TestJobRepository_CountByStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusPending)
	testutil.TestJob(t, db, "team-1", "a-2", model.JobStatusPending)
	testutil.TestJob(t, db, "team-1", "a-3", model.JobStatusFailed)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.JobStatusPending])
	assert.Equal(t, int64(1), counts[model.JobStatusFailed])
	assert.Zero(t, counts[model.JobStatusCompleted])
}

func TestJobRepository_PruneTerminal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	oldDone := testutil.TestJob(t, db, "team-1", "a-1", model.JobStatusCompleted, testutil.WithEndsAt(old))
	testutil.TestJob(t, db, "team-1", "a-2", model.JobStatusFailed, testutil.WithEndsAt(old))
	recent := testutil.TestJob(t, db, "team-1", "a-3", model.JobStatusCompleted, testutil.WithEndsAt(time.Now()))
	pending := testutil.TestJob(t, db, "team-1", "a-4", model.JobStatusPending)
	review := testutil.TestReviewItem(t, db, oldDone, "t-1", 80, model.ReviewStatusPending)

	cutoff := time.Now().Add(-24 * time.Hour)

	n, err := repo.PruneTerminal(ctx, cutoff, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = repo.GetByID(ctx, oldDone.ID)
	require.NoError(t, err, "dry run must not delete")

	n, err = repo.PruneTerminal(ctx, cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.GetByID(ctx, oldDone.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetByID(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(ctx, pending.ID)
	assert.NoError(t, err)

	var kept model.ReviewItem
	require.NoError(t, db.First(&kept, review.ID).Error)
	assert.Equal(t, oldDone.ID, kept.JobID)
}
