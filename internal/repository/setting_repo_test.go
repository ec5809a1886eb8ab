package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/testutil"
)

func TestSettingRepository_GetTaggingMode(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSettingRepository(db)
	ctx := context.Background()
	testutil.TestTeamSetting(t, db, "team-direct", model.TaggingModeDirect)
	testutil.TestTeamSetting(t, db, "team-odd", "bulk")

	mode, err := repo.GetTaggingMode(ctx, "team-direct")
	require.NoError(t, err)
	assert.Equal(t, model.TaggingModeDirect, mode)

	mode, err = repo.GetTaggingMode(ctx, "team-odd")
	require.NoError(t, err)
	assert.Equal(t, model.TaggingModeReview, mode)

	mode, err = repo.GetTaggingMode(ctx, "team-unknown")
	require.NoError(t, err)
	assert.Equal(t, model.TaggingModeReview, mode)
}

func TestSettingRepository_GetDefaults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSettingRepository(db)
	ctx := context.Background()
	sources := model.MatchingSources{BasicInfo: true, TagKeywords: true}
	testutil.TestTeamSetting(t, db, "team-1", model.TaggingModeReview,
		testutil.WithMatchingSources(sources),
		testutil.WithAccuracy(model.AccuracyPrecise))

	opts, err := repo.GetDefaults(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, sources, opts.MatchingSources)
	assert.Equal(t, model.AccuracyPrecise, opts.RecognitionAccuracy)

	opts, err = repo.GetDefaults(ctx, "team-unknown")
	require.NoError(t, err)
	assert.Equal(t, model.AllMatchingSources(), opts.MatchingSources)
	assert.Equal(t, model.AccuracyBalanced, opts.RecognitionAccuracy)
}

func TestSettingRepository_Save(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSettingRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.TeamSetting{TeamID: "team-1", TaggingMode: model.TaggingModeDirect}))
	mode, err := repo.GetTaggingMode(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaggingModeDirect, mode)

	require.NoError(t, repo.Save(ctx, &model.TeamSetting{TeamID: "team-1", TaggingMode: model.TaggingModeReview}))
	mode, err = repo.GetTaggingMode(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaggingModeReview, mode)
}
