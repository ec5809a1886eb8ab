package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/autotag_server/internal/pkg/response"
	"github.com/qs3c/autotag_server/internal/worker"
)

type fakeTicker struct {
	report worker.DispatchReport
	err    error
}

func (f *fakeTicker) Tick(ctx context.Context) (worker.DispatchReport, error) {
	return f.report, f.err
}

func TestDispatchHandler_Tick(t *testing.T) {
	h := NewDispatchHandler(&fakeTicker{report: worker.DispatchReport{Claimed: 3, SkippedDueToRace: 1}})
	router := gin.New()
	router.POST("/tick", h.Tick)

	w := performRequest(router, "POST", "/tick", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["claimed"])
	assert.Equal(t, float64(1), data["skipped_due_to_race"])
}

func TestDispatchHandler_Tick_Error(t *testing.T) {
	h := NewDispatchHandler(&fakeTicker{err: errors.New("db down")})
	router := gin.New()
	router.POST("/tick", h.Tick)

	w := performRequest(router, "POST", "/tick", nil)
	assert.Equal(t, response.CodeServerError, parseResponse(t, w).Code)
}

func TestDispatchHandler_Tick_PartialClaim(t *testing.T) {
	h := NewDispatchHandler(&fakeTicker{
		report: worker.DispatchReport{Claimed: 2, SkippedDueToRace: 1},
		err:    errors.New("claim batch: connection reset"),
	})
	router := gin.New()
	router.POST("/tick", h.Tick)

	w := performRequest(router, "POST", "/tick", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeServerError, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["claimed"])
	assert.Equal(t, float64(1), data["skipped_due_to_race"])
}
