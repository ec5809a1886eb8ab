package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/internal/api/middleware"
	"github.com/qs3c/autotag_server/internal/model/dto"
	"github.com/qs3c/autotag_server/internal/pkg/response"
	"github.com/qs3c/autotag_server/internal/service"
)

type TaggingHandler struct {
	taggingService *service.TaggingService
}

func NewTaggingHandler(taggingService *service.TaggingService) *TaggingHandler {
	return &TaggingHandler{
		taggingService: taggingService,
	}
}

// Enqueue 创建打标任务
// POST /api/v1/tagging/jobs
func (h *TaggingHandler) Enqueue(c *gin.Context) {
	teamID, ok := middleware.GetTeamID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.taggingService.Enqueue(c.Request.Context(), teamID, &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, resp)
}

// GetJob 查询任务状态
// GET /api/v1/tagging/jobs/:id
func (h *TaggingHandler) GetJob(c *gin.Context) {
	teamID, ok := middleware.GetTeamID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.taggingService.GetJobStatus(c.Request.Context(), teamID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, resp)
}

// WaitJob 长轮询等待任务结束，timeout 单位为秒
// GET /api/v1/tagging/jobs/:id/wait?timeout=30
func (h *TaggingHandler) WaitJob(c *gin.Context) {
	teamID, ok := middleware.GetTeamID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	timeout := service.DefaultWaitTimeout
	if raw := c.Query("timeout"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			response.ParamError(c, "timeout 必须是非负整数")
			return
		}
		timeout = time.Duration(seconds) * time.Second
	}

	resp, err := h.taggingService.WaitJob(c.Request.Context(), teamID, c.Param("id"), timeout)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, resp)
}

// Retry 重试失败的任务
// POST /api/v1/tagging/jobs/:id/retry
func (h *TaggingHandler) Retry(c *gin.Context) {
	teamID, ok := middleware.GetTeamID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	jobID := c.Param("id")
	if err := h.taggingService.Retry(c.Request.Context(), teamID, jobID); err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, dto.EnqueueResponse{JobID: jobID})
}

// ListReviews 任务产生的审核记录
// GET /api/v1/tagging/jobs/:id/reviews
func (h *TaggingHandler) ListReviews(c *gin.Context) {
	teamID, ok := middleware.GetTeamID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	items, err := h.taggingService.ListReviews(c.Request.Context(), teamID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.SuccessList(c, len(items), items)
}

// ListPendingReviews 团队待审核记录
// GET /api/v1/tagging/reviews/pending?limit=50
func (h *TaggingHandler) ListPendingReviews(c *gin.Context) {
	teamID, ok := middleware.GetTeamID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.ParamError(c, "limit 必须是正整数")
			return
		}
		limit = n
	}

	items, err := h.taggingService.ListPendingReviews(c.Request.Context(), teamID, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.SuccessList(c, len(items), items)
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound), errors.Is(err, service.ErrAssetNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrInvalidTaskType), errors.Is(err, service.ErrNoSourceSelected):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrJobNotRetryable):
		response.ConflictError(c, err.Error())
	default:
		_ = c.Error(err)
		zap.S().Named("http").Errorw("request failed", "path", c.FullPath(), "error", err)
		response.ServerError(c, "")
	}
}
