package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/internal/model/dto"
	"github.com/qs3c/autotag_server/internal/pkg/response"
	"github.com/qs3c/autotag_server/internal/worker"
)

// Ticker 执行一次调度
type Ticker interface {
	Tick(ctx context.Context) (worker.DispatchReport, error)
}

type DispatchHandler struct {
	dispatcher Ticker
}

func NewDispatchHandler(dispatcher Ticker) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

// Tick 外部定时器触发一次调度，领取后立即返回，任务在后台处理
// POST /internal/dispatch/tick
func (h *DispatchHandler) Tick(c *gin.Context) {
	report, err := h.dispatcher.Tick(c.Request.Context())
	resp := dto.DispatchResponse{
		Claimed:          report.Claimed,
		SkippedDueToRace: report.SkippedDueToRace,
	}
	if err != nil {
		// 出错前已领取的任务仍在后台处理，计数照常返回
		zap.S().Named("http").Errorw("dispatch tick failed", "claimed", report.Claimed, "error", err)
		response.ErrorWithData(c, response.CodeServerError, "", resp)
		return
	}

	response.Success(c, resp)
}
