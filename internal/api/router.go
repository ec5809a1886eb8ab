package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/autotag_server/config"
	"github.com/qs3c/autotag_server/internal/api/handler"
	"github.com/qs3c/autotag_server/internal/api/middleware"
	"github.com/qs3c/autotag_server/internal/pkg/metrics"
)

type Router struct {
	taggingHandler  *handler.TaggingHandler
	dispatchHandler *handler.DispatchHandler
	healthHandler   *handler.HealthHandler
	eventsHandler   *handler.EventsHandler
	httpMetrics     *metrics.Middleware
	cfg             *config.Config
}

// NewRouter httpMetrics 为 nil 时不统计请求指标，eventsHandler 为 nil 时不提供事件推送
func NewRouter(
	taggingHandler *handler.TaggingHandler,
	dispatchHandler *handler.DispatchHandler,
	healthHandler *handler.HealthHandler,
	eventsHandler *handler.EventsHandler,
	httpMetrics *metrics.Middleware,
	cfg *config.Config,
) *Router {
	return &Router{
		taggingHandler:  taggingHandler,
		dispatchHandler: dispatchHandler,
		healthHandler:   healthHandler,
		eventsHandler:   eventsHandler,
		httpMetrics:     httpMetrics,
		cfg:             cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID(), middleware.Logger())
	if r.httpMetrics != nil {
		engine.Use(r.httpMetrics.Handler())
	}
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", r.healthHandler.Check)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 调度触发，供外部定时器调用
	internal := engine.Group("/internal")
	internal.Use(middleware.DispatchToken(r.cfg.Queue.DispatchToken))
	{
		internal.POST("/dispatch/tick", r.dispatchHandler.Tick)
	}

	// WebSocket 握手自行校验令牌
	if r.eventsHandler != nil {
		engine.GET("/api/v1/tagging/events", r.eventsHandler.Stream)
	}

	api := engine.Group("/api/v1")
	api.Use(middleware.Auth(r.cfg.JWT.Secret))
	{
		jobs := api.Group("/tagging/jobs")
		{
			jobs.POST("", r.taggingHandler.Enqueue)
			jobs.GET("/:id", r.taggingHandler.GetJob)
			jobs.GET("/:id/wait", r.taggingHandler.WaitJob)
			jobs.POST("/:id/retry", r.taggingHandler.Retry)
			jobs.GET("/:id/reviews", r.taggingHandler.ListReviews)
		}

		reviews := api.Group("/tagging/reviews")
		{
			reviews.GET("/pending", r.taggingHandler.ListPendingReviews)
		}
	}

	return engine
}
