package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/internal/pkg/jwt"
	"github.com/qs3c/autotag_server/internal/pkg/response"
	"github.com/qs3c/autotag_server/internal/pkg/ws"
)

type EventsHandler struct {
	hub       *ws.Hub
	jwtSecret string
	upgrader  websocket.Upgrader
}

// NewEventsHandler allowedOrigins 为空或包含 * 时不校验 Origin
func NewEventsHandler(hub *ws.Hub, jwtSecret string, allowedOrigins []string) *EventsHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	_, allowAll := allowed["*"]

	return &EventsHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 || allowAll {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Stream 推送本团队的任务终态事件
// GET /api/v1/tagging/events?token=xxx
func (h *EventsHandler) Stream(c *gin.Context) {
	// 浏览器无法为 WebSocket 设置请求头，令牌也可以放在 query 中
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		response.AuthError(c, "请提供认证信息")
		return
	}

	claims, err := jwt.ParseToken(token, h.jwtSecret)
	if err != nil || claims.TeamID == "" {
		response.AuthError(c, "认证失败或已过期")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.S().Named("http").Warnw("failed to upgrade connection", "team_id", claims.TeamID, "error", err)
		return
	}

	client := &ws.Client{TeamID: claims.TeamID, Conn: conn}
	h.hub.Register(client)

	// 保持连接，读取消息（主要用于检测断开）
	go func() {
		defer func() {
			h.hub.Unregister(client)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
