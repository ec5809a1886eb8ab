package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/autotag_server/internal/pkg/jwt"
	"github.com/qs3c/autotag_server/internal/pkg/response"
)

const (
	TeamIDKey = "teamID"

	DispatchTokenHeader = "X-Dispatch-Token"
)

// Auth JWT 认证中间件，令牌只携带团队 ID
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil || claims.TeamID == "" {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(TeamIDKey, claims.TeamID)
		c.Next()
	}
}

// GetTeamID 从上下文获取团队 ID
func GetTeamID(c *gin.Context) (string, bool) {
	teamID, exists := c.Get(TeamIDKey)
	if !exists {
		return "", false
	}
	id, ok := teamID.(string)
	return id, ok && id != ""
}

// DispatchToken 调度触发接口的共享令牌校验，未配置令牌时拒绝所有请求
func DispatchToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(DispatchTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			response.AuthError(c, "调度令牌无效")
			c.Abort()
			return
		}
		c.Next()
	}
}
