package middleware

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "requestID"
)

// 日志中需要隐去取值的查询参数
var sensitiveQueryParams = []string{"token", "access_token"}

// RequestID 沿用上游传入的请求 ID，没有则生成
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger 请求结束后按状态码分级记录
func Logger() gin.HandlerFunc {
	log := zap.S().Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL.RawQuery)

		c.Next()

		fields := []interface{}{
			"request_id", c.GetString(RequestIDKey),
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"latency", time.Since(start),
			"response_bytes", c.Writer.Size(),
		}
		if teamID, ok := GetTeamID(c); ok {
			fields = append(fields, "team_id", teamID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		msg := "Request completed"
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Errorw(msg, fields...)
		case status >= 400:
			log.Warnw(msg, fields...)
		default:
			log.Infow(msg, fields...)
		}
	}
}

// redactQuery 隐去查询串中的令牌，无法解析时整体丢弃
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	redacted := false
	for _, key := range sensitiveQueryParams {
		if _, ok := values[key]; ok {
			values.Set(key, "REDACTED")
			redacted = true
		}
	}
	if !redacted {
		return raw
	}
	return values.Encode()
}
