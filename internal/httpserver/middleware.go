package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/service/auth"
	"lunexops/internal/session"
	"lunexops/pkg/metrics"
	"lunexops/pkg/rbac"
	"lunexops/pkg/trace"
	"lunexops/pkg/util"
)

// TraceMiddleware 从请求头取 trace_id（没有就生成），写入 context 和响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeaders(c.GetHeader)
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// RequestLogger 请求日志 + HTTP 延迟指标
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), latency)

		logger.Info("HTTP Request",
			zap.String("trace_id", trace.FromContext(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// AuthMiddleware 校验 Bearer token，把 session 放进 request context
func AuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			abortWith(c, apperr.New(apperr.CodeUnauthenticated, "missing token"))
			return
		}

		sess, err := authService.Parse(token)
		if err != nil {
			abortWith(c, err)
			return
		}

		c.Request = c.Request.WithContext(session.WithContext(c.Request.Context(), sess))
		c.Next()
	}
}

// RequirePermission 中间件：要求当前 session 的角色具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := session.FromContext(c.Request.Context())
		if !ok {
			abortWith(c, apperr.New(apperr.CodeUnauthenticated, "authentication required"))
			return
		}
		if err := rbac.CheckPermission(sess.Role, permission); err != nil {
			abortWith(c, apperr.Forbidden(permission))
			return
		}
		c.Next()
	}
}

func abortWith(c *gin.Context, err error) {
	code := apperr.GetCode(err)
	body := gin.H{"error": "authentication required", "code": code}
	if ae, ok := err.(*apperr.Error); ok {
		body["error"] = ae.Message
	}
	c.AbortWithStatusJSON(code.HTTPStatus(), body)
}
