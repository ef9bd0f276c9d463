package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey struct{}

// GenerateTraceID 生成一个新的 trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(contextKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey{}, traceID)
}

// HeaderName 返回 trace ID 的 HTTP / MQ header 名称
func HeaderName() string {
	return "X-Trace-ID"
}

// FromHeaders 依次从 X-Trace-ID、X-Request-ID 中取值，都为空时生成新的 ID
func FromHeaders(get func(string) string) string {
	for _, name := range []string{HeaderName(), "X-Request-ID"} {
		if v := get(name); v != "" {
			return v
		}
	}
	return GenerateTraceID()
}
