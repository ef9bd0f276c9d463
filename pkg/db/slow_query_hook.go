package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"lunexops/pkg/metrics"
	"lunexops/pkg/otel"
)

type queryStateKey struct{}

type queryState struct {
	start time.Time
	sql   string
	span  trace.Span
}

// SlowQueryTracer 给每条查询开 span，超过阈值的记慢查询日志和指标
type SlowQueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
}

// NewSlowQueryTracer 阈值为 0 时默认 100ms
func NewSlowQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *SlowQueryTracer {
	if slowThreshold == 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &SlowQueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// TraceQueryStart 查询开始时的钩子
func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := otel.DBSpan(ctx, operationOf(data.SQL), truncate(data.SQL, 500))
	return context.WithValue(ctx, queryStateKey{}, &queryState{
		start: time.Now(),
		sql:   data.SQL,
		span:  span,
	})
}

// TraceQueryEnd 查询结束时的钩子；pgx v5 的 TraceQueryEndData 不带 SQL，只能从 context 取
func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	st, ok := ctx.Value(queryStateKey{}).(*queryState)
	if !ok {
		return
	}
	otel.EndDBSpan(st.span, data.Err)

	duration := time.Since(st.start)
	if duration <= t.slowThreshold {
		return
	}

	sql := truncate(st.sql, 200)
	t.logger.Warn("slow-query",
		zap.String("sql", sql),
		zap.Duration("took", duration),
		zap.String("command_tag", data.CommandTag.String()),
	)
	metrics.IncrementSlowQuery(sql, duration)
}

// operationOf 取 SQL 第一个关键字作为 span 名，例如 SELECT / INSERT
func operationOf(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "QUERY"
	}
	return strings.ToUpper(fields[0])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
