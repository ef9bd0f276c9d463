package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// 慢查询耗时（秒）
	DBSlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 看板拖拽结果计数
	BoardMoveCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_move_total",
			Help: "Board moves by outcome",
		},
		[]string{"outcome"}, // outcome: noop, confirmed, reconciled, rejected
	)

	// 线索操作计数
	LeadActionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_action_total",
			Help: "Lead lifecycle actions by action and result",
		},
		[]string{"action", "result"},
	)

	// 快照重载计数
	SnapshotReloadCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_reload_total",
			Help: "Full snapshot reloads by trigger and result",
		},
		[]string{"trigger", "result"}, // trigger: startup, timer, mq, reconcile, write
	)

	// 快照重载耗时（秒）
	SnapshotReloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapshot_reload_duration_seconds",
			Help:    "Full snapshot reload duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	// 月度营收重算计数
	RevenueRecomputeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revenue_recompute_total",
			Help: "Monthly revenue recomputations by result",
		},
		[]string{"result"},
	)

	// 线索录入计数
	LeadIntakeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_total",
			Help: "Public form submissions by source and result",
		},
		[]string{"source", "result"}, // result: created, duplicate, invalid, failed
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(statement string, duration time.Duration) {
	DBSlowQueryCount.WithLabelValues(statement).Inc()
	DBSlowQueryDuration.Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementBoardMove(outcome string) {
	BoardMoveCount.WithLabelValues(outcome).Inc()
}

func IncrementLeadAction(action, result string) {
	LeadActionCount.WithLabelValues(action, result).Inc()
}

// RecordSnapshotReload 记录一次全量重载
func RecordSnapshotReload(trigger, result string, duration time.Duration) {
	SnapshotReloadCount.WithLabelValues(trigger, result).Inc()
	SnapshotReloadDuration.Observe(duration.Seconds())
}

func IncrementRevenueRecompute(result string) {
	RevenueRecomputeCount.WithLabelValues(result).Inc()
}

func IncrementLeadIntake(source, result string) {
	LeadIntakeCount.WithLabelValues(source, result).Inc()
}
