package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"lunexops/pkg/trace"
)

// InsertEventInTx 序列化 payload 并写入 outbox；ctx 里有 trace_id 时一并带上，
// 便于 Dispatcher 发布时延续同一条链路
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID string,
	routingKey string,
	payload any,
) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body = withTraceID(body, trace.FromContext(ctx))

	var id *string
	if aggregateID != "" {
		id = &aggregateID
	}

	return repo.InsertEvent(ctx, tx, &Event{
		AggregateType: aggregateType,
		AggregateID:   id,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	})
}

// withTraceID 仅对 JSON 对象注入 trace_id，已有的不覆盖
func withTraceID(body []byte, traceID string) []byte {
	if traceID == "" {
		return body
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	if _, ok := m["trace_id"]; ok {
		return body
	}
	m["trace_id"] = traceID
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}

// traceContext 从 payload 中恢复 trace_id
func traceContext(ctx context.Context, payload json.RawMessage) context.Context {
	var m struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &m); err == nil && m.TraceID != "" {
		return trace.WithContext(ctx, m.TraceID)
	}
	return ctx
}
