package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 基于 Redis SetNX 的幂等检查，同一 scope+key 在 ttl 内只放行一次
type Deduper struct {
	rdb      redis.Cmdable
	ttl      time.Duration
	scopeTTL map[string]time.Duration
	logger   *zap.Logger
}

func NewDeduper(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// WithScopeTTL 为某个 scope 单独设置窗口
func (d *Deduper) WithScopeTTL(scope string, ttl time.Duration) *Deduper {
	if d.scopeTTL == nil {
		d.scopeTTL = make(map[string]time.Duration)
	}
	d.scopeTTL[scope] = ttl
	return d
}

func (d *Deduper) ttlFor(scope string) time.Duration {
	if ttl, ok := d.scopeTTL[scope]; ok && ttl > 0 {
		return ttl
	}
	return d.ttl
}

// DedupKey 格式化去重 key
func DedupKey(scope, key string) string {
	return fmt.Sprintf("dedup:%s:%s", scope, key)
}

// AcquireOnce 第一次处理返回 true，重复返回 false。
// Redis 不可用时不阻止处理，返回 true
func (d *Deduper) AcquireOnce(ctx context.Context, scope, key string) bool {
	dedupKey := DedupKey(scope, key)

	ok, err := d.rdb.SetNX(ctx, dedupKey, 1, d.ttlFor(scope)).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated submission",
			zap.String("scope", scope),
			zap.String("dedup_key", dedupKey),
		)
	}
	return ok
}

// Release 删除去重标记；后续写库失败时调用，允许客户端重试
func (d *Deduper) Release(ctx context.Context, scope, key string) {
	if err := d.rdb.Del(ctx, DedupKey(scope, key)).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("scope", scope),
			zap.Error(err),
		)
	}
}
