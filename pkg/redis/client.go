package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lunexops/pkg/config"
)

// NewRedisClient 创建 Redis 客户端并检查连通性；连不上时只告警，调用方按降级处理
func NewRedisClient(cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis ping failed, dedup checks will fail open",
			zap.String("addr", cfg.Addr),
			zap.Error(err),
		)
	} else {
		logger.Info("Redis connection established", zap.String("addr", cfg.Addr))
	}
	return rdb
}

// Ping 用于 readiness 检查
func Ping(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
