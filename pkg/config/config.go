package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host               string        `yaml:"host" env:"DB_HOST"`
	Port               int           `yaml:"port" env:"DB_PORT"`
	User               string        `yaml:"user" env:"DB_USER"`
	Password           string        `yaml:"password" env:"DB_PASSWORD"`
	Name               string        `yaml:"name" env:"DB_NAME"`
	SSLMode            string        `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxConns           int32         `yaml:"max_conns" env:"DB_MAX_CONNS"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" env:"DB_SLOW_QUERY_THRESHOLD"`
}

// DSN 返回 pgx 连接串
func (c DBConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: "sslmode=" + sslmode,
	}
	return u.String()
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL     string `yaml:"url" env:"MQ_URL"`
	Enabled bool   `yaml:"enabled" env:"MQ_ENABLED"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string        `yaml:"secret" env:"JWT_SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"JWT_TTL"`
	Issuer string        `yaml:"issuer"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string        `yaml:"port" env:"SERVER_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OverrideFromEnv 用环境变量覆盖已加载的配置；未设置的变量保留原值。
// target 必须是带 env tag 的结构体指针
func OverrideFromEnv(targets ...any) error {
	for _, t := range targets {
		if err := env.Parse(t); err != nil {
			return fmt.Errorf("failed to parse env overrides: %w", err)
		}
	}
	return nil
}
