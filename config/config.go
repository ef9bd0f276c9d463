package config

import (
	"fmt"
	"time"

	"lunexops/internal/service/auth"
	"lunexops/pkg/circuitbreaker"
	pkgconfig "lunexops/pkg/config"
	"lunexops/pkg/logger"
	"lunexops/pkg/otel"
)

// PipelineConfig 生命周期引擎参数
type PipelineConfig struct {
	RefreshInterval     time.Duration `yaml:"refresh_interval" env:"PIPELINE_REFRESH_INTERVAL"`
	OverdueScanInterval time.Duration `yaml:"overdue_scan_interval" env:"PIPELINE_OVERDUE_SCAN_INTERVAL"`
	QueueLimit          int           `yaml:"queue_limit"`
	DepositFraction     float64       `yaml:"deposit_fraction"`
	IntakeDedupTTL      time.Duration `yaml:"intake_dedup_ttl"`
	OverdueDedupTTL     time.Duration `yaml:"overdue_dedup_ttl"`
	Timezone            string        `yaml:"timezone" env:"PIPELINE_TIMEZONE"`
}

// FilesConfig 上传文件存储
type FilesConfig struct {
	Root    string `yaml:"root" env:"FILES_ROOT"`
	MaxSize int64  `yaml:"max_size"`
}

// OutboxConfig Outbox 投递参数
type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// ConsumerConfig MQ 消费重试参数
type ConsumerConfig struct {
	MaxRetries int64         `yaml:"max_retries"`
	RetryTTL   time.Duration `yaml:"retry_ttl"`
}

type AuthConfig struct {
	Accounts []auth.Account `yaml:"accounts"`
}

type Config struct {
	Server         pkgconfig.ServerConfig `yaml:"server"`
	DB             pkgconfig.DBConfig     `yaml:"db"`
	MQ             pkgconfig.MQConfig     `yaml:"mq"`
	Redis          pkgconfig.RedisConfig  `yaml:"redis"`
	JWT            pkgconfig.JWTConfig    `yaml:"jwt"`
	Auth           AuthConfig             `yaml:"auth"`
	Pipeline       PipelineConfig         `yaml:"pipeline"`
	Files          FilesConfig            `yaml:"files"`
	Outbox         OutboxConfig           `yaml:"outbox"`
	Consumer       ConsumerConfig         `yaml:"consumer"`
	CircuitBreaker circuitbreaker.Config  `yaml:"circuit_breaker"`
	OTel           otel.Config            `yaml:"otel"`
	Log            logger.Config          `yaml:"log"`
}

// Load 使用统一配置中心加载配置：base.yaml < <env>.yaml < secrets.env < 环境变量
func Load() (*Config, error) {
	env := pkgconfig.GetConfigEnv()
	configDir := pkgconfig.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := pkgconfig.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := pkgconfig.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	if err := pkgconfig.OverrideFromEnv(
		&cfg.Server, &cfg.DB, &cfg.MQ, &cfg.Redis, &cfg.JWT,
		&cfg.Pipeline, &cfg.Files, &cfg.OTel, &cfg.Log,
	); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Pipeline.RefreshInterval <= 0 {
		c.Pipeline.RefreshInterval = 5 * time.Minute
	}
	if c.Pipeline.OverdueScanInterval <= 0 {
		c.Pipeline.OverdueScanInterval = time.Hour
	}
	if c.Pipeline.QueueLimit <= 0 {
		c.Pipeline.QueueLimit = 10
	}
	if c.Pipeline.DepositFraction <= 0 {
		c.Pipeline.DepositFraction = 0.3
	}
	if c.Pipeline.IntakeDedupTTL <= 0 {
		c.Pipeline.IntakeDedupTTL = 10 * time.Minute
	}
	if c.Pipeline.OverdueDedupTTL <= 0 {
		c.Pipeline.OverdueDedupTTL = 24 * time.Hour
	}
	if c.Pipeline.Timezone == "" {
		c.Pipeline.Timezone = "UTC"
	}
	if c.Files.Root == "" {
		c.Files.Root = "data/files"
	}
	if c.Files.MaxSize <= 0 {
		c.Files.MaxSize = 25 << 20
	}
	if c.Consumer.MaxRetries <= 0 {
		c.Consumer.MaxRetries = 3
	}
	if c.Consumer.RetryTTL <= 0 {
		c.Consumer.RetryTTL = time.Hour
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "lunexops"
	}
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Pipeline.DepositFraction > 1 {
		return fmt.Errorf("pipeline.deposit_fraction must be within (0, 1], got %v", c.Pipeline.DepositFraction)
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("pipeline.timezone: %w", err)
	}
	return nil
}

// Location 返回报表使用的时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Pipeline.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
