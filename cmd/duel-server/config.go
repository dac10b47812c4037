package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"algoarena/internal/auth"
	"algoarena/internal/common/cache"
	"algoarena/internal/common/db"
	commonmw "algoarena/internal/common/http/middleware"
	"algoarena/internal/common/mq"
	"algoarena/internal/common/storage"
	duelService "algoarena/internal/duel/service"
	"algoarena/internal/duel/transport"
	"algoarena/internal/judge/sandbox/engine"
	"algoarena/internal/judge/sandbox/profile"
	judgeService "algoarena/internal/judge/service"
	"algoarena/internal/server"
	submitService "algoarena/internal/submit/service"
	"algoarena/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultHostInterval    = 15 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// InstanceID marks room id reservations made by this process.
	InstanceID string              `yaml:"instanceId"`
	CORS       commonmw.CORSConfig `yaml:"cors"`
	RateLimits server.Limits       `yaml:"rateLimits"`
}

// EventsConfig controls duel result publishing. Publishing is off without brokers.
type EventsConfig struct {
	Kafka         mq.KafkaConfig `yaml:"kafka"`
	FinishedTopic string         `yaml:"finishedTopic"`
}

// SourceConfig controls where submission sources are archived.
type SourceConfig struct {
	Bucket    string                      `yaml:"bucket"`
	KeyPrefix string                      `yaml:"keyPrefix"`
	Timeouts  submitService.TimeoutConfig `yaml:"timeouts"`
}

// LanguageConfig holds language definitions.
type LanguageConfig struct {
	Languages []profile.LanguageSpec `yaml:"languages"`
	Profiles  []profile.TaskProfile  `yaml:"profiles"`
}

// MetricsConfig controls host sampling.
type MetricsConfig struct {
	HostInterval time.Duration `yaml:"hostInterval"`
	DiskPath     string        `yaml:"diskPath"`
}

// AppConfig holds duel-server config.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Auth      auth.Config         `yaml:"auth"`
	Database  db.MySQLConfig      `yaml:"database"`
	Redis     cache.RedisConfig   `yaml:"redis"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
	Events    EventsConfig        `yaml:"events"`
	Source    SourceConfig        `yaml:"source"`
	Duel      duelService.Config  `yaml:"duel"`
	WebSocket transport.Config    `yaml:"websocket"`
	Judge     judgeService.Config `yaml:"judge"`
	Sandbox   engine.Config       `yaml:"sandbox"`
	Language  LanguageConfig      `yaml:"language"`
	Metrics   MetricsConfig       `yaml:"metrics"`
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path, loads .env files when present and applies env
// overrides for secrets.
func loadAppConfig(path string, envFiles ...string) (*AppConfig, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	cfg := AppConfig{Duel: duelService.DefaultConfig()}
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.MinIO.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if len(cfg.Language.Languages) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func loadEnvFiles(files ...string) error {
	var existing []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name  string
	apply func(cfg *AppConfig, v string)
}{
	{"ALGOARENA_HTTP_ADDR", func(c *AppConfig, v string) { c.Server.Addr = v }},
	{"ALGOARENA_JWT_SECRET", func(c *AppConfig, v string) { c.Auth.Secret = v }},
	{"ALGOARENA_MYSQL_DSN", func(c *AppConfig, v string) { c.Database.DSN = v }},
	{"ALGOARENA_REDIS_ADDR", func(c *AppConfig, v string) { c.Redis.Addr = v }},
	{"ALGOARENA_REDIS_PASSWORD", func(c *AppConfig, v string) { c.Redis.Password = v }},
	{"ALGOARENA_MINIO_ENDPOINT", func(c *AppConfig, v string) { c.MinIO.Endpoint = v }},
	{"ALGOARENA_MINIO_ACCESS_KEY", func(c *AppConfig, v string) { c.MinIO.AccessKey = v }},
	{"ALGOARENA_MINIO_SECRET_KEY", func(c *AppConfig, v string) { c.MinIO.SecretKey = v }},
	{"ALGOARENA_KAFKA_BROKERS", func(c *AppConfig, v string) { c.Events.Kafka.Brokers = splitList(v) }},
	{"ALGOARENA_LOG_LEVEL", func(c *AppConfig, v string) { c.Logger.Level = v }},
}

func applyEnvOverrides(cfg *AppConfig) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && strings.TrimSpace(v) != "" {
			o.apply(cfg, strings.TrimSpace(v))
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID, _ = os.Hostname()
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "algoarena"
	}
	cfg.Redis.ApplyDefaults()
	if cfg.Source.Bucket == "" {
		cfg.Source.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Source.KeyPrefix == "" {
		cfg.Source.KeyPrefix = "submissions"
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = "/tmp/algoarena/work"
	}
	if cfg.Metrics.HostInterval == 0 {
		cfg.Metrics.HostInterval = defaultHostInterval
	}
	if cfg.Metrics.DiskPath == "" {
		cfg.Metrics.DiskPath = cfg.Judge.WorkRoot
	}
}
