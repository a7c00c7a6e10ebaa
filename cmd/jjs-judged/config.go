package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"

	"jjsgo/internal/common/cache"
	"jjsgo/internal/common/mq"
	"jjsgo/internal/common/storage"
	"jjsgo/pkg/utils/logger"
)

const (
	defaultHTTPAddr     = "0.0.0.0:8086"
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultMetaTTL      = 30 * time.Second
)

// ServerConfig holds the status/health HTTP surface's settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings, a yaml-friendly mirror of
// mq.KafkaConfig with plain Go types in place of kafka-go's enums, the
// same split the teacher's cmd/judge-service/config.go uses.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	JudgeTopic    string        `yaml:"judgeTopic"`
	StatusTopic   string        `yaml:"statusTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	PrefetchCount int           `yaml:"prefetchCount"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
	MessageTTL    time.Duration `yaml:"messageTTL"`
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// WorkerConfig holds the judge worker-process pool's settings.
type WorkerConfig struct {
	PoolSize    int    `yaml:"poolSize"`
	BinaryPath  string `yaml:"binaryPath"`
	ScratchDir  string `yaml:"scratchDir"`
	InvokerID   string `yaml:"invokerID"`
}

// ProblemConfig holds the Problem/Toolchain Loader's storage and cache
// settings.
type ProblemConfig struct {
	Bucket          string        `yaml:"bucket"`
	ToolchainBucket string        `yaml:"toolchainBucket"`
	LocalDir        string        `yaml:"localDir"`
	ToolchainDir    string        `yaml:"toolchainDir"`
	MetaTTL         time.Duration `yaml:"metaTTL"`
}

// AppConfig is jjs-judged's top-level config, the same
// flag-path/yaml-unmarshal shape as the teacher's judge-service AppConfig.
type AppConfig struct {
	Server  ServerConfig      `yaml:"server"`
	Logger  logger.Config     `yaml:"logger"`
	Kafka   KafkaConfig       `yaml:"kafka"`
	Redis   cache.RedisConfig `yaml:"redis"`
	MinIO   storage.MinIOConfig `yaml:"minio"`
	Worker  WorkerConfig      `yaml:"worker"`
	Problem ProblemConfig     `yaml:"problem"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}

	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	applyRedisDefaults(&cfg.Redis)

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
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 0 // Controller.New defaults to runtime.NumCPU()
	}
	if cfg.Problem.MetaTTL == 0 {
		cfg.Problem.MetaTTL = defaultMetaTTL
	}
	if cfg.Problem.ToolchainBucket == "" {
		cfg.Problem.ToolchainBucket = cfg.Problem.Bucket
	}
	if cfg.Kafka.StatusTopic == "" {
		cfg.Kafka.StatusTopic = "judge.status"
	}
	if cfg.Kafka.JudgeTopic == "" {
		return nil, fmt.Errorf("kafka judgeTopic is required")
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}
