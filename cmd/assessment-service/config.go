package main

import (
	"fmt"
	"os"
	"time"

	"hirejudge/internal/common/auth"
	"hirejudge/internal/common/cache"
	"hirejudge/internal/common/db"
	commonmw "hirejudge/internal/common/http/middleware"
	"hirejudge/internal/common/mq"
	"hirejudge/internal/common/ratelimit"
	"hirejudge/internal/common/storage"
	interviewService "hirejudge/internal/interview/service"
	judgeClient "hirejudge/internal/judge/client"
	"hirejudge/internal/notify"
	"hirejudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second

	notifyBackendWorkers = "workers"
	notifyBackendKafka   = "kafka"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string              `yaml:"addr"`
	ReadTimeout  time.Duration       `yaml:"readTimeout"`
	WriteTimeout time.Duration       `yaml:"writeTimeout"`
	IdleTimeout  time.Duration       `yaml:"idleTimeout"`
	CORS         commonmw.CORSConfig `yaml:"cors"`
}

// SchedulingConfig holds bulk assignment settings.
type SchedulingConfig struct {
	// Timezone anchors slot times, e.g. "UTC" or "Asia/Singapore".
	Timezone         string        `yaml:"timezone"`
	CandidateTimeout time.Duration `yaml:"candidateTimeout"`
	OrgCacheTTL      time.Duration `yaml:"orgCacheTTL"`
	PasswordCost     int           `yaml:"passwordCost"`
	// MaxCandidates caps one bulk-assign request.
	MaxCandidates int `yaml:"maxCandidates"`
}

// JudgeConfig holds Judge0 polling settings.
type JudgeConfig struct {
	Client           judgeClient.Config `yaml:"client"`
	PollInterval     time.Duration      `yaml:"pollInterval"`
	MaxPollAttempts  int                `yaml:"maxPollAttempts"`
	TestCaseTimeout  time.Duration      `yaml:"testCaseTimeout"`
	FallbackLanguage string             `yaml:"fallbackLanguage"`
}

// TimeoutConfig bounds calls to backing stores.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Storage time.Duration `yaml:"storage"`
	Judge   time.Duration `yaml:"judge"`
}

// SubmissionConfig holds submit settings.
type SubmissionConfig struct {
	MaxCodeBytes int `yaml:"maxCodeBytes"`
	// ArchiveSources uploads compressed sources to object storage.
	ArchiveSources  bool             `yaml:"archiveSources"`
	SourceBucket    string           `yaml:"sourceBucket"`
	SourceKeyPrefix string           `yaml:"sourceKeyPrefix"`
	RateLimit       ratelimit.Config `yaml:"rateLimit"`
	// LocalRateLimit keeps counters in process instead of Redis.
	LocalRateLimit bool          `yaml:"localRateLimit"`
	Timeouts       TimeoutConfig `yaml:"timeouts"`
}

// QuestionConfig holds question pool settings.
type QuestionConfig struct {
	PoolCacheTTL time.Duration `yaml:"poolCacheTTL"`
	Timeout      time.Duration `yaml:"timeout"`
}

// NotifyConfig selects how invitations leave the request path.
type NotifyConfig struct {
	// Backend is "workers" (in-process queue) or "kafka" (notify-worker consumes).
	Backend string                   `yaml:"backend"`
	Topic   string                   `yaml:"topic"`
	Workers notify.WorkerQueueConfig `yaml:"workers"`
	SMTP    notify.SMTPConfig        `yaml:"smtp"`
	// HandoffTimeout bounds the background publish of one request's invitations.
	HandoffTimeout time.Duration `yaml:"handoffTimeout"`
}

// AppConfig holds assessment-service configuration.
type AppConfig struct {
	Server     ServerConfig                  `yaml:"server"`
	Logger     logger.Config                 `yaml:"logger"`
	Database   db.MySQLConfig                `yaml:"database"`
	Redis      cache.RedisConfig             `yaml:"redis"`
	Kafka      mq.KafkaConfig                `yaml:"kafka"`
	MinIO      storage.MinIOConfig           `yaml:"minio"`
	Auth       auth.Config                   `yaml:"auth"`
	Scheduling SchedulingConfig              `yaml:"scheduling"`
	Questions  QuestionConfig                `yaml:"questions"`
	Judge      JudgeConfig                   `yaml:"judge"`
	Submission SubmissionConfig              `yaml:"submission"`
	Notify     NotifyConfig                  `yaml:"notify"`
	Expiry     interviewService.ExpiryConfig `yaml:"expiry"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if cfg.Judge.Client.BaseURL == "" {
		return nil, fmt.Errorf("judge baseURL is required")
	}
	applyDefaults(&cfg)
	switch cfg.Notify.Backend {
	case notifyBackendWorkers, notifyBackendKafka:
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}
	if cfg.Notify.Backend == notifyBackendKafka && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required for the kafka notify backend")
	}
	if _, err := time.LoadLocation(cfg.Scheduling.Timezone); err != nil {
		return nil, fmt.Errorf("invalid scheduling timezone: %w", err)
	}
	return &cfg, nil
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

	if cfg.Scheduling.Timezone == "" {
		cfg.Scheduling.Timezone = "UTC"
	}
	if cfg.Scheduling.CandidateTimeout == 0 {
		cfg.Scheduling.CandidateTimeout = 15 * time.Second
	}
	if cfg.Scheduling.MaxCandidates == 0 {
		cfg.Scheduling.MaxCandidates = 500
	}

	if cfg.Questions.Timeout == 0 {
		cfg.Questions.Timeout = 3 * time.Second
	}

	if cfg.Judge.PollInterval == 0 {
		cfg.Judge.PollInterval = time.Second
	}
	if cfg.Judge.MaxPollAttempts == 0 {
		cfg.Judge.MaxPollAttempts = 10
	}
	if cfg.Judge.TestCaseTimeout == 0 {
		cfg.Judge.TestCaseTimeout = 30 * time.Second
	}
	if cfg.Judge.FallbackLanguage == "" {
		cfg.Judge.FallbackLanguage = "javascript"
	}

	if cfg.Submission.MaxCodeBytes == 0 {
		cfg.Submission.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submission.SourceBucket == "" {
		cfg.Submission.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Submission.RateLimit.Window == 0 {
		cfg.Submission.RateLimit.Window = time.Minute
	}
	if cfg.Submission.RateLimit.Max == 0 {
		cfg.Submission.RateLimit.Max = 10
	}
	if cfg.Submission.Timeouts.DB == 0 {
		cfg.Submission.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submission.Timeouts.Storage == 0 {
		cfg.Submission.Timeouts.Storage = 5 * time.Second
	}
	if cfg.Submission.Timeouts.Judge == 0 {
		cfg.Submission.Timeouts.Judge = 90 * time.Second
	}

	if cfg.Notify.Backend == "" {
		cfg.Notify.Backend = notifyBackendWorkers
	}
	if cfg.Notify.Topic == "" {
		cfg.Notify.Topic = notify.DefaultTopic
	}
	if cfg.Notify.HandoffTimeout == 0 {
		cfg.Notify.HandoffTimeout = 10 * time.Second
	}
}
