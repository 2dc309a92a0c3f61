package main

import (
	"fmt"
	"os"
	"time"

	"hirejudge/internal/common/mq"
	"hirejudge/internal/notify"
	"hirejudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

// ConsumerConfig maps onto mq.SubscribeOptions.
type ConsumerConfig struct {
	Topic           string        `yaml:"topic"`
	Group           string        `yaml:"group"`
	Workers         int           `yaml:"workers"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	Backoff         time.Duration `yaml:"backoff"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
	// MaxAge skips invitations that sat in the topic longer than this.
	MaxAge time.Duration `yaml:"maxAge"`
}

func (c ConsumerConfig) toSubscribeOptions() mq.SubscribeOptions {
	return mq.SubscribeOptions{
		Group:           c.Group,
		Workers:         c.Workers,
		MaxAttempts:     c.MaxAttempts,
		Backoff:         c.Backoff,
		DeadLetterTopic: c.DeadLetterTopic,
		MaxAge:          c.MaxAge,
	}
}

// AppConfig holds notify-worker configuration.
type AppConfig struct {
	Logger   logger.Config     `yaml:"logger"`
	Kafka    mq.KafkaConfig    `yaml:"kafka"`
	Consumer ConsumerConfig    `yaml:"consumer"`
	SMTP     notify.SMTPConfig `yaml:"smtp"`
	// DryRun logs invitations instead of sending them.
	DryRun bool `yaml:"dryRun"`
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
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if !cfg.DryRun && cfg.SMTP.Host == "" {
		return nil, fmt.Errorf("smtp host is required unless dryRun is set")
	}
	if cfg.Consumer.Topic == "" {
		cfg.Consumer.Topic = notify.DefaultTopic
	}
	if cfg.Consumer.Group == "" {
		cfg.Consumer.Group = "notify-worker"
	}
	if cfg.Consumer.Workers == 0 {
		cfg.Consumer.Workers = 4
	}
	if cfg.Consumer.DeadLetterTopic == "" {
		cfg.Consumer.DeadLetterTopic = cfg.Consumer.Topic + ".dlq"
	}
	return &cfg, nil
}
