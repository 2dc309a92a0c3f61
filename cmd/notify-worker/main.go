package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hirejudge/internal/common/mq"
	"hirejudge/internal/notify"
	"hirejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/notify_worker.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var sender notify.Sender = notify.LogSender{}
	if !appCfg.DryRun {
		smtpSender, err := notify.NewSMTPSender(appCfg.SMTP)
		if err != nil {
			logger.Error(context.Background(), "init smtp sender failed", zap.Error(err))
			return
		}
		sender = smtpSender
	}

	queue, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error(context.Background(), "close kafka queue failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := appCfg.Consumer.toSubscribeOptions()
	if err := queue.Subscribe(ctx, appCfg.Consumer.Topic, notify.Handler(sender), opts); err != nil {
		logger.Error(ctx, "subscribe notification topic failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "notify worker started",
		zap.String("topic", appCfg.Consumer.Topic),
		zap.String("group", opts.Group),
		zap.Int("workers", opts.Workers),
		zap.Bool("dry_run", appCfg.DryRun))

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received")
}
