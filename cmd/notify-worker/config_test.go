package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hirejudge/internal/notify"
	"hirejudge/pkg/testutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify_worker.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, "kafka:\n  brokers: [\"k:9092\"]\ndryRun: true\nconsumer:\n  backoff: 3s\n  maxAge: 12h\n"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg.Consumer.Topic, notify.DefaultTopic)
	testutil.AssertEqual(t, cfg.Consumer.DeadLetterTopic, notify.DefaultTopic+".dlq")

	opts := cfg.Consumer.toSubscribeOptions()
	testutil.AssertEqual(t, opts.Group, "notify-worker")
	testutil.AssertEqual(t, opts.Workers, 4)
	testutil.AssertEqual(t, opts.Backoff, 3*time.Second)
	testutil.AssertEqual(t, opts.MaxAge, 12*time.Hour)
}

func TestLoadAppConfigRequiresSMTPUnlessDryRun(t *testing.T) {
	_, err := loadAppConfig(writeConfig(t, "kafka:\n  brokers: [\"k:9092\"]\n"))
	testutil.AssertTrue(t, err != nil, "smtp host required")

	_, err = loadAppConfig(writeConfig(t, "dryRun: true\n"))
	testutil.AssertTrue(t, err != nil, "brokers required")
}
