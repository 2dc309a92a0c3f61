package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hirejudge/internal/notify"
	"hirejudge/pkg/testutil"
)

const minimalConfig = `
database:
  dsn: "u:p@tcp(db:3306)/hirejudge?parseTime=true"
redis:
  addr: "redis:6379"
auth:
  secret: "s"
judge:
  client:
    baseUrl: "http://judge0:2358"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assessment_service.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, minimalConfig))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg.Server.Addr, defaultHTTPAddr)
	testutil.AssertEqual(t, cfg.Scheduling.Timezone, "UTC")
	testutil.AssertEqual(t, cfg.Scheduling.CandidateTimeout, 15*time.Second)
	testutil.AssertEqual(t, cfg.Judge.PollInterval, time.Second)
	testutil.AssertEqual(t, cfg.Judge.MaxPollAttempts, 10)
	testutil.AssertEqual(t, cfg.Judge.FallbackLanguage, "javascript")
	testutil.AssertEqual(t, cfg.Submission.RateLimit.Max, 10)
	testutil.AssertEqual(t, cfg.Notify.Backend, notifyBackendWorkers)
	testutil.AssertEqual(t, cfg.Notify.Topic, notify.DefaultTopic)
	testutil.AssertEqual(t, cfg.Notify.HandoffTimeout, 10*time.Second)
	testutil.AssertEqual(t, cfg.Scheduling.MaxCandidates, 500)
}

func TestLoadAppConfigRejects(t *testing.T) {
	cases := map[string]string{
		"missing dsn":         "redis:\n  addr: r\n",
		"unknown backend":     minimalConfig + "notify:\n  backend: carrier-pigeon\n",
		"kafka needs brokers": minimalConfig + "notify:\n  backend: kafka\n",
		"bad timezone":        minimalConfig + "scheduling:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadAppConfig(writeConfig(t, body))
			testutil.AssertTrue(t, err != nil, name)
		})
	}
}
