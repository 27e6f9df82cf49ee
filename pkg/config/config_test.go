package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"RENEWAL_INTERVAL", "RENEWAL_WINDOW", "RENEWAL_CONCURRENCY", "PROVIDER_TIMEOUT", "DEGRADED_AFTER", "PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.RenewalInterval)
	assert.Equal(t, 24*time.Hour, cfg.RenewalWindow)
	assert.Equal(t, 8, cfg.RenewalConcurrency)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 3, cfg.DegradedAfter)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RENEWAL_INTERVAL", "15m")
	t.Setenv("RENEWAL_WINDOW", "48h")
	t.Setenv("RENEWAL_CONCURRENCY", "2")
	t.Setenv("DEGRADED_AFTER", "not-a-number")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.RenewalInterval)
	assert.Equal(t, 48*time.Hour, cfg.RenewalWindow)
	assert.Equal(t, 2, cfg.RenewalConcurrency)
	assert.Equal(t, 3, cfg.DegradedAfter)
}

func TestWatchTopic(t *testing.T) {
	tests := []struct {
		name      string
		project   string
		topic     string
		wantFull  string
		wantShort string
	}{
		{"short name", "acme", "gmail-push", "projects/acme/topics/gmail-push", "gmail-push"},
		{"full name", "acme", "projects/other/topics/inbox", "projects/other/topics/inbox", "inbox"},
		{"unset", "acme", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{GoogleProjectID: tt.project, GooglePubSubTopic: tt.topic}
			assert.Equal(t, tt.wantFull, cfg.WatchTopic())
			assert.Equal(t, tt.wantShort, cfg.TopicID())
		})
	}
}
