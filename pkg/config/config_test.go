package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"SOCPulse/internal/services/classifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "soc.alerts", c.Kafka.Topics.Alerts)
	assert.Equal(t, 30*time.Second, c.Sampler.Interval)
	assert.Equal(t, 1000, c.Anomaly.TrainingWindow)
	assert.Equal(t, 100, c.Anomaly.Forest.Trees)
	assert.Equal(t, classifier.DefaultConfig(), c.Classifier)
	assert.Equal(t, 64, c.Stream.Hub.SendBuffer)
	assert.Equal(t, "https://www.virustotal.com/api/v3", c.Integrations.VirusTotal.BaseURL)
	assert.Equal(t, []string{"gcp", "azure"}, c.Deploy.Stubs)
	require.NoError(t, c.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
server:
  port: 9090
kafka:
  brokers: ["k1:9092", "k2:9092"]
classifier:
  primary:
    trees: 50
playbook:
  tiers:
    custom: [notify_soc]
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 50, c.Classifier.Primary.Trees)
	// untouched keys keep their defaults
	assert.Equal(t, 15, c.Classifier.Primary.MaxDepth)
	assert.Equal(t, 100, c.Classifier.Fallback.Trees)
	assert.Equal(t, "localhost", c.ClickHouse.Host)
}

func TestValidateRejects(t *testing.T) {
	c, err := Parse([]byte("environment: moon"))
	require.NoError(t, err)
	assert.Error(t, c.Validate())

	c, err = Parse([]byte("redis: {enabled: false}"))
	require.NoError(t, err)
	assert.ErrorContains(t, c.Validate(), "queue requires redis")

	c, err = Parse([]byte("playbook: {tiers: {empty: []}}"))
	require.NoError(t, err)
	assert.Error(t, c.Validate())
}

func TestApplyEnv(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	env := map[string]string{
		"KAFKA_BROKERS":      "a:1,b:2",
		"REDIS_ADDR":         "cache:6380",
		"POSTGRES_DSN":       "postgres://x",
		"VIRUSTOTAL_API_KEY": "vt",
		"HTTP_PORT":          "7000",
		"LOG_LEVEL":          "DEBUG",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"a:1", "b:2"}, c.Kafka.Brokers)
	assert.Equal(t, "cache:6380", c.RedisAddr())
	assert.Equal(t, "postgres://x", c.Postgres.DSN)
	assert.Equal(t, "vt", c.Integrations.VirusTotal.APIKey)
	assert.Equal(t, 7000, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
