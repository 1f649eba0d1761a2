package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMustLoad_Defaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
device:
  id: bed-1
  name: Raised bed
  source_path: config/source.yaml
publish:
  kafka:
    enabled: true
    brokers: ["kafka:9092"]
`)

	cfg := MustLoad(path)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "bed-1", cfg.Device.ID)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Buffer.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Buffer.MaxAge)
	assert.Equal(t, 30*time.Second, cfg.Buffer.RetryInterval)
	assert.Equal(t, uint32(3), cfg.Breaker.MaxFailures)
	assert.False(t, cfg.Sender.Enabled)
	assert.Equal(t, 5, cfg.Sender.Retry.MaxAttempts)
	assert.True(t, cfg.Publish.Kafka.Enabled)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Publish.Kafka.Brokers)
	assert.Equal(t, "soilwatch.reports", cfg.Publish.Kafka.Topic)
	assert.Equal(t, byte(1), cfg.Publish.MQTT.QoS)
	assert.Equal(t, "minio", cfg.Archive.Backend)
}

func TestMustLoad_MissingFile(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}

func TestMustLoadSource(t *testing.T) {
	path := writeFile(t, "source.yaml", `
connection:
  adapter: rest
  database_url: https://example-default-rtdb.firebaseio.com
polling:
  interval: 15s
`)

	cfg := MustLoadSource(path)

	assert.Equal(t, "rest", cfg.Connection.Adapter)
	assert.Equal(t, "/sensorData/history", cfg.Connection.HistoryPath)
	assert.Equal(t, "/sensorData/current", cfg.Connection.CurrentPath)
	assert.Equal(t, 15*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 10*time.Second, cfg.Polling.Timeout)
	assert.Equal(t, 20, cfg.Dashboard.RecentLimit)
}
