package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "agrisecure", cfg.Database.Database)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "agrisecure-ingest", cfg.MQTT.ClientID)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, "agrisecure", cfg.Ingest.TopicRoot)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 256, cfg.Ingest.QueueSize)

	assert.Equal(t, 3600, cfg.Liveness.WarningTimeout)
	assert.Equal(t, 7200, cfg.Liveness.CriticalTimeout)

	assert.Equal(t, -5.0, cfg.Thresholds.TemperatureMin)
	assert.Equal(t, 45.0, cfg.Thresholds.TemperatureMax)
	assert.Equal(t, 20, cfg.Thresholds.BatteryLow)
	assert.Equal(t, 10, cfg.Thresholds.BatteryCritical)

	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
	assert.Equal(t, 587, cfg.Notify.SMTPPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("MQTT_BROKER", "tcp://broker.internal:1883")
	t.Setenv("INGEST_TOPIC_ROOT", "farm")
	t.Setenv("INGEST_WORKERS", "8")
	t.Setenv("NODE_TIMEOUT_WARNING", "1800")
	t.Setenv("SMS_RECIPIENTS", "+48123456789, +48987654321")
	t.Setenv("SMTP_HOST", "mail.internal")
	t.Setenv("EMAIL_RECIPIENTS", "ops@example.com")
	t.Setenv("PUSH_WEBHOOK_URL", "http://push.internal/notify")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "tcp://broker.internal:1883", cfg.MQTT.Broker)
	assert.Equal(t, "farm", cfg.Ingest.TopicRoot)
	assert.Equal(t, 8, cfg.Ingest.Workers)
	assert.Equal(t, 1800, cfg.Liveness.WarningTimeout)
	assert.Equal(t, []string{"+48123456789", "+48987654321"}, cfg.Notify.SMSRecipients)
	assert.Equal(t, "mail.internal", cfg.Notify.SMTPHost)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Notify.EmailTo)
	assert.Equal(t, "http://push.internal/notify", cfg.Notify.PushWebhookURL)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
ingest:
  topic_root: orchard
  workers: 2
thresholds:
  temperature_max: 40
notify:
  max_attempts: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "orchard", cfg.Ingest.TopicRoot)
	assert.Equal(t, 2, cfg.Ingest.Workers)
	assert.Equal(t, 40.0, cfg.Thresholds.TemperatureMax)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	// 文件未覆盖的字段保留默认值
	assert.Equal(t, 256, cfg.Ingest.QueueSize)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ingest:\n  topic_root: orchard\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("INGEST_TOPIC_ROOT", "vineyard")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "vineyard", cfg.Ingest.TopicRoot)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Database: "agrisecure",
		SSLMode:  "disable",
	}

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=agrisecure")
	assert.Contains(t, dsn, "sslmode=disable")
}
