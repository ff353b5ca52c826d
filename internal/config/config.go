package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// DSN 获取数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQTTConfig MQTT 配置
type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	QoS            byte   `yaml:"qos"`
	PublishTimeout int    `yaml:"publish_timeout"` // 秒，发布确认的有界等待
}

// Config 摄取服务配置
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`

	// 摄取管道配置
	Ingest struct {
		TopicRoot string `yaml:"topic_root"` // 主题命名空间，如 "agrisecure"
		Workers   int    `yaml:"workers"`    // 消息处理 worker 数量
		QueueSize int    `yaml:"queue_size"` // 任务队列长度
	} `yaml:"ingest"`

	// 节点在线状态判定
	Liveness struct {
		WarningTimeout  int `yaml:"warning_timeout"`  // 秒，超过则 warning，默认 3600
		CriticalTimeout int `yaml:"critical_timeout"` // 秒，超过则 offline，默认 7200
		SweepInterval   int `yaml:"sweep_interval"`   // 秒，周期性状态重算间隔
	} `yaml:"liveness"`

	// 传感器阈值（最小/最大区间）
	Thresholds struct {
		TemperatureMin  float64 `yaml:"temperature_min"`
		TemperatureMax  float64 `yaml:"temperature_max"`
		HumidityMin     float64 `yaml:"humidity_min"`
		HumidityMax     float64 `yaml:"humidity_max"`
		SoilMoistureMin float64 `yaml:"soil_moisture_min"`
		SoilMoistureMax float64 `yaml:"soil_moisture_max"`
		BatteryLow      int     `yaml:"battery_low"`
		BatteryCritical int     `yaml:"battery_critical"`
	} `yaml:"thresholds"`

	// 通知分发配置
	Notify struct {
		QueueSize      int      `yaml:"queue_size"`       // 分发队列长度
		MaxAttempts    int      `yaml:"max_attempts"`     // 单渠道最大尝试次数
		RetryBackoff   int      `yaml:"retry_backoff"`    // 秒，重试退避基数
		TelegramToken  string   `yaml:"telegram_token"`   // Telegram Bot Token
		TelegramChatID string   `yaml:"telegram_chat_id"`
		SMSGatewayURL  string   `yaml:"sms_gateway_url"`  // HTTP 短信网关
		SMSRecipients  []string `yaml:"sms_recipients"`
		SMTPHost       string   `yaml:"smtp_host"`
		SMTPPort       int      `yaml:"smtp_port"`
		SMTPUsername   string   `yaml:"smtp_username"`
		SMTPPassword   string   `yaml:"smtp_password"`
		EmailFrom      string   `yaml:"email_from"`
		EmailTo        []string `yaml:"email_to"`
		PushWebhookURL string   `yaml:"push_webhook_url"` // 移动端推送网关
	} `yaml:"notify"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load 加载配置
// 顺序：内置默认值 → CONFIG_FILE 指定的 YAML 文件 → 环境变量覆盖
func Load() (*Config, error) {
	cfg := &Config{}

	// 默认值
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "agrisecure"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "agrisecure-ingest"
	cfg.MQTT.QoS = 1
	cfg.MQTT.PublishTimeout = 5

	cfg.Ingest.TopicRoot = "agrisecure"
	cfg.Ingest.Workers = 4
	cfg.Ingest.QueueSize = 256

	cfg.Liveness.WarningTimeout = 3600
	cfg.Liveness.CriticalTimeout = 7200
	cfg.Liveness.SweepInterval = 300

	cfg.Thresholds.TemperatureMin = -5
	cfg.Thresholds.TemperatureMax = 45
	cfg.Thresholds.HumidityMin = 20
	cfg.Thresholds.HumidityMax = 95
	cfg.Thresholds.SoilMoistureMin = 15
	cfg.Thresholds.SoilMoistureMax = 85
	cfg.Thresholds.BatteryLow = 20
	cfg.Thresholds.BatteryCritical = 10

	cfg.Notify.QueueSize = 64
	cfg.Notify.MaxAttempts = 3
	cfg.Notify.RetryBackoff = 5
	cfg.Notify.SMTPPort = 587

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	// 可选 YAML 配置文件
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// 环境变量覆盖
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", cfg.MQTT.Password)

	cfg.Ingest.TopicRoot = getEnv("INGEST_TOPIC_ROOT", cfg.Ingest.TopicRoot)
	cfg.Ingest.Workers = getEnvInt("INGEST_WORKERS", cfg.Ingest.Workers)
	cfg.Ingest.QueueSize = getEnvInt("INGEST_QUEUE_SIZE", cfg.Ingest.QueueSize)

	cfg.Liveness.WarningTimeout = getEnvInt("NODE_TIMEOUT_WARNING", cfg.Liveness.WarningTimeout)
	cfg.Liveness.CriticalTimeout = getEnvInt("NODE_TIMEOUT_CRITICAL", cfg.Liveness.CriticalTimeout)
	cfg.Liveness.SweepInterval = getEnvInt("LIVENESS_SWEEP_INTERVAL", cfg.Liveness.SweepInterval)

	cfg.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Notify.TelegramToken)
	cfg.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", cfg.Notify.TelegramChatID)
	cfg.Notify.SMSGatewayURL = getEnv("SMS_GATEWAY_URL", cfg.Notify.SMSGatewayURL)
	if v := os.Getenv("SMS_RECIPIENTS"); v != "" {
		cfg.Notify.SMSRecipients = splitAndTrim(v)
	}
	cfg.Notify.SMTPHost = getEnv("SMTP_HOST", cfg.Notify.SMTPHost)
	cfg.Notify.SMTPPort = getEnvInt("SMTP_PORT", cfg.Notify.SMTPPort)
	cfg.Notify.SMTPUsername = getEnv("SMTP_USERNAME", cfg.Notify.SMTPUsername)
	cfg.Notify.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.Notify.SMTPPassword)
	cfg.Notify.EmailFrom = getEnv("EMAIL_FROM", cfg.Notify.EmailFrom)
	if v := os.Getenv("EMAIL_RECIPIENTS"); v != "" {
		cfg.Notify.EmailTo = splitAndTrim(v)
	}
	cfg.Notify.PushWebhookURL = getEnv("PUSH_WEBHOOK_URL", cfg.Notify.PushWebhookURL)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
