package models

import "time"

// SensorReading 环境传感器读数（追加写入，不可变）
// 所有测量字段相互独立可空：部分字段缺失的报文是合法的
type SensorReading struct {
	ID        int64     `json:"id"`
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`

	// BME280
	Temperature *float64 `json:"temperature,omitempty"` // °C
	Humidity    *float64 `json:"humidity,omitempty"`    // %RH
	Pressure    *float64 `json:"pressure,omitempty"`    // hPa

	// BH1750
	LightLux *int `json:"light_lux,omitempty"`

	// 土壤湿度（电容式传感器）
	SoilMoistureRaw     *int     `json:"soil_moisture_raw,omitempty"` // ADC 原始值 0-4095
	SoilMoisturePercent *float64 `json:"soil_moisture_percent,omitempty"`

	// 电池电压（用于相关性分析）
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`
}

// AlertType 传感器告警类型（指标 + 方向）
type AlertType string

const (
	AlertTemperatureLow  AlertType = "temp_low"
	AlertTemperatureHigh AlertType = "temp_high"
	AlertHumidityLow     AlertType = "hum_low"
	AlertHumidityHigh    AlertType = "hum_high"
	AlertSoilDry         AlertType = "soil_dry"
	AlertSoilWet         AlertType = "soil_wet"
	AlertBatteryLow      AlertType = "batt_low"
	AlertBatteryCritical AlertType = "batt_crit"
)

// AlertSeverity 告警严重级别
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// SensorAlert 阈值越界告警
// 独立于安防 Alarm，不会自动升级为安防报警
type SensorAlert struct {
	ID        int64         `json:"id"`
	NodeID    string        `json:"node_id"`
	Timestamp time.Time     `json:"timestamp"`
	AlertType AlertType     `json:"alert_type"`
	Severity  AlertSeverity `json:"severity"`

	// 触发告警的值和越过的阈值
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`

	// 两段式处理状态
	IsAcknowledged bool       `json:"is_acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	IsResolved     bool       `json:"is_resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}
