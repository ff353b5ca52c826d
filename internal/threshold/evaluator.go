package threshold

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/config"
	"github.com/turiliffiu/agrisecure/internal/models"
)

// Evaluator 阈值评估器
// 将规范化读数与每指标的最小/最大区间比较，产出零或多条传感器告警草稿。
// 每条读数、每个指标、每个方向最多一条告警；不做告警风暴抑制（留给处理流程）。
type Evaluator struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEvaluator 创建阈值评估器
func NewEvaluator(cfg *config.Config, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		logger: logger,
	}
}

// Evaluate 评估一条传感器读数，返回越界告警列表
// 仅评估非空字段：部分报文缺失的指标不产生告警
func (e *Evaluator) Evaluate(reading *models.SensorReading) []*models.SensorAlert {
	t := e.cfg.Thresholds
	var alerts []*models.SensorAlert

	if reading.Temperature != nil {
		temp := *reading.Temperature
		if temp < t.TemperatureMin {
			// 低温为临界级别：霜冻风险
			alerts = append(alerts, e.newAlert(reading, models.AlertTemperatureLow, models.SeverityCritical,
				temp, t.TemperatureMin,
				fmt.Sprintf("Critical temperature: %.1f°C (frost risk)", temp)))
		} else if temp > t.TemperatureMax {
			alerts = append(alerts, e.newAlert(reading, models.AlertTemperatureHigh, models.SeverityWarning,
				temp, t.TemperatureMax,
				fmt.Sprintf("High temperature: %.1f°C", temp)))
		}
	}

	if reading.Humidity != nil {
		hum := *reading.Humidity
		if hum < t.HumidityMin {
			alerts = append(alerts, e.newAlert(reading, models.AlertHumidityLow, models.SeverityWarning,
				hum, t.HumidityMin,
				fmt.Sprintf("Low humidity: %.1f%%", hum)))
		} else if hum > t.HumidityMax {
			alerts = append(alerts, e.newAlert(reading, models.AlertHumidityHigh, models.SeverityWarning,
				hum, t.HumidityMax,
				fmt.Sprintf("High humidity: %.1f%%", hum)))
		}
	}

	if reading.SoilMoisturePercent != nil {
		soil := *reading.SoilMoisturePercent
		if soil < t.SoilMoistureMin {
			alerts = append(alerts, e.newAlert(reading, models.AlertSoilDry, models.SeverityWarning,
				soil, t.SoilMoistureMin,
				fmt.Sprintf("Soil too dry: %.1f%%", soil)))
		} else if soil > t.SoilMoistureMax {
			alerts = append(alerts, e.newAlert(reading, models.AlertSoilWet, models.SeverityInfo,
				soil, t.SoilMoistureMax,
				fmt.Sprintf("Soil too wet: %.1f%%", soil)))
		}
	}

	return alerts
}

// EvaluateBattery 评估电池百分比（来自 status 报文）
// 临界与低电量互斥，只产出更严重的一条；充电中不告警
func (e *Evaluator) EvaluateBattery(nodeID string, battery int, charging bool, now time.Time) []*models.SensorAlert {
	if charging {
		return nil
	}

	t := e.cfg.Thresholds
	if battery <= t.BatteryCritical {
		return []*models.SensorAlert{{
			NodeID:    nodeID,
			Timestamp: now,
			AlertType: models.AlertBatteryCritical,
			Severity:  models.SeverityCritical,
			Value:     float64(battery),
			Threshold: float64(t.BatteryCritical),
			Message:   fmt.Sprintf("Critical battery: %d%%", battery),
		}}
	}
	if battery <= t.BatteryLow {
		return []*models.SensorAlert{{
			NodeID:    nodeID,
			Timestamp: now,
			AlertType: models.AlertBatteryLow,
			Severity:  models.SeverityWarning,
			Value:     float64(battery),
			Threshold: float64(t.BatteryLow),
			Message:   fmt.Sprintf("Low battery: %d%%", battery),
		}}
	}

	return nil
}

func (e *Evaluator) newAlert(reading *models.SensorReading, alertType models.AlertType, severity models.AlertSeverity, value, threshold float64, message string) *models.SensorAlert {
	return &models.SensorAlert{
		NodeID:    reading.NodeID,
		Timestamp: reading.Timestamp,
		AlertType: alertType,
		Severity:  severity,
		Value:     value,
		Threshold: threshold,
		Message:   message,
	}
}
