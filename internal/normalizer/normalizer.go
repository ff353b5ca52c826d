package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformedPayload 报文无法解析为 JSON（非致命，消息丢弃）
var ErrMalformedPayload = errors.New("malformed payload")

// ErrMissingNodeID 报文缺少 node_id（非致命，消息丢弃）
var ErrMissingNodeID = errors.New("payload missing node_id")

// SensorPayload 环境传感器报文（规范化后的类型化记录）
type SensorPayload struct {
	NodeID    string
	Timestamp time.Time

	Temperature         *float64
	Humidity            *float64
	Pressure            *float64
	LightLux            *int
	SoilMoistureRaw     *int
	SoilMoisturePercent *float64
	BatteryVoltage      *float64
}

// SecurityPayload 安防事件报文
// classification/priority 保留生产方原始值，由 classifier 做枚举归一
type SecurityPayload struct {
	NodeID    string
	Timestamp time.Time

	ClassificationRaw interface{}
	PriorityRaw       interface{}

	PirMain    bool
	PirBackup  bool
	Tamper     bool
	AccelX     *float64
	AccelY     *float64
	AccelZ     *float64
	Confidence int
	DurationMS int

	// 原始报文快照（入库审计）
	Raw json.RawMessage
}

// StatusPayload 状态/心跳报文
type StatusPayload struct {
	NodeID    string
	TypeHint  string // 生产方声明的节点类型（GW/AMB/SEC 或全称），可为空
	Timestamp time.Time

	Uptime    *int64
	Battery   *int
	RSSI      *int
	MeshPeers *int
	Firmware  *string
	HeapFree  *int64
}

// NormalizeSensor 规范化环境传感器报文
// 纯函数：不产生任何副作用；now 为摄取时刻的墙上时钟（时间戳缺失时的回退值）
func NormalizeSensor(payload []byte, now time.Time) (*SensorPayload, error) {
	raw, err := parseObject(payload)
	if err != nil {
		return nil, err
	}

	nodeID := coerceString(raw["node_id"])
	if nodeID == "" {
		return nil, ErrMissingNodeID
	}

	return &SensorPayload{
		NodeID:              nodeID,
		Timestamp:           coerceTimestamp(raw["timestamp"], now),
		Temperature:         coerceFloat(raw["temperature"]),
		Humidity:            coerceFloat(raw["humidity"]),
		Pressure:            coerceFloat(raw["pressure"]),
		LightLux:            coerceInt(raw["light"]),
		SoilMoistureRaw:     coerceInt(raw["soil_raw"]),
		SoilMoisturePercent: coerceFloat(raw["soil_moisture"]),
		BatteryVoltage:      coerceFloat(raw["battery_voltage"]),
	}, nil
}

// NormalizeSecurity 规范化安防事件报文
func NormalizeSecurity(payload []byte, now time.Time) (*SecurityPayload, error) {
	raw, err := parseObject(payload)
	if err != nil {
		return nil, err
	}

	nodeID := coerceString(raw["node_id"])
	if nodeID == "" {
		return nil, ErrMissingNodeID
	}

	p := &SecurityPayload{
		NodeID:            nodeID,
		Timestamp:         coerceTimestamp(raw["timestamp"], now),
		ClassificationRaw: raw["classification"],
		PriorityRaw:       raw["priority"],
		PirMain:           coerceBool(raw["pir_main"]),
		PirBackup:         coerceBool(raw["pir_backup"]),
		Tamper:            coerceBool(raw["tamper"]),
		AccelX:            coerceFloat(raw["accel_x"]),
		AccelY:            coerceFloat(raw["accel_y"]),
		AccelZ:            coerceFloat(raw["accel_z"]),
		Raw:               json.RawMessage(payload),
	}

	if c := coerceInt(raw["confidence"]); c != nil {
		p.Confidence = *c
	}
	if d := coerceInt(raw["duration_ms"]); d != nil {
		p.DurationMS = *d
	}

	return p, nil
}

// NormalizeStatus 规范化状态/心跳报文
// rssi 缺失时回退到 signal 键（部分固件版本使用旧键名）
func NormalizeStatus(payload []byte, now time.Time) (*StatusPayload, error) {
	raw, err := parseObject(payload)
	if err != nil {
		return nil, err
	}

	nodeID := coerceString(raw["node_id"])
	if nodeID == "" {
		return nil, ErrMissingNodeID
	}

	rssi := coerceInt(raw["rssi"])
	if rssi == nil {
		rssi = coerceInt(raw["signal"])
	}

	p := &StatusPayload{
		NodeID:    nodeID,
		TypeHint:  coerceString(raw["type"]),
		Timestamp: coerceTimestamp(raw["timestamp"], now),
		Uptime:    coerceInt64(raw["uptime"]),
		Battery:   coerceInt(raw["battery"]),
		RSSI:      rssi,
		MeshPeers: coerceInt(raw["mesh_peers"]),
		HeapFree:  coerceInt64(raw["heap_free"]),
	}

	if fw := coerceString(raw["firmware"]); fw != "" {
		p.Firmware = &fw
	}

	return p, nil
}

// parseObject 解析 JSON 对象，失败返回 ErrMalformedPayload
func parseObject(payload []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return raw, nil
}

// coerceFloat 数值强制转换：接受 JSON 数字和数字字符串
// 不可解析的值视为缺失（nil），不作为错误：部分损坏的遥测不应丢弃整条消息
func coerceFloat(v interface{}) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case int:
		f := float64(val)
		return &f
	case int64:
		f := float64(val)
		return &f
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return &f
		}
	}
	return nil
}

// coerceInt 整数强制转换（浮点值截断）
func coerceInt(v interface{}) *int {
	if f := coerceFloat(v); f != nil {
		n := int(*f)
		return &n
	}
	return nil
}

// coerceInt64 64 位整数强制转换
func coerceInt64(v interface{}) *int64 {
	if f := coerceFloat(v); f != nil {
		n := int64(*f)
		return &n
	}
	return nil
}

// coerceBool 布尔强制转换：接受 bool、0/1、"true"/"false"
func coerceBool(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		b, err := strconv.ParseBool(val)
		return err == nil && b
	}
	return false
}

// coerceString 字符串强制转换（数字标识转为十进制字符串）
func coerceString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// node_id 等字段偶见数字形式
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

// coerceTimestamp 时间戳强制转换
// 接受秒级或毫秒级 epoch（按量级区分：>1e12 视为毫秒），缺失时回退到摄取时刻
func coerceTimestamp(v interface{}, now time.Time) time.Time {
	f := coerceFloat(v)
	if f == nil || *f <= 0 {
		return now
	}

	epoch := *f
	if epoch > 1e12 {
		// 毫秒
		return time.UnixMilli(int64(epoch)).UTC()
	}
	return time.Unix(int64(epoch), 0).UTC()
}
