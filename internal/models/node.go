package models

import (
	"encoding/json"
	"time"
)

// NodeType 节点类型
type NodeType string

const (
	NodeTypeGateway  NodeType = "GW"  // 网关节点（4G回传）
	NodeTypeAmbient  NodeType = "AMB" // 环境传感节点
	NodeTypeSecurity NodeType = "SEC" // 安防节点（PIR）
)

// NodeStatus 节点在线状态
type NodeStatus string

const (
	NodeStatusOnline      NodeStatus = "online"
	NodeStatusOffline     NodeStatus = "offline"
	NodeStatusWarning     NodeStatus = "warning"
	NodeStatusError       NodeStatus = "error"
	NodeStatusMaintenance NodeStatus = "maintenance"
)

// BatteryStatus 电池健康状态
type BatteryStatus string

const (
	BatteryStatusCharging BatteryStatus = "charging"
	BatteryStatusUnknown  BatteryStatus = "unknown"
	BatteryStatusCritical BatteryStatus = "critical"
	BatteryStatusLow      BatteryStatus = "low"
	BatteryStatusNormal   BatteryStatus = "normal"
)

// Node 现场节点（网关/环境/安防）
// node_id 为外部稳定标识，创建后不可变
type Node struct {
	NodeID   string     `json:"node_id"`
	Name     string     `json:"name"`
	NodeType NodeType   `json:"node_type"`
	Status   NodeStatus `json:"status"`

	// 安防（仅 SEC 节点有意义）
	IsArmed bool `json:"is_armed"`

	// 固件
	FirmwareVersion string `json:"firmware_version"`

	// 运行统计
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`

	// 电池
	BatteryVoltage    *float64 `json:"battery_voltage,omitempty"`
	BatteryPercentage *int     `json:"battery_percentage,omitempty"`
	IsCharging        bool     `json:"is_charging"`

	// Mesh 连接
	RSSI          *int `json:"rssi,omitempty"`
	MeshNeighbors int  `json:"mesh_neighbors"`

	// 节点配置（JSON）
	Config json.RawMessage `json:"config,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BatteryHealth 计算电池健康状态
// 充电中 > 未知 > 临界（<=10%）> 低（<=20%）> 正常
func (n *Node) BatteryHealth() BatteryStatus {
	if n.IsCharging {
		return BatteryStatusCharging
	}
	if n.BatteryPercentage == nil {
		return BatteryStatusUnknown
	}
	if *n.BatteryPercentage <= 10 {
		return BatteryStatusCritical
	}
	if *n.BatteryPercentage <= 20 {
		return BatteryStatusLow
	}
	return BatteryStatusNormal
}

// NodeEventType 节点系统事件类型
type NodeEventType string

const (
	NodeEventOffline NodeEventType = "offline"
	NodeEventOnline  NodeEventType = "online"
)

// NodeEvent 节点系统事件（上下线等）
type NodeEvent struct {
	ID        int64         `json:"id"`
	NodeID    string        `json:"node_id"`
	Timestamp time.Time     `json:"timestamp"`
	EventType NodeEventType `json:"event_type"`
	Message   string        `json:"message,omitempty"`
}

// NodeHeartbeat 节点心跳历史（每条 status 消息追加一条）
type NodeHeartbeat struct {
	ID                int64     `json:"id"`
	NodeID            string    `json:"node_id"`
	Timestamp         time.Time `json:"timestamp"`
	UptimeSeconds     int64     `json:"uptime_seconds"`
	FreeHeapKB        int       `json:"free_heap_kb"`
	RSSI              *int      `json:"rssi,omitempty"`
	BatteryPercentage *int      `json:"battery_percentage,omitempty"`
	MeshNeighbors     int       `json:"mesh_neighbors"`
}
