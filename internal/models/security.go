package models

import (
	"encoding/json"
	"time"
)

// IntrusionClass 入侵分类（封闭枚举）
type IntrusionClass string

const (
	IntrusionNone        IntrusionClass = "none"
	IntrusionPerson      IntrusionClass = "person"
	IntrusionAnimalLarge IntrusionClass = "animal_lg"
	IntrusionAnimalSmall IntrusionClass = "animal_sm"
	IntrusionUnknown     IntrusionClass = "unknown"
	IntrusionTamper      IntrusionClass = "tamper"
)

// AlarmPriority 报警优先级
type AlarmPriority string

const (
	PriorityCritical AlarmPriority = "critical" // 人员或拆卸
	PriorityHigh     AlarmPriority = "high"     // 大型动物
	PriorityMedium   AlarmPriority = "medium"   // 一般移动
	PriorityLow      AlarmPriority = "low"      // 小型动物
)

// SecurityEvent 安防事件（SEC 节点每次 PIR 触发产生一条，不可变）
type SecurityEvent struct {
	EventID   string    `json:"event_id"`
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`

	Classification IntrusionClass `json:"classification"`
	Priority       AlarmPriority  `json:"priority"`

	// PIR 双通道
	PirMain         bool `json:"pir_main"`
	PirBackup       bool `json:"pir_backup"`
	MotionConfirmed bool `json:"motion_confirmed"` // 双 PIR 同时触发

	// 加速度计（拆卸检测）
	TamperDetected bool     `json:"tamper_detected"`
	AccelX         *float64 `json:"accel_x,omitempty"`
	AccelY         *float64 `json:"accel_y,omitempty"`
	AccelZ         *float64 `json:"accel_z,omitempty"`

	// 分类置信度与移动时长
	Confidence int `json:"confidence"`  // 0-100
	DurationMS int `json:"duration_ms"`

	// 原始报文快照（审计 / ML 训练）
	RawData json.RawMessage `json:"raw_data,omitempty"`
}

// AlarmStatus 报警状态机
// active → acknowledged → resolved，或 active|acknowledged → false_pos
// resolved 与 false_pos 为终态
type AlarmStatus string

const (
	AlarmStatusActive        AlarmStatus = "active"
	AlarmStatusAcknowledged  AlarmStatus = "acknowledged"
	AlarmStatusResolved      AlarmStatus = "resolved"
	AlarmStatusFalsePositive AlarmStatus = "false_pos"
)

// IsTerminal 是否终态
func (s AlarmStatus) IsTerminal() bool {
	return s == AlarmStatusResolved || s == AlarmStatusFalsePositive
}

// Alarm 由安防事件产生的报警
// 与 SecurityEvent 一对一（事件最多产生一条报警），创建后不再被摄取路径修改
type Alarm struct {
	AlarmID string `json:"alarm_id"`
	EventID string `json:"event_id"`
	NodeID  string `json:"node_id"`

	TriggeredAt    time.Time  `json:"triggered_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	Status         AlarmStatus    `json:"status"`
	Priority       AlarmPriority  `json:"priority"`
	Classification IntrusionClass `json:"classification"`

	// 本地执行器
	SirenActivated    bool `json:"siren_activated"`
	LightsActivated   bool `json:"lights_activated"`
	ActuationDuration int  `json:"actuation_duration"` // 秒

	AcknowledgedBy  string `json:"acknowledged_by,omitempty"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`

	// 成功送达的通知渠道
	NotificationsSent []string `json:"notifications_sent"`
}

// ArmMode 系统布防模式
type ArmMode string

const (
	ArmModeDisarmed  ArmMode = "disarmed"
	ArmModeArmed     ArmMode = "armed"
	ArmModeArmedStay ArmMode = "armed_stay" // 仅周界
	ArmModeArmedAway ArmMode = "armed_away" // 全部
)

// SystemArmState 布防状态历史（追加写入）
// 当前模式 = 最新一条记录的 mode，无记录时为 disarmed
type SystemArmState struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Mode          ArmMode   `json:"mode"`
	PreviousMode  ArmMode   `json:"previous_mode"`
	ChangedBy     string    `json:"changed_by"`
	ChangeSource  string    `json:"change_source"` // app, api, schedule, system
	NodesAffected []string  `json:"nodes_affected"`
	Notes         string    `json:"notes,omitempty"`
}
