package router

import (
	"errors"
	"strings"
)

// ErrUnknownTopic 主题不匹配任何已知类别（非致命，warning 级别记录后忽略）
var ErrUnknownTopic = errors.New("unknown topic")

// Category 消息类别
type Category string

const (
	CategorySensors  Category = "sensors"
	CategorySecurity Category = "security"
	CategoryStatus   Category = "status"
	CategoryUnknown  Category = "unknown"
)

// Route 根据主题路径段判定消息类别
// 主题方案：{root}/{node_id}/{category}/...
// security 与 sensors 标记优先于通用的 status 标记检查
func Route(topic string) Category {
	switch {
	case strings.Contains(topic, "/security/") || strings.HasSuffix(topic, "/security"):
		return CategorySecurity
	case strings.Contains(topic, "/sensors/") || strings.HasSuffix(topic, "/sensors"):
		return CategorySensors
	case strings.Contains(topic, "/status"):
		return CategoryStatus
	default:
		return CategoryUnknown
	}
}

// NodeIDFromTopic 从主题中提取节点标识（第二个路径段），仅用于日志
func NodeIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
