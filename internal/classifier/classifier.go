package classifier

import (
	"encoding/json"
	"strings"

	"github.com/turiliffiu/agrisecure/internal/models"
)

// 数字编码的入侵分类（固件 v1 使用的紧凑编码）
var intrusionByCode = map[int]models.IntrusionClass{
	0: models.IntrusionNone,
	1: models.IntrusionPerson,
	2: models.IntrusionAnimalLarge,
	3: models.IntrusionAnimalSmall,
	4: models.IntrusionUnknown,
	5: models.IntrusionTamper,
}

// 字符串形式的入侵分类：全称与固件缩写均接受，大小写不敏感
var intrusionByName = map[string]models.IntrusionClass{
	"none":         models.IntrusionNone,
	"person":       models.IntrusionPerson,
	"animal_large": models.IntrusionAnimalLarge,
	"animal_lg":    models.IntrusionAnimalLarge,
	"animal_small": models.IntrusionAnimalSmall,
	"animal_sm":    models.IntrusionAnimalSmall,
	"unknown":      models.IntrusionUnknown,
	"tamper":       models.IntrusionTamper,
}

var priorityByName = map[string]models.AlarmPriority{
	"critical": models.PriorityCritical,
	"high":     models.PriorityHigh,
	"warning":  models.PriorityHigh, // 旧固件用 WARNING 表示高优先级
	"medium":   models.PriorityMedium,
	"low":      models.PriorityLow,
}

// ClassifyIntrusion 将生产方提供的分类值归一到封闭枚举
// 接受数字编码、大写字符串、小写/缩写同义词；无法识别的值归为 UNKNOWN，从不报错
func ClassifyIntrusion(raw interface{}) models.IntrusionClass {
	switch v := raw.(type) {
	case float64:
		if c, ok := intrusionByCode[int(v)]; ok {
			return c
		}
	case int:
		if c, ok := intrusionByCode[v]; ok {
			return c
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			if c, ok := intrusionByCode[int(n)]; ok {
				return c
			}
		}
	case string:
		if c, ok := intrusionByName[strings.ToLower(strings.TrimSpace(v))]; ok {
			return c
		}
	}
	return models.IntrusionUnknown
}

// ClassifyPriority 将生产方提供的优先级归一到封闭枚举
// 无法识别的值归为 MEDIUM
func ClassifyPriority(raw interface{}) models.AlarmPriority {
	if s, ok := raw.(string); ok {
		if p, ok := priorityByName[strings.ToLower(strings.TrimSpace(s))]; ok {
			return p
		}
	}
	return models.PriorityMedium
}

// AlarmDecision 报警创建决策
type AlarmDecision struct {
	CreateAlarm bool
	Priority    models.AlarmPriority
	Siren       bool
	Lights      bool
}

// DecideAlarm 根据入侵分类决定是否创建报警及执行器策略
// PERSON/TAMPER → CRITICAL，鸣笛+灯光；ANIMAL_LARGE → HIGH，仅灯光；其余不创建报警。
// 注意：该决策不参考节点布防标志和系统布防模式——未布防的节点同样触发报警，
// 这是沿用的既定行为，不是疏漏。
func DecideAlarm(class models.IntrusionClass) AlarmDecision {
	switch class {
	case models.IntrusionPerson, models.IntrusionTamper:
		return AlarmDecision{
			CreateAlarm: true,
			Priority:    models.PriorityCritical,
			Siren:       true,
			Lights:      true,
		}
	case models.IntrusionAnimalLarge:
		return AlarmDecision{
			CreateAlarm: true,
			Priority:    models.PriorityHigh,
			Siren:       false,
			Lights:      true,
		}
	default:
		return AlarmDecision{}
	}
}
