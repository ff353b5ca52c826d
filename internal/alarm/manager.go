package alarm

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/cache"
	"github.com/turiliffiu/agrisecure/internal/classifier"
	"github.com/turiliffiu/agrisecure/internal/models"
)

// ErrAlarmTerminal 报警已处于终态（resolved / false_pos），拒绝任何转换
var ErrAlarmTerminal = errors.New("alarm is in terminal state")

// ErrAlreadyAcknowledged 报警已被确认，acknowledged_at 只允许设置一次
var ErrAlreadyAcknowledged = errors.New("alarm already acknowledged")

// defaultActuationDuration 执行器默认工作时长（秒）
const defaultActuationDuration = 30

// AlarmStore 报警持久化接口
type AlarmStore interface {
	Insert(ctx context.Context, alarm *models.Alarm) error
	GetAlarm(ctx context.Context, alarmID string) (*models.Alarm, error)
	UpdateLifecycle(ctx context.Context, alarm *models.Alarm) error
}

// Notifier 通知分发入队钩子（排队即返回，不在摄取路径上做网络调用）
type Notifier interface {
	Notify(alarmID string)
}

// Manager 报警生命周期管理器
// 状态机：active → acknowledged → resolved，或 active|acknowledged → false_pos；
// resolved 与 false_pos 为终态，终态不再转换。
type Manager struct {
	store       AlarmStore
	notifier    Notifier
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewManager 创建报警管理器
func NewManager(store AlarmStore, notifier Notifier, redisClient *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		store:       store,
		notifier:    notifier,
		redisClient: redisClient,
		logger:      logger,
	}
}

// CreateFromEvent 由安防事件同步创建报警
// 每个事件最多一条报警：重复创建返回 repository.ErrDuplicateAlarm——
// 创建与事件入库同在一次 handler 调用内，出现重复意味着管道缺陷，大声上报
func (m *Manager) CreateFromEvent(ctx context.Context, event *models.SecurityEvent, decision classifier.AlarmDecision) (*models.Alarm, error) {
	alarm := &models.Alarm{
		AlarmID:           uuid.New().String(),
		EventID:           event.EventID,
		NodeID:            event.NodeID,
		TriggeredAt:       event.Timestamp,
		Status:            models.AlarmStatusActive,
		Priority:          decision.Priority,
		Classification:    event.Classification,
		SirenActivated:    decision.Siren,
		LightsActivated:   decision.Lights,
		ActuationDuration: defaultActuationDuration,
		NotificationsSent: []string{},
	}

	if err := m.store.Insert(ctx, alarm); err != nil {
		m.logger.Error("Failed to create alarm",
			zap.String("event_id", event.EventID),
			zap.String("node_id", event.NodeID),
			zap.Error(err),
		)
		return nil, err
	}

	m.logger.Warn("Alarm created",
		zap.String("alarm_id", alarm.AlarmID),
		zap.String("node_id", alarm.NodeID),
		zap.String("classification", string(alarm.Classification)),
		zap.String("priority", string(alarm.Priority)),
		zap.Bool("siren", alarm.SirenActivated),
		zap.Bool("lights", alarm.LightsActivated),
	)

	m.publishAlarm(ctx, alarm)

	return alarm, nil
}

// Acknowledge 确认报警
// 仅允许 active → acknowledged；终态拒绝，重复确认拒绝
func (m *Manager) Acknowledge(ctx context.Context, alarmID, actor string) (*models.Alarm, error) {
	alarm, err := m.store.GetAlarm(ctx, alarmID)
	if err != nil {
		return nil, err
	}

	if alarm.Status.IsTerminal() {
		return nil, ErrAlarmTerminal
	}
	if alarm.Status == models.AlarmStatusAcknowledged {
		return nil, ErrAlreadyAcknowledged
	}

	now := time.Now().UTC()
	alarm.Status = models.AlarmStatusAcknowledged
	alarm.AcknowledgedAt = &now
	alarm.AcknowledgedBy = actor

	if err := m.store.UpdateLifecycle(ctx, alarm); err != nil {
		return nil, err
	}

	m.logger.Info("Alarm acknowledged",
		zap.String("alarm_id", alarmID),
		zap.String("actor", actor),
	)

	return alarm, nil
}

// Resolve 解决报警（或标记为误报）
// 允许 active|acknowledged → resolved / false_pos；终态拒绝，resolved_at 只设置一次
func (m *Manager) Resolve(ctx context.Context, alarmID, notes string, asFalsePositive bool) (*models.Alarm, error) {
	alarm, err := m.store.GetAlarm(ctx, alarmID)
	if err != nil {
		return nil, err
	}

	if alarm.Status.IsTerminal() {
		return nil, ErrAlarmTerminal
	}

	now := time.Now().UTC()
	if asFalsePositive {
		alarm.Status = models.AlarmStatusFalsePositive
	} else {
		alarm.Status = models.AlarmStatusResolved
	}
	alarm.ResolvedAt = &now
	alarm.ResolutionNotes = notes

	if err := m.store.UpdateLifecycle(ctx, alarm); err != nil {
		return nil, err
	}

	m.logger.Info("Alarm resolved",
		zap.String("alarm_id", alarmID),
		zap.String("status", string(alarm.Status)),
	)

	return alarm, nil
}

// DispatchNotifications 通知分发移交（排队即返回，摄取路径不等待网络调用）
func (m *Manager) DispatchNotifications(alarm *models.Alarm) {
	if m.notifier == nil {
		return
	}

	m.notifier.Notify(alarm.AlarmID)

	m.logger.Info("Notification dispatch enqueued",
		zap.String("alarm_id", alarm.AlarmID),
		zap.String("priority", string(alarm.Priority)),
	)
}

// publishAlarm 向下游查询/推送层的输出流发布新报警
func (m *Manager) publishAlarm(ctx context.Context, alarm *models.Alarm) {
	if m.redisClient == nil {
		return
	}

	data := map[string]interface{}{
		"alarm_id":       alarm.AlarmID,
		"event_id":       alarm.EventID,
		"node_id":        alarm.NodeID,
		"classification": string(alarm.Classification),
		"priority":       string(alarm.Priority),
		"siren":          alarm.SirenActivated,
		"lights":         alarm.LightsActivated,
		"triggered_at":   alarm.TriggeredAt.Unix(),
	}

	if _, err := cache.PublishJSONToStream(ctx, m.redisClient, cache.StreamAlarms, data); err != nil {
		m.logger.Warn("Failed to publish alarm to stream",
			zap.String("alarm_id", alarm.AlarmID),
			zap.Error(err),
		)
	}
}
