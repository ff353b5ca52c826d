package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/models"
)

// AlarmRepository 报警仓库
// alarms.event_id 上有唯一约束：结构性保证一个安防事件最多产生一条报警
type AlarmRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmRepository 创建报警仓库
func NewAlarmRepository(db *sql.DB, logger *zap.Logger) *AlarmRepository {
	return &AlarmRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 创建报警
// 同一 event_id 重复创建返回 ErrDuplicateAlarm（唯一约束冲突）
func (r *AlarmRepository) Insert(ctx context.Context, alarm *models.Alarm) error {
	query := `
		INSERT INTO alarms (
			alarm_id, event_id, node_id, triggered_at, status, priority,
			classification, siren_activated, lights_activated,
			actuation_duration, notifications_sent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	sent, err := json.Marshal(alarm.NotificationsSent)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications_sent: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		alarm.AlarmID,
		alarm.EventID,
		alarm.NodeID,
		alarm.TriggeredAt,
		string(alarm.Status),
		string(alarm.Priority),
		string(alarm.Classification),
		alarm.SirenActivated,
		alarm.LightsActivated,
		alarm.ActuationDuration,
		sent,
	)
	if err != nil {
		// 23505 = unique_violation
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateAlarm
		}
		return fmt.Errorf("failed to insert alarm for event %s: %w", alarm.EventID, err)
	}

	return nil
}

const alarmColumns = `
	alarm_id,
	event_id,
	node_id,
	triggered_at,
	acknowledged_at,
	resolved_at,
	status,
	priority,
	classification,
	siren_activated,
	lights_activated,
	actuation_duration,
	acknowledged_by,
	resolution_notes,
	notifications_sent
`

// GetAlarm 根据 alarm_id 获取报警
func (r *AlarmRepository) GetAlarm(ctx context.Context, alarmID string) (*models.Alarm, error) {
	if alarmID == "" {
		return nil, fmt.Errorf("alarm_id is required")
	}

	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE alarm_id = $1`

	var alarm models.Alarm
	var acknowledgedAt, resolvedAt sql.NullTime
	var status, priority, classification string
	var acknowledgedBy, resolutionNotes sql.NullString
	var notificationsSent []byte

	err := r.db.QueryRowContext(ctx, query, alarmID).Scan(
		&alarm.AlarmID,
		&alarm.EventID,
		&alarm.NodeID,
		&alarm.TriggeredAt,
		&acknowledgedAt,
		&resolvedAt,
		&status,
		&priority,
		&classification,
		&alarm.SirenActivated,
		&alarm.LightsActivated,
		&alarm.ActuationDuration,
		&acknowledgedBy,
		&resolutionNotes,
		&notificationsSent,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query alarm %s: %w", alarmID, err)
	}

	alarm.Status = models.AlarmStatus(status)
	alarm.Priority = models.AlarmPriority(priority)
	alarm.Classification = models.IntrusionClass(classification)

	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		alarm.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		alarm.ResolvedAt = &t
	}
	if acknowledgedBy.Valid {
		alarm.AcknowledgedBy = acknowledgedBy.String
	}
	if resolutionNotes.Valid {
		alarm.ResolutionNotes = resolutionNotes.String
	}
	if len(notificationsSent) > 0 {
		if err := json.Unmarshal(notificationsSent, &alarm.NotificationsSent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notifications_sent: %w", err)
		}
	}

	return &alarm, nil
}

// UpdateLifecycle 更新报警生命周期字段（状态、时间戳、处理人、备注）
func (r *AlarmRepository) UpdateLifecycle(ctx context.Context, alarm *models.Alarm) error {
	query := `
		UPDATE alarms SET
			status = $2,
			acknowledged_at = $3,
			resolved_at = $4,
			acknowledged_by = $5,
			resolution_notes = $6
		WHERE alarm_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		alarm.AlarmID,
		string(alarm.Status),
		alarm.AcknowledgedAt,
		alarm.ResolvedAt,
		alarm.AcknowledgedBy,
		alarm.ResolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to update alarm %s: %w", alarm.AlarmID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SetNotificationsSent 记录成功送达的通知渠道（分发完成后回写）
func (r *AlarmRepository) SetNotificationsSent(ctx context.Context, alarmID string, channels []string) error {
	sent, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications_sent: %w", err)
	}

	query := `UPDATE alarms SET notifications_sent = $2 WHERE alarm_id = $1`

	_, err = r.db.ExecContext(ctx, query, alarmID, sent)
	if err != nil {
		return fmt.Errorf("failed to update notifications for alarm %s: %w", alarmID, err)
	}

	return nil
}
