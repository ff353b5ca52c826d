package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/models"
)

// SensorAlertRepository 传感器告警仓库
type SensorAlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorAlertRepository 创建传感器告警仓库
func NewSensorAlertRepository(db *sql.DB, logger *zap.Logger) *SensorAlertRepository {
	return &SensorAlertRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入一条传感器告警，返回自增ID
func (r *SensorAlertRepository) Insert(ctx context.Context, alert *models.SensorAlert) (int64, error) {
	query := `
		INSERT INTO sensor_alerts (
			node_id, timestamp, alert_type, severity, value, threshold, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		alert.NodeID,
		alert.Timestamp,
		string(alert.AlertType),
		string(alert.Severity),
		alert.Value,
		alert.Threshold,
		alert.Message,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sensor alert for %s: %w", alert.NodeID, err)
	}

	return id, nil
}

// Acknowledge 标记告警为已处理
func (r *SensorAlertRepository) Acknowledge(ctx context.Context, alertID int64, actor string, now time.Time) error {
	query := `
		UPDATE sensor_alerts SET
			is_acknowledged = TRUE,
			acknowledged_at = $2,
			acknowledged_by = $3
		WHERE id = $1 AND is_acknowledged = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, alertID, now, actor)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", alertID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Resolve 标记告警为已解决
func (r *SensorAlertRepository) Resolve(ctx context.Context, alertID int64, now time.Time) error {
	query := `
		UPDATE sensor_alerts SET
			is_resolved = TRUE,
			resolved_at = $2
		WHERE id = $1 AND is_resolved = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, alertID, now)
	if err != nil {
		return fmt.Errorf("failed to resolve alert %d: %w", alertID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return ErrNotFound
	}

	return nil
}
