package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/models"
)

// SecurityEventRepository 安防事件仓库（追加写入，所有事件都入库供审计）
type SecurityEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSecurityEventRepository 创建安防事件仓库
func NewSecurityEventRepository(db *sql.DB, logger *zap.Logger) *SecurityEventRepository {
	return &SecurityEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入一条安防事件
func (r *SecurityEventRepository) Insert(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			event_id, node_id, timestamp, classification, priority,
			pir_main, pir_backup, motion_confirmed, tamper_detected,
			accel_x, accel_y, accel_z, confidence, duration_ms, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	rawData := event.RawData
	if len(rawData) == 0 {
		rawData = []byte(`{}`)
	}

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.NodeID,
		event.Timestamp,
		string(event.Classification),
		string(event.Priority),
		event.PirMain,
		event.PirBackup,
		event.MotionConfirmed,
		event.TamperDetected,
		event.AccelX,
		event.AccelY,
		event.AccelZ,
		event.Confidence,
		event.DurationMS,
		rawData,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event for %s: %w", event.NodeID, err)
	}

	return nil
}
