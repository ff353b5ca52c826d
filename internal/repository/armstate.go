package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/models"
)

// ArmStateRepository 布防状态仓库（追加写入的历史表）
type ArmStateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewArmStateRepository 创建布防状态仓库
func NewArmStateRepository(db *sql.DB, logger *zap.Logger) *ArmStateRepository {
	return &ArmStateRepository{
		db:     db,
		logger: logger,
	}
}

// GetCurrentMode 获取当前布防模式
// 当前模式 = 最新一条记录的 mode；无记录时为 disarmed
func (r *ArmStateRepository) GetCurrentMode(ctx context.Context) (models.ArmMode, error) {
	query := `SELECT mode FROM system_arm_states ORDER BY timestamp DESC, id DESC LIMIT 1`

	var mode string
	err := r.db.QueryRowContext(ctx, query).Scan(&mode)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ArmModeDisarmed, nil
		}
		return "", fmt.Errorf("failed to query current arm mode: %w", err)
	}

	return models.ArmMode(mode), nil
}

// Insert 追加一条布防状态变更记录
func (r *ArmStateRepository) Insert(ctx context.Context, state *models.SystemArmState) error {
	query := `
		INSERT INTO system_arm_states (
			timestamp, mode, previous_mode, changed_by, change_source,
			nodes_affected, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		state.Timestamp,
		string(state.Mode),
		string(state.PreviousMode),
		state.ChangedBy,
		state.ChangeSource,
		pq.Array(state.NodesAffected),
		state.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert arm state: %w", err)
	}

	return nil
}
