package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/models"
)

// NodeRepository 节点仓库（节点及其心跳/事件历史）
type NodeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNodeRepository 创建节点仓库
func NewNodeRepository(db *sql.DB, logger *zap.Logger) *NodeRepository {
	return &NodeRepository{
		db:     db,
		logger: logger,
	}
}

const nodeColumns = `
	node_id,
	name,
	node_type,
	status,
	is_armed,
	firmware_version,
	last_seen,
	uptime_seconds,
	battery_voltage,
	battery_percentage,
	is_charging,
	rssi,
	mesh_neighbors,
	config,
	is_active,
	created_at,
	updated_at
`

// GetNode 根据 node_id 获取节点
func (r *NodeRepository) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("node_id is required")
	}

	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE node_id = $1`

	row := r.db.QueryRowContext(ctx, query, nodeID)
	node, err := scanNode(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query node %s: %w", nodeID, err)
	}

	return node, nil
}

// CreateNode 创建节点
func (r *NodeRepository) CreateNode(ctx context.Context, node *models.Node) error {
	query := `
		INSERT INTO nodes (
			node_id, name, node_type, status, is_armed, firmware_version,
			last_seen, uptime_seconds, battery_voltage, battery_percentage,
			is_charging, rssi, mesh_neighbors, config, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`

	config := node.Config
	if len(config) == 0 {
		config = []byte(`{}`)
	}

	_, err := r.db.ExecContext(ctx, query,
		node.NodeID,
		node.Name,
		string(node.NodeType),
		string(node.Status),
		node.IsArmed,
		node.FirmwareVersion,
		node.LastSeen,
		node.UptimeSeconds,
		node.BatteryVoltage,
		node.BatteryPercentage,
		node.IsCharging,
		node.RSSI,
		node.MeshNeighbors,
		config,
		node.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create node %s: %w", node.NodeID, err)
	}

	return nil
}

// UpdateNode 更新节点运行状态字段（node_id 不可变）
func (r *NodeRepository) UpdateNode(ctx context.Context, node *models.Node) error {
	query := `
		UPDATE nodes SET
			name = $2,
			node_type = $3,
			status = $4,
			is_armed = $5,
			firmware_version = $6,
			last_seen = $7,
			uptime_seconds = $8,
			battery_voltage = $9,
			battery_percentage = $10,
			is_charging = $11,
			rssi = $12,
			mesh_neighbors = $13,
			updated_at = NOW()
		WHERE node_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		node.NodeID,
		node.Name,
		string(node.NodeType),
		string(node.Status),
		node.IsArmed,
		node.FirmwareVersion,
		node.LastSeen,
		node.UptimeSeconds,
		node.BatteryVoltage,
		node.BatteryPercentage,
		node.IsCharging,
		node.RSSI,
		node.MeshNeighbors,
	)
	if err != nil {
		return fmt.Errorf("failed to update node %s: %w", node.NodeID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListActiveNodes 获取全部启用节点（周期性在线状态重算使用）
func (r *NodeRepository) ListActiveNodes(ctx context.Context) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE is_active = TRUE ORDER BY node_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}

	return nodes, nil
}

// InsertHeartbeat 追加心跳记录
func (r *NodeRepository) InsertHeartbeat(ctx context.Context, hb *models.NodeHeartbeat) error {
	query := `
		INSERT INTO node_heartbeats (
			node_id, timestamp, uptime_seconds, free_heap_kb,
			rssi, battery_percentage, mesh_neighbors
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		hb.NodeID,
		hb.Timestamp,
		hb.UptimeSeconds,
		hb.FreeHeapKB,
		hb.RSSI,
		hb.BatteryPercentage,
		hb.MeshNeighbors,
	)
	if err != nil {
		return fmt.Errorf("failed to insert heartbeat for %s: %w", hb.NodeID, err)
	}

	return nil
}

// InsertNodeEvent 追加节点系统事件（上下线等）
func (r *NodeRepository) InsertNodeEvent(ctx context.Context, ev *models.NodeEvent) error {
	query := `
		INSERT INTO node_events (node_id, timestamp, event_type, message)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		ev.NodeID,
		ev.Timestamp,
		string(ev.EventType),
		ev.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node event for %s: %w", ev.NodeID, err)
	}

	return nil
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanNode 扫描单行节点记录
func scanNode(row rowScanner) (*models.Node, error) {
	var node models.Node
	var nodeType, status string
	var lastSeen sql.NullTime
	var batteryVoltage sql.NullFloat64
	var batteryPercentage, rssi sql.NullInt64
	var config []byte

	err := row.Scan(
		&node.NodeID,
		&node.Name,
		&nodeType,
		&status,
		&node.IsArmed,
		&node.FirmwareVersion,
		&lastSeen,
		&node.UptimeSeconds,
		&batteryVoltage,
		&batteryPercentage,
		&node.IsCharging,
		&rssi,
		&node.MeshNeighbors,
		&config,
		&node.IsActive,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	node.NodeType = models.NodeType(nodeType)
	node.Status = models.NodeStatus(status)
	node.Config = config

	if lastSeen.Valid {
		t := lastSeen.Time
		node.LastSeen = &t
	}
	if batteryVoltage.Valid {
		v := batteryVoltage.Float64
		node.BatteryVoltage = &v
	}
	if batteryPercentage.Valid {
		p := int(batteryPercentage.Int64)
		node.BatteryPercentage = &p
	}
	if rssi.Valid {
		v := int(rssi.Int64)
		node.RSSI = &v
	}

	return &node, nil
}
