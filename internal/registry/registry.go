package registry

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/cache"
	"github.com/turiliffiu/agrisecure/internal/config"
	"github.com/turiliffiu/agrisecure/internal/models"
	"github.com/turiliffiu/agrisecure/internal/normalizer"
	"github.com/turiliffiu/agrisecure/internal/repository"
)

// lockStripes 每设备互斥锁的分片数
const lockStripes = 64

// NodeStore 节点持久化接口（单元测试中以内存实现替换）
type NodeStore interface {
	GetNode(ctx context.Context, nodeID string) (*models.Node, error)
	CreateNode(ctx context.Context, node *models.Node) error
	UpdateNode(ctx context.Context, node *models.Node) error
	ListActiveNodes(ctx context.Context) ([]*models.Node, error)
	InsertHeartbeat(ctx context.Context, hb *models.NodeHeartbeat) error
	InsertNodeEvent(ctx context.Context, ev *models.NodeEvent) error
}

// Registry 设备注册表
// node_id → 节点状态的权威映射：首次联系时隐式创建，每条入站消息更新在线状态。
// 同一节点的更新通过按 node_id 分片的互斥锁串行化，避免并发消息丢失字段更新。
type Registry struct {
	store       NodeStore
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.Logger

	locks [lockStripes]sync.Mutex
}

// NewRegistry 创建设备注册表
func NewRegistry(store NodeStore, redisClient *redis.Client, cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		store:       store,
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}
}

// lockFor 获取 node_id 对应的分片锁
func (r *Registry) lockFor(nodeID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(nodeID))
	return &r.locks[h.Sum32()%lockStripes]
}

// ParseNodeType 解析生产方的节点类型提示（全称或缩写，大小写不敏感）
func ParseNodeType(hint string) (models.NodeType, bool) {
	switch strings.ToUpper(strings.TrimSpace(hint)) {
	case "GW", "GATEWAY":
		return models.NodeTypeGateway, true
	case "AMB", "AMBIENT":
		return models.NodeTypeAmbient, true
	case "SEC", "SECURITY":
		return models.NodeTypeSecurity, true
	}
	return "", false
}

// ComputeStatus 重算节点在线状态（last_seen 与电池健康的纯函数）
// 无 last_seen → offline；超过临界超时 → offline；超过警告超时 → warning；
// 电池临界（<=10% 且未充电）→ warning；其余 → online
func ComputeStatus(node *models.Node, now time.Time, warningTimeout, criticalTimeout time.Duration) models.NodeStatus {
	if node.LastSeen == nil {
		return models.NodeStatusOffline
	}

	elapsed := now.Sub(*node.LastSeen)
	if elapsed > criticalTimeout {
		return models.NodeStatusOffline
	}
	if elapsed > warningTimeout {
		return models.NodeStatusWarning
	}
	if node.BatteryHealth() == models.BatteryStatusCritical {
		return models.NodeStatusWarning
	}
	return models.NodeStatusOnline
}

// TouchFromContact 入站消息触达：未知节点隐式创建，已知节点更新在线状态
// hint 为调用方（对应 handler）推断的默认节点类型，仅在创建时使用
func (r *Registry) TouchFromContact(ctx context.Context, nodeID string, hint models.NodeType, now time.Time) (*models.Node, error) {
	mu := r.lockFor(nodeID)
	mu.Lock()
	defer mu.Unlock()

	node, created, err := r.getOrCreate(ctx, nodeID, hint, now)
	if err != nil {
		return nil, err
	}

	prev := node.Status
	t := now
	node.LastSeen = &t
	node.Status = r.computeStatus(node, now)

	if err := r.store.UpdateNode(ctx, node); err != nil {
		return nil, err
	}

	if created || node.Status != prev {
		r.publishStatus(ctx, node)
	}

	return node, nil
}

// ApplyStatus 应用 status/心跳报文：合并运行统计字段并追加心跳记录
// 仅覆盖报文中出现的字段，缺失字段不清除已知值
func (r *Registry) ApplyStatus(ctx context.Context, p *normalizer.StatusPayload, now time.Time) (*models.Node, error) {
	hint := models.NodeTypeAmbient
	if t, ok := ParseNodeType(p.TypeHint); ok {
		hint = t
	}

	mu := r.lockFor(p.NodeID)
	mu.Lock()
	defer mu.Unlock()

	node, created, err := r.getOrCreate(ctx, p.NodeID, hint, now)
	if err != nil {
		return nil, err
	}

	prev := node.Status
	t := now
	node.LastSeen = &t

	if p.Uptime != nil {
		node.UptimeSeconds = *p.Uptime
	}
	if p.RSSI != nil {
		node.RSSI = p.RSSI
	}
	if p.MeshPeers != nil {
		node.MeshNeighbors = *p.MeshPeers
	}
	if p.Firmware != nil {
		node.FirmwareVersion = *p.Firmware
	}
	if p.Battery != nil {
		node.BatteryPercentage = p.Battery
	}

	node.Status = r.computeStatus(node, now)

	if err := r.store.UpdateNode(ctx, node); err != nil {
		return nil, err
	}

	// 心跳历史追加失败不影响节点状态更新
	hb := &models.NodeHeartbeat{
		NodeID:            node.NodeID,
		Timestamp:         now,
		UptimeSeconds:     node.UptimeSeconds,
		RSSI:              p.RSSI,
		BatteryPercentage: p.Battery,
		MeshNeighbors:     node.MeshNeighbors,
	}
	if p.HeapFree != nil {
		hb.FreeHeapKB = int(*p.HeapFree / 1024)
	}
	if err := r.store.InsertHeartbeat(ctx, hb); err != nil {
		r.logger.Warn("Failed to insert heartbeat",
			zap.String("node_id", node.NodeID),
			zap.Error(err),
		)
	}

	if created || node.Status != prev {
		r.publishStatus(ctx, node)
	}

	return node, nil
}

// SweepLiveness 周期性在线状态重算
// 静默节点不会因消息触达重算状态，必须由该扫描发现其离线
func (r *Registry) SweepLiveness(ctx context.Context, now time.Time) (int, error) {
	nodes, err := r.store.ListActiveNodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list nodes for liveness sweep: %w", err)
	}

	changed := 0
	for _, listed := range nodes {
		if listed.LastSeen == nil {
			continue
		}

		mu := r.lockFor(listed.NodeID)
		mu.Lock()

		// 列表快照可能已过期：消息可能在列表与加锁之间触达，
		// 锁内重读节点，避免用旧快照覆盖新的 last_seen
		node, err := r.store.GetNode(ctx, listed.NodeID)
		if err != nil {
			mu.Unlock()
			r.logger.Error("Failed to reload node during sweep",
				zap.String("node_id", listed.NodeID),
				zap.Error(err),
			)
			continue
		}
		if node.LastSeen == nil {
			mu.Unlock()
			continue
		}

		prev := node.Status
		node.Status = r.computeStatus(node, now)

		if node.Status != prev {
			if err := r.store.UpdateNode(ctx, node); err != nil {
				mu.Unlock()
				r.logger.Error("Failed to update node during sweep",
					zap.String("node_id", node.NodeID),
					zap.Error(err),
				)
				continue
			}
			changed++

			if node.Status == models.NodeStatusOffline {
				minutes := int(now.Sub(*node.LastSeen).Minutes())
				ev := &models.NodeEvent{
					NodeID:    node.NodeID,
					Timestamp: now,
					EventType: models.NodeEventOffline,
					Message:   fmt.Sprintf("node silent for %d minutes", minutes),
				}
				if err := r.store.InsertNodeEvent(ctx, ev); err != nil {
					r.logger.Warn("Failed to insert node event",
						zap.String("node_id", node.NodeID),
						zap.Error(err),
					)
				}
			}

			r.publishStatus(ctx, node)

			r.logger.Info("Node status changed by liveness sweep",
				zap.String("node_id", node.NodeID),
				zap.String("from", string(prev)),
				zap.String("to", string(node.Status)),
			)
		}

		mu.Unlock()
	}

	return changed, nil
}

// getOrCreate 获取节点，不存在则用默认值创建（调用方必须已持有该节点的锁）
func (r *Registry) getOrCreate(ctx context.Context, nodeID string, hint models.NodeType, now time.Time) (*models.Node, bool, error) {
	node, err := r.store.GetNode(ctx, nodeID)
	if err == nil {
		return node, false, nil
	}
	if err != repository.ErrNotFound {
		return nil, false, fmt.Errorf("failed to get node %s: %w", nodeID, err)
	}

	node = &models.Node{
		NodeID:   nodeID,
		Name:     "Node " + nodeID,
		NodeType: hint,
		Status:   models.NodeStatusOffline,
		IsArmed:  hint == models.NodeTypeSecurity,
		IsActive: true,
	}

	if err := r.store.CreateNode(ctx, node); err != nil {
		return nil, false, fmt.Errorf("failed to create node %s: %w", nodeID, err)
	}

	r.logger.Info("New node registered",
		zap.String("node_id", nodeID),
		zap.String("node_type", string(hint)),
	)

	return node, true, nil
}

func (r *Registry) computeStatus(node *models.Node, now time.Time) models.NodeStatus {
	return ComputeStatus(
		node,
		now,
		time.Duration(r.cfg.Liveness.WarningTimeout)*time.Second,
		time.Duration(r.cfg.Liveness.CriticalTimeout)*time.Second,
	)
}

// publishStatus 向实时推送层的输出流发布节点状态变更
// 发布失败只记录日志，不影响摄取路径
func (r *Registry) publishStatus(ctx context.Context, node *models.Node) {
	if r.redisClient == nil {
		return
	}

	data := map[string]interface{}{
		"node_id":   node.NodeID,
		"node_type": string(node.NodeType),
		"status":    string(node.Status),
	}
	if node.LastSeen != nil {
		data["last_seen"] = node.LastSeen.Unix()
	}
	if node.BatteryPercentage != nil {
		data["battery_percentage"] = *node.BatteryPercentage
	}

	if _, err := cache.PublishJSONToStream(ctx, r.redisClient, cache.StreamDeviceStatus, data); err != nil {
		r.logger.Warn("Failed to publish node status to stream",
			zap.String("node_id", node.NodeID),
			zap.Error(err),
		)
	}
}
