package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/models"
)

// Transport 下行发布所需的 MQTT 能力
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// commandQoS 下行命令统一 QoS 1：至少一次送达
const commandQoS = 1

// CommandPublisher 向节点发布下行命令与配置
type CommandPublisher struct {
	transport Transport
	topicRoot string
	logger    *zap.Logger
}

// NewCommandPublisher 创建下行发布器
func NewCommandPublisher(transport Transport, topicRoot string, logger *zap.Logger) *CommandPublisher {
	return &CommandPublisher{
		transport: transport,
		topicRoot: topicRoot,
		logger:    logger,
	}
}

// Publish 向单个节点发布命令
// 主题：{root}/{node_id}/command
func (p *CommandPublisher) Publish(nodeID, command string, params map[string]interface{}) error {
	if params == nil {
		params = map[string]interface{}{}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"command":   command,
		"target":    nodeID,
		"params":    params,
		"timestamp": time.Now().UTC().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/command", p.topicRoot, nodeID)
	if err := p.transport.Publish(topic, commandQoS, false, payload); err != nil {
		return fmt.Errorf("failed to publish command to %s: %w", topic, err)
	}

	p.logger.Info("Command published",
		zap.String("node_id", nodeID),
		zap.String("command", command),
	)

	return nil
}

// PublishArm 向一组节点广播布防/撤防命令
// 逐节点发布，部分失败不中断其余节点；任一失败则整体返回错误
func (p *CommandPublisher) PublishArm(mode models.ArmMode, nodeIDs []string) error {
	command := "arm"
	if mode == models.ArmModeDisarmed {
		command = "disarm"
	}

	params := map[string]interface{}{
		"mode":    string(mode),
		"targets": nodeIDs,
	}

	var failed []string
	for _, nodeID := range nodeIDs {
		if err := p.Publish(nodeID, command, params); err != nil {
			p.logger.Error("Failed to publish arm command",
				zap.String("node_id", nodeID),
				zap.String("mode", string(mode)),
				zap.Error(err),
			)
			failed = append(failed, nodeID)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("arm command failed for %d/%d nodes: %v", len(failed), len(nodeIDs), failed)
	}

	return nil
}

// PublishConfig 向节点发布保留配置消息
// retained=true：节点重连后仍能收到最新配置
func (p *CommandPublisher) PublishConfig(nodeID string, cfg map[string]interface{}) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal node config: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/config", p.topicRoot, nodeID)
	if err := p.transport.Publish(topic, commandQoS, true, payload); err != nil {
		return fmt.Errorf("failed to publish config to %s: %w", topic, err)
	}

	p.logger.Info("Node config published",
		zap.String("node_id", nodeID),
	)

	return nil
}
