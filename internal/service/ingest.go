package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/alarm"
	"github.com/turiliffiu/agrisecure/internal/cache"
	"github.com/turiliffiu/agrisecure/internal/config"
	"github.com/turiliffiu/agrisecure/internal/consumer"
	"github.com/turiliffiu/agrisecure/internal/database"
	"github.com/turiliffiu/agrisecure/internal/models"
	"github.com/turiliffiu/agrisecure/internal/mqtt"
	"github.com/turiliffiu/agrisecure/internal/notifier"
	"github.com/turiliffiu/agrisecure/internal/publisher"
	"github.com/turiliffiu/agrisecure/internal/registry"
	"github.com/turiliffiu/agrisecure/internal/repository"
	"github.com/turiliffiu/agrisecure/internal/threshold"
)

// armModeKey 当前布防模式的缓存键
const armModeKey = "agrisecure:arm:mode"

// IngestService 摄取服务：组装 MQTT 摄取与报警管道的全部组件
type IngestService struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client

	nodes     *repository.NodeRepository
	armStates *repository.ArmStateRepository

	registry   *registry.Registry
	dispatcher *notifier.Dispatcher
	alarms     *alarm.Manager
	publisher  *publisher.CommandPublisher
	subscriber *consumer.Subscriber

	cancel context.CancelFunc
	done   chan struct{}
}

// NewIngestService 创建摄取服务并完成依赖装配
func NewIngestService(cfg *config.Config, logger *zap.Logger) (*IngestService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	redisClient := cache.NewRedisClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
	}

	nodeRepo := repository.NewNodeRepository(db, logger)
	readingRepo := repository.NewReadingRepository(db, logger)
	eventRepo := repository.NewSecurityEventRepository(db, logger)
	alarmRepo := repository.NewAlarmRepository(db, logger)
	alertRepo := repository.NewSensorAlertRepository(db, logger)
	armStateRepo := repository.NewArmStateRepository(db, logger)

	reg := registry.NewRegistry(nodeRepo, redisClient, cfg, logger)
	evaluator := threshold.NewEvaluator(cfg, logger)

	dispatcher := notifier.NewDispatcher(cfg, alarmRepo, notifier.BuildChannels(cfg), logger)
	alarmMgr := alarm.NewManager(alarmRepo, dispatcher, redisClient, logger)
	cmdPublisher := publisher.NewCommandPublisher(mqttClient, cfg.Ingest.TopicRoot, logger)

	sub := consumer.NewSubscriber(cfg, mqttClient, reg, readingRepo, alertRepo, eventRepo,
		evaluator, alarmMgr, redisClient, logger)

	return &IngestService{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		nodes:       nodeRepo,
		armStates:   armStateRepo,
		registry:    reg,
		dispatcher:  dispatcher,
		alarms:      alarmMgr,
		publisher:   cmdPublisher,
		subscriber:  sub,
		done:        make(chan struct{}),
	}, nil
}

// Start 启动摄取服务
// 顺序：通知分发 → 活性巡检 → MQTT 订阅（订阅最后启动，保证下游就绪）
func (s *IngestService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.dispatcher.Start()

	go s.livenessLoop(ctx)

	if err := s.subscriber.Start(ctx); err != nil {
		cancel()
		return err
	}

	s.logger.Info("Ingest service started")
	return nil
}

// Stop 优雅停机
// 顺序与启动相反：先停摄取，再排空通知队列，最后断开连接
func (s *IngestService) Stop() {
	s.logger.Info("Ingest service stopping")

	s.subscriber.Stop()

	if s.cancel != nil {
		s.cancel()
	}
	<-s.done

	s.dispatcher.Stop()

	s.mqttClient.Disconnect()
	if err := s.redisClient.Close(); err != nil {
		s.logger.Warn("Failed to close redis client", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Failed to close database", zap.Error(err))
	}

	s.logger.Info("Ingest service stopped")
}

// livenessLoop 周期性的节点活性巡检
func (s *IngestService) livenessLoop(ctx context.Context) {
	defer close(s.done)

	interval := time.Duration(s.cfg.Liveness.SweepInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := s.registry.SweepLiveness(ctx, time.Now().UTC())
			if err != nil {
				s.logger.Error("Liveness sweep failed", zap.Error(err))
				continue
			}
			if changed > 0 {
				s.logger.Info("Liveness sweep completed", zap.Int("nodes_changed", changed))
			}
		}
	}
}

// SetArmMode 切换系统布防模式
// 追加布防历史 → 刷新缓存中的当前模式 → 向安防节点下发布防命令
func (s *IngestService) SetArmMode(ctx context.Context, mode models.ArmMode, actor, source string, nodeIDs []string) error {
	previous, err := s.armStates.GetCurrentMode(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current arm mode: %w", err)
	}

	state := &models.SystemArmState{
		Timestamp:     time.Now().UTC(),
		Mode:          mode,
		PreviousMode:  previous,
		ChangedBy:     actor,
		ChangeSource:  source,
		NodesAffected: nodeIDs,
	}
	if err := s.armStates.Insert(ctx, state); err != nil {
		return fmt.Errorf("failed to record arm state: %w", err)
	}

	if err := s.redisClient.Set(ctx, armModeKey, string(mode), 0).Err(); err != nil {
		s.logger.Warn("Failed to cache arm mode", zap.Error(err))
	}

	s.logger.Info("Arm mode changed",
		zap.String("mode", string(mode)),
		zap.String("previous", string(previous)),
		zap.String("changed_by", actor),
		zap.Int("nodes", len(nodeIDs)),
	)

	if len(nodeIDs) > 0 {
		if err := s.publisher.PublishArm(mode, nodeIDs); err != nil {
			return fmt.Errorf("arm mode recorded but command fan-out incomplete: %w", err)
		}
	}

	return nil
}

// ArmAll 对全部在册安防节点布防/撤防
func (s *IngestService) ArmAll(ctx context.Context, mode models.ArmMode, actor, source string) error {
	nodes, err := s.nodes.ListActiveNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}

	var targets []string
	for _, n := range nodes {
		if n.NodeType == models.NodeTypeSecurity {
			targets = append(targets, n.NodeID)
		}
	}

	return s.SetArmMode(ctx, mode, actor, source, targets)
}
