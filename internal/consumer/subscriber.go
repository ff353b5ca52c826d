package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/alarm"
	"github.com/turiliffiu/agrisecure/internal/cache"
	"github.com/turiliffiu/agrisecure/internal/classifier"
	"github.com/turiliffiu/agrisecure/internal/config"
	"github.com/turiliffiu/agrisecure/internal/models"
	"github.com/turiliffiu/agrisecure/internal/mqtt"
	"github.com/turiliffiu/agrisecure/internal/normalizer"
	"github.com/turiliffiu/agrisecure/internal/registry"
	"github.com/turiliffiu/agrisecure/internal/router"
	"github.com/turiliffiu/agrisecure/internal/threshold"
)

// subscribeQoS 上行订阅 QoS 1
const subscribeQoS = 1

// Broker 订阅侧需要的 MQTT 能力
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// ReadingStore 传感器读数写入
type ReadingStore interface {
	Insert(ctx context.Context, reading *models.SensorReading) (int64, error)
}

// AlertStore 阈值告警写入
type AlertStore interface {
	Insert(ctx context.Context, alert *models.SensorAlert) (int64, error)
}

// EventStore 安防事件写入
type EventStore interface {
	Insert(ctx context.Context, event *models.SecurityEvent) error
}

// job 单条待处理的 MQTT 消息
type job struct {
	topic   string
	payload []byte
}

// Subscriber MQTT 摄取消费者
// 单一订阅回调将消息投入有界队列，worker 池并发处理；
// 队列满时丢弃新消息而不是阻塞 MQTT 客户端回调
type Subscriber struct {
	cfg       *config.Config
	broker    Broker
	registry  *registry.Registry
	readings  ReadingStore
	alerts    AlertStore
	events    EventStore
	evaluator *threshold.Evaluator
	alarms    *alarm.Manager

	redisClient *redis.Client
	logger      *zap.Logger

	jobs chan job
	wg   sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

// NewSubscriber 创建摄取消费者
func NewSubscriber(
	cfg *config.Config,
	broker Broker,
	reg *registry.Registry,
	readings ReadingStore,
	alerts AlertStore,
	events EventStore,
	evaluator *threshold.Evaluator,
	alarms *alarm.Manager,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Subscriber {
	queueSize := cfg.Ingest.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Subscriber{
		cfg:         cfg,
		broker:      broker,
		registry:    reg,
		readings:    readings,
		alerts:      alerts,
		events:      events,
		evaluator:   evaluator,
		alarms:      alarms,
		redisClient: redisClient,
		logger:      logger,
		jobs:        make(chan job, queueSize),
	}
}

// Start 订阅通配主题并启动 worker 池
func (s *Subscriber) Start(ctx context.Context) error {
	workers := s.cfg.Ingest.Workers
	if workers <= 0 {
		workers = 4
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	topic := s.cfg.Ingest.TopicRoot + "/#"
	if err := s.broker.Subscribe(topic, subscribeQoS, s.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", topic, err)
	}

	s.logger.Info("Ingest subscriber started",
		zap.String("topic", topic),
		zap.Int("workers", workers),
		zap.Int("queue_size", cap(s.jobs)),
	)

	return nil
}

// Stop 退订并等待在途消息处理完成
func (s *Subscriber) Stop() {
	topic := s.cfg.Ingest.TopicRoot + "/#"
	if err := s.broker.Unsubscribe(topic); err != nil {
		s.logger.Warn("Failed to unsubscribe", zap.String("topic", topic), zap.Error(err))
	}

	// 退订后客户端仍可能异步投递已接收的消息，
	// 先置关闭标记并等待在途回调退出，再关闭队列
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	close(s.jobs)
	s.wg.Wait()
	s.logger.Info("Ingest subscriber stopped")
}

// handleMessage MQTT 回调：非阻塞入队，停机后丢弃迟到消息
func (s *Subscriber) handleMessage(topic string, payload []byte) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return nil
	}

	select {
	case s.jobs <- job{topic: topic, payload: payload}:
	default:
		s.logger.Warn("Ingest queue full, message dropped",
			zap.String("topic", topic),
		)
	}
	return nil
}

// worker 消费队列直至关闭
func (s *Subscriber) worker(ctx context.Context) {
	defer s.wg.Done()
	for j := range s.jobs {
		s.dispatch(ctx, j)
	}
}

// dispatch 按主题类别路由单条消息
// 单条消息的处理错误只记录不外溢：坏消息绝不影响其它消息
func (s *Subscriber) dispatch(ctx context.Context, j job) {
	var err error
	switch router.Route(j.topic) {
	case router.CategorySensors:
		err = s.handleSensor(ctx, j.payload)
	case router.CategorySecurity:
		err = s.handleSecurity(ctx, j.payload)
	case router.CategoryStatus:
		err = s.handleStatus(ctx, j.payload)
	default:
		s.logger.Warn("Message on unknown topic, ignored",
			zap.String("topic", j.topic),
		)
		return
	}

	if err != nil {
		s.logger.Error("Failed to process message",
			zap.String("topic", j.topic),
			zap.String("node_id", router.NodeIDFromTopic(j.topic)),
			zap.Error(err),
		)
	}
}

// handleSensor 环境传感器管道：规范化 → 注册表 touch → 入库 → 阈值评估
func (s *Subscriber) handleSensor(ctx context.Context, payload []byte) error {
	now := time.Now().UTC()

	p, err := normalizer.NormalizeSensor(payload, now)
	if err != nil {
		return err
	}

	if _, err := s.registry.TouchFromContact(ctx, p.NodeID, models.NodeTypeAmbient, now); err != nil {
		return fmt.Errorf("registry touch failed: %w", err)
	}

	reading := &models.SensorReading{
		NodeID:              p.NodeID,
		Timestamp:           p.Timestamp,
		Temperature:         p.Temperature,
		Humidity:            p.Humidity,
		Pressure:            p.Pressure,
		LightLux:            p.LightLux,
		SoilMoistureRaw:     p.SoilMoistureRaw,
		SoilMoisturePercent: p.SoilMoisturePercent,
		BatteryVoltage:      p.BatteryVoltage,
	}

	id, err := s.readings.Insert(ctx, reading)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	reading.ID = id

	for _, a := range s.evaluator.Evaluate(reading) {
		s.persistAlert(ctx, a)
	}

	return nil
}

// handleSecurity 安防事件管道：规范化 → 分类 → 入库 → 报警决策
func (s *Subscriber) handleSecurity(ctx context.Context, payload []byte) error {
	now := time.Now().UTC()

	p, err := normalizer.NormalizeSecurity(payload, now)
	if err != nil {
		return err
	}

	if _, err := s.registry.TouchFromContact(ctx, p.NodeID, models.NodeTypeSecurity, now); err != nil {
		return fmt.Errorf("registry touch failed: %w", err)
	}

	event := &models.SecurityEvent{
		EventID:         uuid.New().String(),
		NodeID:          p.NodeID,
		Timestamp:       p.Timestamp,
		Classification:  classifier.ClassifyIntrusion(p.ClassificationRaw),
		Priority:        classifier.ClassifyPriority(p.PriorityRaw),
		PirMain:         p.PirMain,
		PirBackup:       p.PirBackup,
		MotionConfirmed: p.PirMain && p.PirBackup,
		TamperDetected:  p.Tamper,
		AccelX:          p.AccelX,
		AccelY:          p.AccelY,
		AccelZ:          p.AccelZ,
		Confidence:      p.Confidence,
		DurationMS:      p.DurationMS,
		RawData:         p.Raw,
	}

	if err := s.events.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	decision := classifier.DecideAlarm(event.Classification)
	if !decision.CreateAlarm {
		s.logger.Debug("Security event below alarm threshold",
			zap.String("event_id", event.EventID),
			zap.String("node_id", event.NodeID),
			zap.String("classification", string(event.Classification)),
		)
		return nil
	}

	created, err := s.alarms.CreateFromEvent(ctx, event, decision)
	if err != nil {
		return fmt.Errorf("failed to create alarm: %w", err)
	}

	s.alarms.DispatchNotifications(created)

	return nil
}

// handleStatus 状态/心跳管道：规范化 → 注册表合并 → 电池阈值
func (s *Subscriber) handleStatus(ctx context.Context, payload []byte) error {
	now := time.Now().UTC()

	p, err := normalizer.NormalizeStatus(payload, now)
	if err != nil {
		return err
	}

	node, err := s.registry.ApplyStatus(ctx, p, now)
	if err != nil {
		return fmt.Errorf("registry apply failed: %w", err)
	}

	if p.Battery != nil {
		for _, a := range s.evaluator.EvaluateBattery(node.NodeID, *p.Battery, node.IsCharging, now) {
			s.persistAlert(ctx, a)
		}
	}

	return nil
}

// persistAlert 告警入库并发流；单条失败只记录，不影响后续告警
func (s *Subscriber) persistAlert(ctx context.Context, a *models.SensorAlert) {
	id, err := s.alerts.Insert(ctx, a)
	if err != nil {
		s.logger.Error("Failed to insert sensor alert",
			zap.String("node_id", a.NodeID),
			zap.String("alert_type", string(a.AlertType)),
			zap.Error(err),
		)
		return
	}
	a.ID = id

	s.logger.Warn("Sensor alert raised",
		zap.String("node_id", a.NodeID),
		zap.String("alert_type", string(a.AlertType)),
		zap.String("severity", string(a.Severity)),
		zap.Float64("value", a.Value),
		zap.Float64("threshold", a.Threshold),
	)

	if s.redisClient != nil {
		if _, err := cache.PublishJSONToStream(ctx, s.redisClient, cache.StreamAlarms, a); err != nil {
			s.logger.Warn("Failed to publish alert to stream",
				zap.String("node_id", a.NodeID),
				zap.Error(err),
			)
		}
	}
}
