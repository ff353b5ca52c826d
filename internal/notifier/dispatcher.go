package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/config"
	"github.com/turiliffiu/agrisecure/internal/models"
)

// AlarmStore 分发器需要的报警读写接口
type AlarmStore interface {
	GetAlarm(ctx context.Context, alarmID string) (*models.Alarm, error)
	SetNotificationsSent(ctx context.Context, alarmID string, channels []string) error
}

// Message 通知内容
type Message struct {
	Title string
	Body  string
}

// Channel 通知渠道
// 各渠道尝试相互独立：单渠道失败不阻塞其它渠道
type Channel interface {
	Name() string
	Send(ctx context.Context, alarm *models.Alarm, msg Message) error
}

// sendTimeout 单次渠道调用的超时
const sendTimeout = 10 * time.Second

// Dispatcher 通知分发器
// 有界进程内队列 + 单 worker 消费：摄取路径只入队即返回，
// 分发整体不会让触发它的消息处理失败（fire-and-forget）
type Dispatcher struct {
	cfg      *config.Config
	store    AlarmStore
	channels []Channel
	logger   *zap.Logger

	queue chan string
	wg    sync.WaitGroup
}

// NewDispatcher 创建通知分发器
func NewDispatcher(cfg *config.Config, store AlarmStore, channels []Channel, logger *zap.Logger) *Dispatcher {
	queueSize := cfg.Notify.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		channels: channels,
		logger:   logger,
		queue:    make(chan string, queueSize),
	}
}

// Notify 入队一个待分发的报警（非阻塞）
// 队列满时丢弃并记录错误：摄取路径绝不因通知积压而阻塞
func (d *Dispatcher) Notify(alarmID string) {
	select {
	case d.queue <- alarmID:
	default:
		d.logger.Error("Notification queue full, dropping",
			zap.String("alarm_id", alarmID),
		)
	}
}

// Start 启动分发 worker
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for alarmID := range d.queue {
			d.process(alarmID)
		}
	}()

	d.logger.Info("Notification dispatcher started",
		zap.Int("channels", len(d.channels)),
		zap.Int("queue_size", cap(d.queue)),
	)
}

// Stop 停止分发器：处理完已入队的报警后返回
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped")
}

// process 处理单个报警的全渠道分发
func (d *Dispatcher) process(alarmID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	alarm, err := d.store.GetAlarm(ctx, alarmID)
	if err != nil {
		d.logger.Error("Failed to load alarm for notification",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
		return
	}

	msg := formatMessage(alarm)

	var sent []string
	for _, ch := range d.channels {
		// 短信渠道仅用于 CRITICAL 报警
		if ch.Name() == "sms" && alarm.Priority != models.PriorityCritical {
			continue
		}

		if d.sendWithRetry(ctx, ch, alarm, msg) {
			sent = append(sent, ch.Name())
		}
	}

	// 分发完成后回写成功渠道（最终一致：报警创建与通知送达之间无分布式事务）
	if err := d.store.SetNotificationsSent(ctx, alarmID, sent); err != nil {
		d.logger.Error("Failed to record sent notifications",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
	}

	d.logger.Info("Notifications dispatched",
		zap.String("alarm_id", alarmID),
		zap.Strings("channels", sent),
	)
}

// sendWithRetry 单渠道发送，有界重试（默认最多 3 次，线性退避）
func (d *Dispatcher) sendWithRetry(ctx context.Context, ch Channel, alarm *models.Alarm, msg Message) bool {
	maxAttempts := d.cfg.Notify.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := time.Duration(d.cfg.Notify.RetryBackoff) * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := ch.Send(sendCtx, alarm, msg)
		cancel()

		if err == nil {
			return true
		}

		d.logger.Warn("Notification channel attempt failed",
			zap.String("alarm_id", alarm.AlarmID),
			zap.String("channel", ch.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Duration(attempt) * backoff):
			}
		}
	}

	return false
}

// formatMessage 构造通知内容
func formatMessage(alarm *models.Alarm) Message {
	var title string
	switch alarm.Classification {
	case models.IntrusionPerson:
		title = "PERSON DETECTED"
	case models.IntrusionTamper:
		title = "TAMPER ALERT"
	case models.IntrusionAnimalLarge:
		title = "Large animal detected"
	default:
		title = "Security alarm"
	}

	body := fmt.Sprintf("Node: %s\nTime: %s\nPriority: %s",
		alarm.NodeID,
		alarm.TriggeredAt.Format("15:04:05"),
		string(alarm.Priority),
	)

	return Message{Title: title, Body: body}
}
