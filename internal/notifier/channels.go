package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/turiliffiu/agrisecure/internal/config"
	"github.com/turiliffiu/agrisecure/internal/models"
)

// smsMaxLength 单条短信长度上限
const smsMaxLength = 160

// TelegramChannel 通过 Telegram Bot API 推送报警
type TelegramChannel struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegramChannel 创建 Telegram 渠道
func NewTelegramChannel(token, chatID string) *TelegramChannel {
	return &TelegramChannel{
		client: resty.New(),
		token:  token,
		chatID: chatID,
	}
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

// Send 发送 Markdown 格式的报警消息
func (c *TelegramChannel) Send(ctx context.Context, alarm *models.Alarm, msg Message) error {
	text := fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    c.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post(fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", c.token))
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// SMSChannel 通过 HTTP 短信网关逐号发送
// 渠道本身不做优先级过滤，CRITICAL 门控由分发器负责
type SMSChannel struct {
	client     *resty.Client
	gatewayURL string
	recipients []string
}

// NewSMSChannel 创建短信渠道
func NewSMSChannel(gatewayURL string, recipients []string) *SMSChannel {
	return &SMSChannel{
		client:     resty.New(),
		gatewayURL: gatewayURL,
		recipients: recipients,
	}
}

func (c *SMSChannel) Name() string {
	return "sms"
}

// Send 向所有收件人发送，任一成功即视为渠道成功
func (c *SMSChannel) Send(ctx context.Context, alarm *models.Alarm, msg Message) error {
	text := fmt.Sprintf("%s %s", msg.Title, msg.Body)
	if len(text) > smsMaxLength {
		text = text[:smsMaxLength]
	}

	var lastErr error
	delivered := 0
	for _, to := range c.recipients {
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(map[string]string{
				"to":      to,
				"message": text,
			}).
			Post(c.gatewayURL)
		if err != nil {
			lastErr = fmt.Errorf("sms request to %s failed: %w", to, err)
			continue
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("sms gateway returned %d for %s", resp.StatusCode(), to)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		if lastErr != nil {
			return lastErr
		}
		return fmt.Errorf("no sms recipients configured")
	}

	return nil
}

// EmailChannel 通过 SMTP 发送报警邮件
type EmailChannel struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string

	// 测试中替换，默认 smtp.SendMail
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel 创建邮件渠道
func NewEmailChannel(host string, port int, username, password, from string, to []string) *EmailChannel {
	return &EmailChannel{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

func (c *EmailChannel) Name() string {
	return "email"
}

// Send 向所有收件人发送单封邮件
func (c *EmailChannel) Send(ctx context.Context, alarm *models.Alarm, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Title)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if c.username != "" {
		auth = smtp.PlainAuth("", c.username, c.password, c.host)
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if err := c.sendMail(addr, auth, c.from, c.to, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	return nil
}

// PushChannel 通过 HTTP 推送网关向移动端发送报警
type PushChannel struct {
	client     *resty.Client
	webhookURL string
}

// NewPushChannel 创建移动推送渠道
func NewPushChannel(webhookURL string) *PushChannel {
	return &PushChannel{
		client:     resty.New(),
		webhookURL: webhookURL,
	}
}

func (c *PushChannel) Name() string {
	return "push"
}

// Send 投递推送载荷，报警上下文随 payload 一并下发
func (c *PushChannel) Send(ctx context.Context, alarm *models.Alarm, msg Message) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"title":    msg.Title,
			"body":     msg.Body,
			"alarm_id": alarm.AlarmID,
			"node_id":  alarm.NodeID,
			"priority": string(alarm.Priority),
		}).
		Post(c.webhookURL)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// BuildChannels 按配置组装可用的通知渠道
func BuildChannels(cfg *config.Config) []Channel {
	var channels []Channel

	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		channels = append(channels, NewTelegramChannel(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.SMSGatewayURL != "" && len(cfg.Notify.SMSRecipients) > 0 {
		channels = append(channels, NewSMSChannel(cfg.Notify.SMSGatewayURL, cfg.Notify.SMSRecipients))
	}
	if cfg.Notify.SMTPHost != "" && cfg.Notify.EmailFrom != "" && len(cfg.Notify.EmailTo) > 0 {
		channels = append(channels, NewEmailChannel(
			cfg.Notify.SMTPHost, cfg.Notify.SMTPPort,
			cfg.Notify.SMTPUsername, cfg.Notify.SMTPPassword,
			cfg.Notify.EmailFrom, cfg.Notify.EmailTo,
		))
	}
	if cfg.Notify.PushWebhookURL != "" {
		channels = append(channels, NewPushChannel(cfg.Notify.PushWebhookURL))
	}

	return channels
}
