package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turiliffiu/agrisecure/internal/config"
	"github.com/turiliffiu/agrisecure/internal/models"
)

func testAlarm() *models.Alarm {
	return &models.Alarm{
		AlarmID:  "11111111-2222-3333-4444-555555555555",
		NodeID:   "SEC-001",
		Priority: models.PriorityCritical,
	}
}

func TestEmailChannel_Send(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	c := NewEmailChannel("mail.example.com", 587, "alerts", "secret",
		"alerts@example.com", []string{"ops@example.com", "farm@example.com"})
	c.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := c.Send(context.Background(), testAlarm(), Message{
		Title: "PERSON DETECTED",
		Body:  "Node: SEC-001",
	})
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com", "farm@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: PERSON DETECTED\r\n")
	assert.Contains(t, string(gotMsg), "To: ops@example.com, farm@example.com\r\n")
	assert.Contains(t, string(gotMsg), "Node: SEC-001")
}

func TestEmailChannel_SendError(t *testing.T) {
	c := NewEmailChannel("mail.example.com", 587, "", "", "alerts@example.com", []string{"ops@example.com"})
	c.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	err := c.Send(context.Background(), testAlarm(), Message{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp send failed")
}

func TestPushChannel_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewPushChannel(srv.URL)
	err := c.Send(context.Background(), testAlarm(), Message{
		Title: "TAMPER ALERT",
		Body:  "Node: SEC-001",
	})
	require.NoError(t, err)

	assert.Equal(t, "TAMPER ALERT", got["title"])
	assert.Equal(t, "SEC-001", got["node_id"])
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", got["alarm_id"])
	assert.Equal(t, string(models.PriorityCritical), got["priority"])
}

func TestPushChannel_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewPushChannel(srv.URL)
	err := c.Send(context.Background(), testAlarm(), Message{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestBuildChannels_AllConfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.TelegramChatID = "42"
	cfg.Notify.SMSGatewayURL = "http://sms.local/send"
	cfg.Notify.SMSRecipients = []string{"+35699000001"}
	cfg.Notify.SMTPHost = "mail.example.com"
	cfg.Notify.SMTPPort = 587
	cfg.Notify.EmailFrom = "alerts@example.com"
	cfg.Notify.EmailTo = []string{"ops@example.com"}
	cfg.Notify.PushWebhookURL = "http://push.local/notify"

	channels := BuildChannels(cfg)
	require.Len(t, channels, 4)

	var names []string
	for _, c := range channels {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"telegram", "sms", "email", "push"}, names)
}

func TestBuildChannels_SkipsUnconfigured(t *testing.T) {
	cfg := &config.Config{}
	assert.Empty(t, BuildChannels(cfg))

	// 邮件渠道缺收件人时不可用
	cfg.Notify.SMTPHost = "mail.example.com"
	cfg.Notify.EmailFrom = "alerts@example.com"
	assert.Empty(t, BuildChannels(cfg))

	cfg.Notify.EmailTo = []string{"ops@example.com"}
	channels := BuildChannels(cfg)
	require.Len(t, channels, 1)
	assert.Equal(t, "email", channels[0].Name())
}
