package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return client
}

func readStream(t *testing.T, client *redis.Client, stream string) []redis.XMessage {
	msgs, err := client.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)
	return msgs
}

func TestPublishToStream(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	id, err := PublishToStream(ctx, client, StreamDeviceStatus, map[string]interface{}{
		"node_id": "SEC-001",
		"status":  "online",
		"battery": 78,
		"armed":   true,
		"rssi":    int64(-61),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := readStream(t, client, StreamDeviceStatus)
	require.Len(t, msgs, 1)

	// 所有字段值统一为字符串
	assert.Equal(t, "SEC-001", msgs[0].Values["node_id"])
	assert.Equal(t, "online", msgs[0].Values["status"])
	assert.Equal(t, "78", msgs[0].Values["battery"])
	assert.Equal(t, "true", msgs[0].Values["armed"])
	assert.Equal(t, "-61", msgs[0].Values["rssi"])
}

func TestPublishToStream_ComplexValueAsJSON(t *testing.T) {
	client := setupTestRedis(t)

	_, err := PublishToStream(context.Background(), client, StreamAlarms, map[string]interface{}{
		"channels": []string{"telegram", "sms"},
	})
	require.NoError(t, err)

	msgs := readStream(t, client, StreamAlarms)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `["telegram","sms"]`, msgs[0].Values["channels"].(string))
}

func TestPublishJSONToStream(t *testing.T) {
	client := setupTestRedis(t)

	payload := map[string]interface{}{
		"alarm_id": "alarm-1",
		"priority": "critical",
	}
	_, err := PublishJSONToStream(context.Background(), client, StreamAlarms, payload)
	require.NoError(t, err)

	msgs := readStream(t, client, StreamAlarms)
	require.Len(t, msgs, 1)
	require.NotEmpty(t, msgs[0].Values["timestamp"])

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &decoded))
	assert.Equal(t, "alarm-1", decoded["alarm_id"])
	assert.Equal(t, "critical", decoded["priority"])
}

func TestPublishJSONToStream_OrderPreserved(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	for _, alarmID := range []string{"a-1", "a-2", "a-3"} {
		_, err := PublishJSONToStream(ctx, client, StreamAlarms, map[string]string{"alarm_id": alarmID})
		require.NoError(t, err)
	}

	msgs := readStream(t, client, StreamAlarms)
	require.Len(t, msgs, 3)

	var first map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &first))
	assert.Equal(t, "a-1", first["alarm_id"])
}

func TestRedisKVStore(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	store := NewRedisKVStore(client)

	require.NoError(t, store.Set(ctx, "agrisecure:arm:mode", "armed_away", time.Minute))

	val, err := store.Get(ctx, "agrisecure:arm:mode")
	require.NoError(t, err)
	assert.Equal(t, "armed_away", val)
}

func TestRedisKVStore_Miss(t *testing.T) {
	client := setupTestRedis(t)

	store := NewRedisKVStore(client)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
