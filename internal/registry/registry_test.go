package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/config"
	"github.com/turiliffiu/agrisecure/internal/models"
	"github.com/turiliffiu/agrisecure/internal/normalizer"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Liveness.WarningTimeout = 3600
	cfg.Liveness.CriticalTimeout = 7200
	return cfg
}

func newTestRegistry(store NodeStore) *Registry {
	return NewRegistry(store, nil, testConfig(), zap.NewNop())
}

func intPtr(v int) *int          { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestComputeStatus(t *testing.T) {
	warning := time.Hour
	critical := 2 * time.Hour

	tests := []struct {
		name string
		node *models.Node
		want models.NodeStatus
	}{
		{
			name: "no last_seen",
			node: &models.Node{},
			want: models.NodeStatusOffline,
		},
		{
			name: "recent contact",
			node: &models.Node{LastSeen: timePtr(testNow.Add(-10 * time.Minute))},
			want: models.NodeStatusOnline,
		},
		{
			name: "silent beyond warning timeout",
			node: &models.Node{LastSeen: timePtr(testNow.Add(-90 * time.Minute))},
			want: models.NodeStatusWarning,
		},
		{
			name: "silent beyond critical timeout",
			node: &models.Node{
				LastSeen:          timePtr(testNow.Add(-8000 * time.Second)),
				BatteryPercentage: intPtr(50),
			},
			want: models.NodeStatusOffline,
		},
		{
			name: "critical battery not charging",
			node: &models.Node{
				LastSeen:          timePtr(testNow.Add(-time.Minute)),
				BatteryPercentage: intPtr(8),
			},
			want: models.NodeStatusWarning,
		},
		{
			name: "critical battery but charging",
			node: &models.Node{
				LastSeen:          timePtr(testNow.Add(-time.Minute)),
				BatteryPercentage: intPtr(8),
				IsCharging:        true,
			},
			want: models.NodeStatusOnline,
		},
		{
			name: "low battery is still online",
			node: &models.Node{
				LastSeen:          timePtr(testNow.Add(-time.Minute)),
				BatteryPercentage: intPtr(15),
			},
			want: models.NodeStatusOnline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStatus(tt.node, testNow, warning, critical))
		})
	}
}

func TestParseNodeType(t *testing.T) {
	tests := []struct {
		hint string
		want models.NodeType
		ok   bool
	}{
		{"GW", models.NodeTypeGateway, true},
		{"gateway", models.NodeTypeGateway, true},
		{"AMB", models.NodeTypeAmbient, true},
		{"Ambient", models.NodeTypeAmbient, true},
		{"sec", models.NodeTypeSecurity, true},
		{"SECURITY", models.NodeTypeSecurity, true},
		{"radar", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseNodeType(tt.hint)
		assert.Equal(t, tt.ok, ok, "hint %q", tt.hint)
		assert.Equal(t, tt.want, got, "hint %q", tt.hint)
	}
}

func TestTouchFromContact_CreatesUnknownNode(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)

	node, err := reg.TouchFromContact(context.Background(), "SEC-001", models.NodeTypeSecurity, testNow)
	require.NoError(t, err)

	assert.Equal(t, "SEC-001", node.NodeID)
	assert.Equal(t, "Node SEC-001", node.Name)
	assert.Equal(t, models.NodeTypeSecurity, node.NodeType)
	assert.True(t, node.IsArmed) // 安防节点默认布防
	assert.True(t, node.IsActive)
	assert.Equal(t, models.NodeStatusOnline, node.Status)
	require.NotNil(t, node.LastSeen)
	assert.Equal(t, testNow, *node.LastSeen)
	assert.Equal(t, 1, store.createCount)
}

func TestTouchFromContact_AmbientNotArmed(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)

	node, err := reg.TouchFromContact(context.Background(), "AMB-001", models.NodeTypeAmbient, testNow)
	require.NoError(t, err)
	assert.False(t, node.IsArmed)
}

func TestTouchFromContact_ExistingNodeKeepsType(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)

	_, err := reg.TouchFromContact(context.Background(), "SEC-002", models.NodeTypeSecurity, testNow)
	require.NoError(t, err)

	// 再次触达时传入不同的类型提示，已有类型不被覆盖
	node, err := reg.TouchFromContact(context.Background(), "SEC-002", models.NodeTypeAmbient, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeSecurity, node.NodeType)
	assert.Equal(t, 1, store.createCount)
}

func TestTouchFromContact_RecoversOfflineNode(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)

	stale := testNow.Add(-3 * time.Hour)
	store.nodes["AMB-003"] = &models.Node{
		NodeID:   "AMB-003",
		NodeType: models.NodeTypeAmbient,
		Status:   models.NodeStatusOffline,
		LastSeen: &stale,
		IsActive: true,
	}

	node, err := reg.TouchFromContact(context.Background(), "AMB-003", models.NodeTypeAmbient, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusOnline, node.Status)
}

func TestApplyStatus_MergesFields(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)
	ctx := context.Background()

	fw := "1.4.2"
	uptime := int64(86400)
	heap := int64(147456)
	p := &normalizer.StatusPayload{
		NodeID:    "GW-001",
		TypeHint:  "GW",
		Uptime:    &uptime,
		Battery:   intPtr(78),
		RSSI:      intPtr(-61),
		MeshPeers: intPtr(5),
		Firmware:  &fw,
		HeapFree:  &heap,
	}

	node, err := reg.ApplyStatus(ctx, p, testNow)
	require.NoError(t, err)

	assert.Equal(t, models.NodeTypeGateway, node.NodeType)
	assert.Equal(t, int64(86400), node.UptimeSeconds)
	require.NotNil(t, node.BatteryPercentage)
	assert.Equal(t, 78, *node.BatteryPercentage)
	require.NotNil(t, node.RSSI)
	assert.Equal(t, -61, *node.RSSI)
	assert.Equal(t, 5, node.MeshNeighbors)
	assert.Equal(t, "1.4.2", node.FirmwareVersion)

	// 心跳历史追加一条，heap_free 以 KB 记录
	require.Len(t, store.heartbeats, 1)
	assert.Equal(t, "GW-001", store.heartbeats[0].NodeID)
	assert.Equal(t, 144, store.heartbeats[0].FreeHeapKB)
}

func TestApplyStatus_MissingFieldsDoNotClear(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)
	ctx := context.Background()

	fw := "1.3.0"
	full := &normalizer.StatusPayload{
		NodeID:   "AMB-004",
		Battery:  intPtr(90),
		RSSI:     intPtr(-55),
		Firmware: &fw,
	}
	_, err := reg.ApplyStatus(ctx, full, testNow)
	require.NoError(t, err)

	// 第二条报文只带 uptime：其余字段保持上次的值
	uptime := int64(120)
	sparse := &normalizer.StatusPayload{
		NodeID: "AMB-004",
		Uptime: &uptime,
	}
	node, err := reg.ApplyStatus(ctx, sparse, testNow.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, int64(120), node.UptimeSeconds)
	require.NotNil(t, node.BatteryPercentage)
	assert.Equal(t, 90, *node.BatteryPercentage)
	require.NotNil(t, node.RSSI)
	assert.Equal(t, -55, *node.RSSI)
	assert.Equal(t, "1.3.0", node.FirmwareVersion)
}

func TestSweepLiveness_MarksSilentNodesOffline(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)
	ctx := context.Background()

	silent := testNow.Add(-3 * time.Hour)
	recent := testNow.Add(-time.Minute)
	store.nodes["AMB-005"] = &models.Node{
		NodeID: "AMB-005", NodeType: models.NodeTypeAmbient,
		Status: models.NodeStatusOnline, LastSeen: &silent, IsActive: true,
	}
	store.nodes["AMB-006"] = &models.Node{
		NodeID: "AMB-006", NodeType: models.NodeTypeAmbient,
		Status: models.NodeStatusOnline, LastSeen: &recent, IsActive: true,
	}

	changed, err := reg.SweepLiveness(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	node, err := store.GetNode(ctx, "AMB-005")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusOffline, node.Status)

	// 离线事件记录静默时长
	require.Len(t, store.events, 1)
	assert.Equal(t, models.NodeEventOffline, store.events[0].EventType)
	assert.Contains(t, store.events[0].Message, "180 minutes")

	node, err = store.GetNode(ctx, "AMB-006")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusOnline, node.Status)
}

// staleListStore 返回过期的列表快照，模拟列表与加锁之间有消息触达
type staleListStore struct {
	*fakeNodeStore
	stale []*models.Node
}

func (s *staleListStore) ListActiveNodes(ctx context.Context) ([]*models.Node, error) {
	return s.stale, nil
}

func TestSweepLiveness_RefetchesNodeUnderLock(t *testing.T) {
	inner := newFakeNodeStore()
	ctx := context.Background()

	// 存储中是刚触达的在线节点
	fresh := testNow.Add(-10 * time.Second)
	battery := 50
	inner.nodes["SEC-020"] = &models.Node{
		NodeID: "SEC-020", NodeType: models.NodeTypeSecurity,
		Status: models.NodeStatusOnline, LastSeen: &fresh,
		BatteryPercentage: &battery, IsActive: true,
	}

	// 扫描拿到的列表快照仍是触达前的旧状态
	staleSeen := testNow.Add(-8000 * time.Second)
	store := &staleListStore{
		fakeNodeStore: inner,
		stale: []*models.Node{{
			NodeID: "SEC-020", NodeType: models.NodeTypeSecurity,
			Status: models.NodeStatusOnline, LastSeen: &staleSeen, IsActive: true,
		}},
	}
	reg := newTestRegistry(store)

	changed, err := reg.SweepLiveness(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	// 新到的 last_seen 与在线状态不被旧快照覆盖
	node, err := inner.GetNode(ctx, "SEC-020")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusOnline, node.Status)
	require.NotNil(t, node.LastSeen)
	assert.Equal(t, fresh.Unix(), node.LastSeen.Unix())
	assert.Equal(t, 0, inner.updateCount)
	assert.Empty(t, inner.events)
}

func TestSweepLiveness_NeverSeenNodesSkipped(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)

	store.nodes["AMB-007"] = &models.Node{
		NodeID: "AMB-007", Status: models.NodeStatusOffline, IsActive: true,
	}

	changed, err := reg.SweepLiveness(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Empty(t, store.events)
}

func TestTouchFromContact_ConcurrentSameNode(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.TouchFromContact(ctx, "SEC-010", models.NodeTypeSecurity, testNow.Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// 同一节点只创建一次
	assert.Equal(t, 1, store.createCount)
}

func TestTouchFromContact_ConcurrentDistinctNodes(t *testing.T) {
	store := newFakeNodeStore()
	reg := newTestRegistry(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nodeID := fmt.Sprintf("AMB-%03d", i)
			_, err := reg.TouchFromContact(ctx, nodeID, models.NodeTypeAmbient, testNow)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, store.createCount)
}
