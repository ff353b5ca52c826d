package registry

import (
	"context"
	"sync"

	"github.com/turiliffiu/agrisecure/internal/models"
	"github.com/turiliffiu/agrisecure/internal/repository"
)

// fakeNodeStore NodeStore 的内存实现，供单元测试使用
type fakeNodeStore struct {
	mu         sync.Mutex
	nodes      map[string]*models.Node
	heartbeats []*models.NodeHeartbeat
	events     []*models.NodeEvent

	createCount int
	updateCount int
}

func newFakeNodeStore() *fakeNodeStore {
	return &fakeNodeStore{
		nodes: make(map[string]*models.Node),
	}
}

func (f *fakeNodeStore) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	node, ok := f.nodes[nodeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *node
	return &copied, nil
}

func (f *fakeNodeStore) CreateNode(ctx context.Context, node *models.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *node
	f.nodes[node.NodeID] = &copied
	f.createCount++
	return nil
}

func (f *fakeNodeStore) UpdateNode(ctx context.Context, node *models.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.nodes[node.NodeID]; !ok {
		return repository.ErrNotFound
	}
	copied := *node
	f.nodes[node.NodeID] = &copied
	f.updateCount++
	return nil
}

func (f *fakeNodeStore) ListActiveNodes(ctx context.Context) ([]*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Node
	for _, node := range f.nodes {
		if node.IsActive {
			copied := *node
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeNodeStore) InsertHeartbeat(ctx context.Context, hb *models.NodeHeartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.heartbeats = append(f.heartbeats, hb)
	return nil
}

func (f *fakeNodeStore) InsertNodeEvent(ctx context.Context, ev *models.NodeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, ev)
	return nil
}
