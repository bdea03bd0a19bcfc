package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"kairos-demo/server/internal/observe"
)

var ErrNotFound = errors.New("session not found")

// InMemoryStore 是一个基于内存的 Dialog 存储实现。
type InMemoryStore struct {
	mu      sync.RWMutex
	data    map[string]*Dialog
	metrics *observe.Metrics
}

func NewInMemoryStore(metrics *observe.Metrics) *InMemoryStore {
	// 会话只在内存中：进程重启即丢失，这正是演示需要的语义。
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &InMemoryStore{data: make(map[string]*Dialog), metrics: metrics}
}

// Get 根据 ID 获取 Dialog。
func (s *InMemoryStore) Get(_ context.Context, id string) (*Dialog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// Save 保存或替换 Dialog。
func (s *InMemoryStore) Save(ctx context.Context, d *Dialog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[d.ID]; !exists {
		s.metrics.ActiveSessions.Add(ctx, 1)
	}
	s.data[d.ID] = d
	return nil
}

// Delete 移除 Dialog 并返回它，调用方负责 Close。
func (s *InMemoryStore) Delete(ctx context.Context, id string) (*Dialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.data, id)
	s.metrics.ActiveSessions.Add(ctx, -1)
	return d, nil
}

// List 按创建时间返回全部 Dialog。
func (s *InMemoryStore) List(_ context.Context) ([]*Dialog, error) {
	s.mu.RLock()
	out := make([]*Dialog, 0, len(s.data))
	for _, d := range s.data {
		out = append(out, d)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Sweep 清理闲置超过 maxIdle 的对话，返回被清理的 ID。
func (s *InMemoryStore) Sweep(ctx context.Context, now time.Time, maxIdle time.Duration) []string {
	s.mu.Lock()
	var expired []*Dialog
	for id, d := range s.data {
		if d.Idle(now, maxIdle) {
			expired = append(expired, d)
			delete(s.data, id)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, d := range expired {
		d.Close()
		s.metrics.ActiveSessions.Add(ctx, -1)
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)
	return ids
}
