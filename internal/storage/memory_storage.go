package storage

import (
	"context"
	"sync"
	"time"
)

// entry 带过期时间的值
type entry struct {
	value     string
	tags      []string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStorage 进程内的共享存储实现
// 单实例部署或未配置Redis时使用，过期键在读取时惰性清理
type MemoryStorage struct {
	mu       sync.RWMutex
	presence map[string]entry
	authTags map[string]entry
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		presence: make(map[string]entry),
		authTags: make(map[string]entry),
	}
}

// SetOnline 登记站点在线
func (m *MemoryStorage) SetOnline(_ context.Context, stationID string, instanceID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence[stationID] = entry{value: instanceID, expiresAt: expiry(ttl)}
	return nil
}

// GetOnline 查询站点所在的模拟器实例
func (m *MemoryStorage) GetOnline(_ context.Context, stationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.presence[stationID]
	if !ok {
		return "", ErrNotFound
	}
	if e.expired(time.Now()) {
		delete(m.presence, stationID)
		return "", ErrNotFound
	}
	return e.value, nil
}

// DeleteOnline 注销站点在线登记
func (m *MemoryStorage) DeleteOnline(_ context.Context, stationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.presence, stationID)
	return nil
}

// SetAuthorizedTags 整体替换站点的授权名单
func (m *MemoryStorage) SetAuthorizedTags(_ context.Context, stationID string, tags []string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(tags) == 0 {
		delete(m.authTags, stationID)
		return nil
	}
	copied := make([]string, len(tags))
	copy(copied, tags)
	m.authTags[stationID] = entry{tags: copied, expiresAt: expiry(ttl)}
	return nil
}

// AuthorizedTags 读取站点的授权名单
func (m *MemoryStorage) AuthorizedTags(_ context.Context, stationID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.authTags[stationID]
	if !ok {
		return nil, nil
	}
	if e.expired(time.Now()) {
		delete(m.authTags, stationID)
		return nil, nil
	}
	out := make([]string, len(e.tags))
	copy(out, e.tags)
	return out, nil
}

// Close 内存存储无需释放资源
func (m *MemoryStorage) Close() error {
	return nil
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
