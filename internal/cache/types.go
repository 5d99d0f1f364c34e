package cache

import (
	"fmt"
	"sync"
	"time"
)

// CacheItem 缓存项
type CacheItem struct {
	Key         string      `json:"key"`
	Value       interface{} `json:"value"`
	ExpiresAt   time.Time   `json:"expires_at"`
	CreatedAt   time.Time   `json:"created_at"`
	AccessAt    time.Time   `json:"access_at"`
	AccessCount int64       `json:"access_count"`
	Size        int64       `json:"size"` // 估算的内存大小(字节)
}

// IsExpired 检查是否过期
func (item *CacheItem) IsExpired() bool {
	if item.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(item.ExpiresAt)
}

// UpdateAccess 更新访问信息
func (item *CacheItem) UpdateAccess() {
	item.AccessAt = time.Now()
	item.AccessCount++
}

// CacheStats 缓存统计信息
type CacheStats struct {
	TotalItems    int64 `json:"total_items"`
	TotalSize     int64 `json:"total_size"`      // 总内存使用(字节)
	MaxSize       int64 `json:"max_size"`        // 最大容量
	MemoryLimitMB int64 `json:"memory_limit_mb"` // 内存限制(MB)

	// 命中率统计
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`

	// 操作统计
	Sets        int64 `json:"sets"`
	Gets        int64 `json:"gets"`
	Deletes     int64 `json:"deletes"`
	Evictions   int64 `json:"evictions"`   // 淘汰次数
	Expirations int64 `json:"expirations"` // 过期清理次数

	// 时间统计
	CreatedAt   time.Time `json:"created_at"`
	LastCleanup time.Time `json:"last_cleanup"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	MaxSize         int           `json:"max_size"`         // 最大条目数
	MemoryLimitMB   int           `json:"memory_limit_mb"`  // 内存限制(MB)
	DefaultTTL      time.Duration `json:"default_ttl"`      // 默认TTL
	CleanupInterval time.Duration `json:"cleanup_interval"` // 清理间隔
	ShardCount      int           `json:"shard_count"`      // 分片数量(减少锁竞争)
	EvictionBatch   int           `json:"eviction_batch"`   // 批量淘汰数量
}

// DefaultCacheConfig 默认缓存配置
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxSize:         10000,
		MemoryLimitMB:   128,
		DefaultTTL:      time.Hour,
		CleanupInterval: 10 * time.Minute,
		ShardCount:      16,
		EvictionBatch:   100,
	}
}

// CacheManager 缓存管理器接口
type CacheManager interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) bool
	Clear() error

	Exists(key string) bool
	Keys() []string
	Size() int

	GetStats() *CacheStats

	// 生命周期
	Start() error
	Stop() error
	IsRunning() bool
}

// LRUNode LRU链表节点
type LRUNode struct {
	Key  string
	Item *CacheItem
	Prev *LRUNode
	Next *LRUNode
}

// LRUList LRU双向链表
type LRUList struct {
	head *LRUNode
	tail *LRUNode
	size int
}

// NewLRUList 创建新的LRU链表
func NewLRUList() *LRUList {
	head := &LRUNode{}
	tail := &LRUNode{}
	head.Next = tail
	tail.Prev = head

	return &LRUList{
		head: head,
		tail: tail,
		size: 0,
	}
}

// AddToHead 添加节点到头部
func (l *LRUList) AddToHead(node *LRUNode) {
	node.Prev = l.head
	node.Next = l.head.Next
	l.head.Next.Prev = node
	l.head.Next = node
	l.size++
}

// RemoveNode 移除节点
func (l *LRUList) RemoveNode(node *LRUNode) {
	node.Prev.Next = node.Next
	node.Next.Prev = node.Prev
	l.size--
}

// RemoveTail 移除尾部节点
func (l *LRUList) RemoveTail() *LRUNode {
	if l.size == 0 {
		return nil
	}

	lastNode := l.tail.Prev
	lastNode.Prev.Next = l.tail
	l.tail.Prev = lastNode.Prev
	l.size--

	return lastNode
}

// MoveToHead 移动节点到头部
func (l *LRUList) MoveToHead(node *LRUNode) {
	// 先从当前位置移除
	node.Prev.Next = node.Next
	node.Next.Prev = node.Prev

	// 然后添加到头部
	node.Prev = l.head
	node.Next = l.head.Next
	l.head.Next.Prev = node
	l.head.Next = node
}

// Size 获取链表大小
func (l *LRUList) Size() int {
	return l.size
}

// CacheShard 缓存分片
type CacheShard struct {
	items   map[string]*LRUNode
	lruList *LRUList
	mutex   sync.RWMutex
	config  *CacheConfig
}

// NewCacheShard 创建新的缓存分片
func NewCacheShard(config *CacheConfig) *CacheShard {
	return &CacheShard{
		items:   make(map[string]*LRUNode),
		lruList: NewLRUList(),
		config:  config,
	}
}

// Get 从分片获取缓存项，过期项按未命中处理并顺手删除
func (s *CacheShard) Get(key string) (interface{}, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	node, exists := s.items[key]
	if !exists {
		return nil, false
	}

	if node.Item.IsExpired() {
		delete(s.items, key)
		s.lruList.RemoveNode(node)
		return nil, false
	}

	node.Item.UpdateAccess()
	s.lruList.MoveToHead(node)
	return node.Item.Value, true
}

// Add 向分片写入缓存项，已存在时覆盖并提升到链表头部
func (s *CacheShard) Add(key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	now := time.Now()
	item := &CacheItem{
		Key:       key,
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		AccessAt:  now,
		Size:      estimateSize(value),
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if node, exists := s.items[key]; exists {
		node.Item = item
		s.lruList.MoveToHead(node)
		return nil
	}

	node := &LRUNode{Key: key, Item: item}
	s.items[key] = node
	s.lruList.AddToHead(node)
	return nil
}

// Remove 从分片删除缓存项
func (s *CacheShard) Remove(key string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	node, exists := s.items[key]
	if !exists {
		return false
	}

	delete(s.items, key)
	s.lruList.RemoveNode(node)
	return true
}

// estimateSize 估算对象大小
func estimateSize(value interface{}) int64 {
	switch v := value.(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	case int, int32, int64, float32, float64:
		return 8
	case bool:
		return 1
	case fmt.Stringer:
		return int64(len(v.String()))
	default:
		// 对于复杂对象，使用固定估算值
		return 256
	}
}
