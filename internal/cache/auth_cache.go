package cache

import (
	"time"
)

// AuthorizationEntry 授权缓存条目
// 记录CSMS对某个idTag/idToken最近一次的授权裁决
type AuthorizationEntry struct {
	IdTag       string     `json:"id_tag"`
	Status      string     `json:"status"` // Accepted, Blocked, Expired, Invalid...
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	ParentIdTag string     `json:"parent_id_tag,omitempty"`
	CachedAt    time.Time  `json:"cached_at"`
}

// IsValid 条目是否仍然可用于本地授权
func (e *AuthorizationEntry) IsValid() bool {
	if e.Status != "Accepted" {
		return false
	}
	if e.ExpiryDate != nil && time.Now().After(*e.ExpiryDate) {
		return false
	}
	return true
}

// AuthorizationCache 站点本地授权缓存
// ClearCache指令清空它，Authorize等响应回填它
type AuthorizationCache struct {
	cache *LRUCache
	ttl   time.Duration
}

// NewAuthorizationCache 创建授权缓存
func NewAuthorizationCache(config *CacheConfig) *AuthorizationCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return &AuthorizationCache{
		cache: NewLRUCache(config),
		ttl:   config.DefaultTTL,
	}
}

// Put 写入授权裁决
func (a *AuthorizationCache) Put(entry AuthorizationEntry) {
	if entry.IdTag == "" {
		return
	}
	entry.CachedAt = time.Now()

	ttl := a.ttl
	if entry.ExpiryDate != nil {
		if until := time.Until(*entry.ExpiryDate); until > 0 && until < ttl {
			ttl = until
		}
	}

	a.cache.Set(entry.IdTag, entry, ttl)
}

// Accept 写入一个接受状态的条目，预置本地白名单时使用
func (a *AuthorizationCache) Accept(idTag string) {
	a.Put(AuthorizationEntry{IdTag: idTag, Status: "Accepted"})
}

// Lookup 查询idTag的缓存裁决
func (a *AuthorizationCache) Lookup(idTag string) (AuthorizationEntry, bool) {
	value, ok := a.cache.Get(idTag)
	if !ok {
		return AuthorizationEntry{}, false
	}
	entry, ok := value.(AuthorizationEntry)
	return entry, ok
}

// IsAuthorized idTag是否能通过本地授权
func (a *AuthorizationCache) IsAuthorized(idTag string) bool {
	entry, ok := a.Lookup(idTag)
	return ok && entry.IsValid()
}

// Invalidate 删除单个条目
func (a *AuthorizationCache) Invalidate(idTag string) bool {
	return a.cache.Delete(idTag)
}

// Clear 清空缓存，对应ClearCache指令
func (a *AuthorizationCache) Clear() error {
	return a.cache.Clear()
}

// Size 缓存条目数量
func (a *AuthorizationCache) Size() int {
	return a.cache.Size()
}

// Stats 缓存统计
func (a *AuthorizationCache) Stats() *CacheStats {
	return a.cache.GetStats()
}

// Start 启动过期清理
func (a *AuthorizationCache) Start() error {
	return a.cache.Start()
}

// Stop 停止过期清理
func (a *AuthorizationCache) Stop() error {
	return a.cache.Stop()
}
