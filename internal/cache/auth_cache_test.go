package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizationCache_PutAndLookup(t *testing.T) {
	ac := NewAuthorizationCache(DefaultCacheConfig())

	ac.Put(AuthorizationEntry{
		IdTag:  "TAG-001",
		Status: "Accepted",
	})

	entry, found := ac.Lookup("TAG-001")
	assert.True(t, found)
	assert.Equal(t, "TAG-001", entry.IdTag)
	assert.Equal(t, "Accepted", entry.Status)
	assert.True(t, ac.IsAuthorized("TAG-001"))

	// 未缓存的idTag
	_, found = ac.Lookup("TAG-UNKNOWN")
	assert.False(t, found)
	assert.False(t, ac.IsAuthorized("TAG-UNKNOWN"))
}

func TestAuthorizationCache_RejectedStatus(t *testing.T) {
	ac := NewAuthorizationCache(DefaultCacheConfig())

	ac.Put(AuthorizationEntry{
		IdTag:  "TAG-BLOCKED",
		Status: "Blocked",
	})

	// 缓存命中，但不代表授权通过
	entry, found := ac.Lookup("TAG-BLOCKED")
	assert.True(t, found)
	assert.Equal(t, "Blocked", entry.Status)
	assert.False(t, ac.IsAuthorized("TAG-BLOCKED"))
}

func TestAuthorizationCache_ExpiryDate(t *testing.T) {
	ac := NewAuthorizationCache(DefaultCacheConfig())

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	ac.Put(AuthorizationEntry{IdTag: "TAG-EXPIRED", Status: "Accepted", ExpiryDate: &past})
	ac.Put(AuthorizationEntry{IdTag: "TAG-VALID", Status: "Accepted", ExpiryDate: &future})

	assert.False(t, ac.IsAuthorized("TAG-EXPIRED"))
	assert.True(t, ac.IsAuthorized("TAG-VALID"))
}

func TestAuthorizationCache_Accept(t *testing.T) {
	ac := NewAuthorizationCache(DefaultCacheConfig())

	ac.Accept("TAG-LOCAL")

	entry, found := ac.Lookup("TAG-LOCAL")
	assert.True(t, found)
	assert.Equal(t, "Accepted", entry.Status)
	assert.True(t, ac.IsAuthorized("TAG-LOCAL"))
}

func TestAuthorizationCache_Invalidate(t *testing.T) {
	ac := NewAuthorizationCache(DefaultCacheConfig())

	ac.Accept("TAG-001")
	assert.True(t, ac.IsAuthorized("TAG-001"))

	removed := ac.Invalidate("TAG-001")
	assert.True(t, removed)
	assert.False(t, ac.IsAuthorized("TAG-001"))

	removed = ac.Invalidate("TAG-001")
	assert.False(t, removed)
}

func TestAuthorizationCache_Clear(t *testing.T) {
	ac := NewAuthorizationCache(DefaultCacheConfig())

	ac.Accept("TAG-001")
	ac.Accept("TAG-002")
	ac.Accept("TAG-003")
	assert.Equal(t, 3, ac.Size())

	// ClearCache指令的本地语义
	err := ac.Clear()
	assert.NoError(t, err)
	assert.Equal(t, 0, ac.Size())
	assert.False(t, ac.IsAuthorized("TAG-001"))
}

func TestAuthorizationEntry_IsValid(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Minute)

	tests := []struct {
		name  string
		entry AuthorizationEntry
		valid bool
	}{
		{"accepted without expiry", AuthorizationEntry{Status: "Accepted"}, true},
		{"accepted with future expiry", AuthorizationEntry{Status: "Accepted", ExpiryDate: &future}, true},
		{"accepted with past expiry", AuthorizationEntry{Status: "Accepted", ExpiryDate: &past}, false},
		{"blocked", AuthorizationEntry{Status: "Blocked"}, false},
		{"invalid", AuthorizationEntry{Status: "Invalid"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.entry.IsValid())
		})
	}
}
