package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 查询的键不存在
var ErrNotFound = errors.New("storage: key not found")

// PresenceStorage 站点在线状态与授权名单的共享存储
// 多实例部署时CSMS侧工具通过它查询站点由哪个模拟器实例承载
type PresenceStorage interface {
	// SetOnline 登记站点在线，instanceID为承载该站点的模拟器实例
	// ttl用于自动清理实例崩溃留下的僵尸登记
	SetOnline(ctx context.Context, stationID string, instanceID string, ttl time.Duration) error

	// GetOnline 查询站点所在的模拟器实例，站点不在线时返回ErrNotFound
	GetOnline(ctx context.Context, stationID string) (string, error)

	// DeleteOnline 注销站点在线登记，站点正常停止时调用
	DeleteOnline(ctx context.Context, stationID string) error

	// SetAuthorizedTags 整体替换站点的授权idTag名单
	SetAuthorizedTags(ctx context.Context, stationID string, tags []string, ttl time.Duration) error

	// AuthorizedTags 读取站点的授权idTag名单，未登记时返回空名单
	AuthorizedTags(ctx context.Context, stationID string) ([]string, error)

	// Close 关闭与存储后端的连接
	Close() error
}
