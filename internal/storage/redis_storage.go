package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/charging-platform/station-simulator/internal/config"
)

const (
	presencePrefix = "sim:online:"
	authTagsPrefix = "sim:authtags:"
)

// RedisStorage 基于Redis的共享存储实现
type RedisStorage struct {
	Client *redis.Client
}

// NewRedisStorage 创建Redis存储并验证连通性
func NewRedisStorage(cfg config.RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStorage{Client: client}, nil
}

// SetOnline 登记站点在线
func (r *RedisStorage) SetOnline(ctx context.Context, stationID string, instanceID string, ttl time.Duration) error {
	return r.Client.Set(ctx, presencePrefix+stationID, instanceID, ttl).Err()
}

// GetOnline 查询站点所在的模拟器实例
func (r *RedisStorage) GetOnline(ctx context.Context, stationID string) (string, error) {
	val, err := r.Client.Get(ctx, presencePrefix+stationID).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return val, err
}

// DeleteOnline 注销站点在线登记
func (r *RedisStorage) DeleteOnline(ctx context.Context, stationID string) error {
	return r.Client.Del(ctx, presencePrefix+stationID).Err()
}

// SetAuthorizedTags 整体替换站点的授权名单
// 先清旧集合再写入，空名单等价于清空
func (r *RedisStorage) SetAuthorizedTags(ctx context.Context, stationID string, tags []string, ttl time.Duration) error {
	key := authTagsPrefix + stationID
	if err := r.Client.Del(ctx, key).Err(); err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}

	members := make([]interface{}, len(tags))
	for i, tag := range tags {
		members[i] = tag
	}
	if err := r.Client.SAdd(ctx, key, members...).Err(); err != nil {
		return err
	}
	if ttl > 0 {
		return r.Client.Expire(ctx, key, ttl).Err()
	}
	return nil
}

// AuthorizedTags 读取站点的授权名单
func (r *RedisStorage) AuthorizedTags(ctx context.Context, stationID string) ([]string, error) {
	return r.Client.SMembers(ctx, authTagsPrefix+stationID).Result()
}

// Close 关闭Redis连接
func (r *RedisStorage) Close() error {
	return r.Client.Close()
}
