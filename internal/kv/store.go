package kv

import (
	"context"
	"time"
)

// Store 带 TTL 的持久化 KV 存储抽象
// 点击、指纹、转化、原始事件、日指标与限流计数全部落在这里
type Store interface {
	// GetJSON 读取 JSON 值；未命中返回 (false, nil)
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	// SetJSON 写入 JSON 值并设置 TTL
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetNXJSON 仅在 key 不存在时写入（原子条件写，转化去重依赖它）
	SetNXJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	// IncrWindow 原子自增并在首次写入时设置窗口 TTL（限流计数依赖它）
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	// Exists 判断 key 是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Delete 删除 key
	Delete(ctx context.Context, key string) error
	// Keys 按前缀扫描 key（重归因扫描依赖它）
	Keys(ctx context.Context, prefix string) ([]string, error)
}
