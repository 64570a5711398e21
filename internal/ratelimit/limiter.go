package ratelimit

import (
	"context"
	"time"

	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/logger"
)

const window = time.Hour

// Result 限流检查结果；响应头始终回显这些字段
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter 固定窗口限流器，(partner_id, client_ip, 小时窗口) 粒度
// 计数走存储层的原子自增（读后加的竞态由此封死），计数器随窗口过期
type Limiter struct {
	store        kv.Store
	defaultLimit int
	now          func() time.Time
}

// NewLimiter 创建限流器
func NewLimiter(store kv.Store, defaultLimit int) *Limiter {
	if defaultLimit <= 0 {
		defaultLimit = 1000
	}
	return &Limiter{store: store, defaultLimit: defaultLimit, now: time.Now}
}

// SetClock 注入时钟，仅测试使用
func (l *Limiter) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// DefaultLimit 返回默认每小时限流
func (l *Limiter) DefaultLimit() int {
	return l.defaultLimit
}

// Allow 检查并消耗一次配额
// 存储故障时放行（fail open）：限流保护的是成本，不是信任边界
func (l *Limiter) Allow(ctx context.Context, partnerID, ip string, limit int) Result {
	if limit <= 0 {
		limit = l.defaultLimit
	}
	now := l.now()
	windowStart := now.Truncate(window)
	reset := windowStart.Add(window)

	key := kv.RateLimitKey(partnerID, ip, windowStart.Unix())
	count, err := l.store.IncrWindow(ctx, key, window)
	if err != nil {
		logger.Warnw("rate_limit_check_failed",
			"partner_id", partnerID,
			"ip", ip,
			"error", err,
		)
		return Result{Allowed: true, Limit: limit, Remaining: limit - 1, Reset: reset}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	}
}
