package service

import (
	"context"
	"time"

	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/logger"

	"github.com/shopspring/decimal"
)

// DailyMetrics 按天聚合的合作伙伴指标
// conversions/revenue 只计入成功归因的转化，未归因的单独计数（保持可查询的内部区分）
type DailyMetrics struct {
	PartnerID               string          `json:"partner_id"`
	Date                    string          `json:"date"`
	PageViews               int64           `json:"page_views"`
	Conversions             int64           `json:"conversions"`
	UnattributedConversions int64           `json:"unattributed_conversions"`
	Revenue                 decimal.Decimal `json:"revenue"`
	UpdatedAt               int64           `json:"updated_at"`
}

// MetricsRecorder 日指标记录器；每次写入重置 TTL
type MetricsRecorder struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewMetricsRecorder 创建日指标记录器
func NewMetricsRecorder(store kv.Store, ttl time.Duration) *MetricsRecorder {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &MetricsRecorder{store: store, ttl: ttl, now: time.Now}
}

// SetClock 注入时钟，仅测试使用
func (r *MetricsRecorder) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// AddPageView 记录一次 track 事件
func (r *MetricsRecorder) AddPageView(ctx context.Context, partnerID string) {
	r.update(ctx, partnerID, func(m *DailyMetrics) {
		m.PageViews++
	})
}

// AddConversion 记录一次成功归因的转化
func (r *MetricsRecorder) AddConversion(ctx context.Context, partnerID string, value *decimal.Decimal) {
	r.update(ctx, partnerID, func(m *DailyMetrics) {
		m.Conversions++
		if value != nil {
			m.Revenue = m.Revenue.Add(*value)
		}
	})
}

// AddUnattributed 记录一次未归因转化
func (r *MetricsRecorder) AddUnattributed(ctx context.Context, partnerID string) {
	r.update(ctx, partnerID, func(m *DailyMetrics) {
		m.UnattributedConversions++
	})
}

// PromoteUnattributed 重归因成功后把未归因计数转为已归因
func (r *MetricsRecorder) PromoteUnattributed(ctx context.Context, partnerID string, value *decimal.Decimal) {
	r.update(ctx, partnerID, func(m *DailyMetrics) {
		if m.UnattributedConversions > 0 {
			m.UnattributedConversions--
		}
		m.Conversions++
		if value != nil {
			m.Revenue = m.Revenue.Add(*value)
		}
	})
}

// Get 读取某天的指标；无数据返回零值聚合
func (r *MetricsRecorder) Get(ctx context.Context, partnerID, date string) (*DailyMetrics, error) {
	metrics := &DailyMetrics{PartnerID: partnerID, Date: date, Revenue: decimal.Zero}
	if r.store == nil {
		return metrics, nil
	}
	if _, err := r.store.GetJSON(ctx, kv.DailyMetricsKey(date, partnerID), metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// update 读-改-写日聚合；指标丢失可以接受，失败只记日志
func (r *MetricsRecorder) update(ctx context.Context, partnerID string, apply func(*DailyMetrics)) {
	if r.store == nil {
		return
	}
	now := r.now()
	date := now.UTC().Format("2006-01-02")
	key := kv.DailyMetricsKey(date, partnerID)

	metrics := DailyMetrics{PartnerID: partnerID, Date: date, Revenue: decimal.Zero}
	if _, err := r.store.GetJSON(ctx, key, &metrics); err != nil {
		logger.Warnw("metrics_read_failed", "partner_id", partnerID, "date", date, "error", err)
		return
	}
	apply(&metrics)
	metrics.UpdatedAt = now.Unix()

	if err := r.store.SetJSON(ctx, key, &metrics, r.ttl); err != nil {
		logger.Warnw("metrics_write_failed", "partner_id", partnerID, "date", date, "error", err)
	}
}
