package service

import (
	"context"
	"strings"
	"time"

	"github.com/deptrack/deptrack/internal/constants"
	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClickMetadata 点击记录附带的客户端信息
type ClickMetadata struct {
	Domain    string `json:"domain"`
	SessionID string `json:"session_id"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// ClickRecord 点击记录；幂等 last-write-wins，TTL 90 天
type ClickRecord struct {
	ClickID   string        `json:"click_id"`
	PartnerID string        `json:"partner_id"`
	Timestamp time.Time     `json:"timestamp"`
	Metadata  ClickMetadata `json:"metadata"`
}

// FingerprintRecord 指纹记录；click_id 一经写入不再覆盖
type FingerprintRecord struct {
	Fingerprint string    `json:"fingerprint"`
	PartnerID   string    `json:"partner_id"`
	ClickID     string    `json:"click_id,omitempty"`
	SessionID   string    `json:"session_id"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	PageViews   int64     `json:"page_views"`
}

// ConversionRecord 转化记录；每个 click_id 至多一条
type ConversionRecord struct {
	ClickID             string           `json:"click_id"`
	PartnerID           string           `json:"partner_id"`
	ClickTimestamp      time.Time        `json:"click_timestamp"`
	ConversionTimestamp time.Time        `json:"conversion_timestamp"`
	AttributionMethod   string           `json:"attribution_method"`
	Status              string           `json:"status"`
	Value               *decimal.Decimal `json:"value,omitempty"`
	Currency            string           `json:"currency,omitempty"`
}

// UnattributedConversion 未归因转化；保留 30 天等待重归因
type UnattributedConversion struct {
	PartnerID      string           `json:"partner_id"`
	Fingerprint    string           `json:"fingerprint,omitempty"`
	SessionID      string           `json:"session_id"`
	PageURL        string           `json:"page_url,omitempty"`
	ConversionType string           `json:"conversion_type,omitempty"`
	Value          *decimal.Decimal `json:"value,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// ConversionInput 转化归因输入
type ConversionInput struct {
	PartnerID      string
	ClickID        string
	Fingerprint    string
	SessionID      string
	PageURL        string
	ConversionType string
	Value          *decimal.Decimal
	Currency       string
	Timestamp      time.Time
}

// Resolution 转化归因结果；HTTP 层始终以 200 返回，结果在 body 中透出
type Resolution struct {
	Outcome    string `json:"outcome"`
	Attributed bool   `json:"attributed"`
	Method     string `json:"method,omitempty"`
	ClickID    string `json:"click_id,omitempty"`
	Message    string `json:"message"`
}

// ReattributeEnqueuer 重归因任务入队接口；queue.Client 实现
type ReattributeEnqueuer interface {
	EnqueueReattribute(key string, delay time.Duration) error
}

// AttributionOptions 归因服务配置
type AttributionOptions struct {
	ClickIDPrefix     string
	ClickTTL          time.Duration
	AttributionWindow time.Duration
	UnattributedTTL   time.Duration
	ReattributeDelay  time.Duration
}

// AttributionService 点击/指纹记录维护与转化归因
type AttributionService struct {
	store    kv.Store
	metrics  *MetricsRecorder
	enqueuer ReattributeEnqueuer
	opts     AttributionOptions
	now      func() time.Time
}

// NewAttributionService 创建归因服务
func NewAttributionService(store kv.Store, metrics *MetricsRecorder, enqueuer ReattributeEnqueuer, opts AttributionOptions) *AttributionService {
	if opts.ClickIDPrefix == "" {
		opts.ClickIDPrefix = "dep_"
	}
	if opts.ClickTTL <= 0 {
		opts.ClickTTL = 90 * 24 * time.Hour
	}
	if opts.AttributionWindow <= 0 {
		opts.AttributionWindow = 90 * 24 * time.Hour
	}
	if opts.UnattributedTTL <= 0 {
		opts.UnattributedTTL = 30 * 24 * time.Hour
	}
	if opts.ReattributeDelay <= 0 {
		opts.ReattributeDelay = time.Hour
	}
	return &AttributionService{
		store:    store,
		metrics:  metrics,
		enqueuer: enqueuer,
		opts:     opts,
		now:      time.Now,
	}
}

// SetClock 注入时钟，仅测试使用
func (s *AttributionService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// NormalizeClickID 清洗 click_id；前缀不符的值按不存在处理
func (s *AttributionService) NormalizeClickID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, s.opts.ClickIDPrefix) {
		logger.Debugw("click_id_prefix_mismatch", "click_id", trimmed)
		return ""
	}
	return trimmed
}

// UpsertClick 刷新/创建点击记录；幂等 last-write-wins，每次写入重置 TTL
func (s *AttributionService) UpsertClick(ctx context.Context, clickID, partnerID string, ts time.Time, meta ClickMetadata) error {
	normalized := s.NormalizeClickID(clickID)
	if normalized == "" {
		return nil
	}
	if ts.IsZero() {
		ts = s.now()
	}
	record := ClickRecord{
		ClickID:   normalized,
		PartnerID: partnerID,
		Timestamp: ts,
		Metadata:  meta,
	}
	return s.store.SetJSON(ctx, kv.ClickKey(normalized), &record, s.opts.ClickTTL)
}

// UpsertFingerprint 刷新/创建指纹记录
// 已有记录保留 first_seen 并累加 page_views；click_id 只在缺失时回填
func (s *AttributionService) UpsertFingerprint(ctx context.Context, fingerprint, partnerID, clickID, sessionID string) error {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return nil
	}
	clickID = s.NormalizeClickID(clickID)
	if clickID == "" && strings.TrimSpace(sessionID) == "" {
		return nil
	}

	now := s.now()
	key := kv.FingerprintKey(fingerprint)

	var record FingerprintRecord
	hit, err := s.store.GetJSON(ctx, key, &record)
	if err != nil {
		return err
	}
	if !hit {
		record = FingerprintRecord{
			Fingerprint: fingerprint,
			PartnerID:   partnerID,
			ClickID:     clickID,
			SessionID:   sessionID,
			FirstSeen:   now,
		}
	}
	record.LastSeen = now
	record.PageViews++
	if sessionID != "" {
		record.SessionID = sessionID
	}
	if record.ClickID == "" && clickID != "" {
		record.ClickID = clickID
	}
	return s.store.SetJSON(ctx, key, &record, s.opts.ClickTTL)
}

// ResolveConversion 执行转化归因
// 直接 click_id 优先；缺 click_id 时尝试指纹兜底；两者都没有则落为未归因记录
func (s *AttributionService) ResolveConversion(ctx context.Context, input ConversionInput) (*Resolution, error) {
	if input.Timestamp.IsZero() {
		input.Timestamp = s.now()
	}

	clickID := s.NormalizeClickID(input.ClickID)
	method := constants.AttributionMethodDirect

	if clickID == "" && strings.TrimSpace(input.Fingerprint) != "" {
		var fp FingerprintRecord
		hit, err := s.store.GetJSON(ctx, kv.FingerprintKey(strings.TrimSpace(input.Fingerprint)), &fp)
		if err != nil {
			return nil, err
		}
		if hit && fp.ClickID != "" {
			clickID = fp.ClickID
			method = constants.AttributionMethodFingerprint
		}
	}

	if clickID == "" {
		if err := s.storeUnattributed(ctx, input); err != nil {
			return nil, err
		}
		return &Resolution{
			Outcome:    constants.AttributionOutcomeUnattributed,
			Attributed: false,
			Message:    "conversion recorded without attribution",
		}, nil
	}

	var click ClickRecord
	hit, err := s.store.GetJSON(ctx, kv.ClickKey(clickID), &click)
	if err != nil {
		return nil, err
	}
	if !hit {
		return &Resolution{
			Outcome:    constants.AttributionOutcomeClickNotFound,
			Attributed: false,
			ClickID:    clickID,
			Message:    "click not found or expired",
		}, nil
	}

	if input.Timestamp.Sub(click.Timestamp) > s.opts.AttributionWindow {
		return &Resolution{
			Outcome:    constants.AttributionOutcomeOutsideWindow,
			Attributed: false,
			ClickID:    clickID,
			Message:    "conversion outside attribution window",
		}, nil
	}

	record := ConversionRecord{
		ClickID:             clickID,
		PartnerID:           input.PartnerID,
		ClickTimestamp:      click.Timestamp,
		ConversionTimestamp: input.Timestamp,
		AttributionMethod:   method,
		Status:              constants.ConversionStatusPending,
		Value:               input.Value,
		Currency:            input.Currency,
	}
	// 原子条件写；先检查后写入的竞态由 SetNX 封死
	created, err := s.store.SetNXJSON(ctx, kv.ConversionKey(clickID), &record, s.opts.ClickTTL)
	if err != nil {
		return nil, err
	}
	if !created {
		return &Resolution{
			Outcome:    constants.AttributionOutcomeDuplicate,
			Attributed: false,
			ClickID:    clickID,
			Message:    "conversion already recorded for this click",
		}, nil
	}

	return &Resolution{
		Outcome:    constants.AttributionOutcomeAttributed,
		Attributed: true,
		Method:     method,
		ClickID:    clickID,
		Message:    "conversion attributed",
	}, nil
}

func (s *AttributionService) storeUnattributed(ctx context.Context, input ConversionInput) error {
	record := UnattributedConversion{
		PartnerID:      input.PartnerID,
		Fingerprint:    strings.TrimSpace(input.Fingerprint),
		SessionID:      input.SessionID,
		PageURL:        input.PageURL,
		ConversionType: input.ConversionType,
		Value:          input.Value,
		Currency:       input.Currency,
		Timestamp:      input.Timestamp,
	}
	key := kv.UnattributedConversionKey(input.PartnerID, input.Timestamp.Unix(), randomSuffix())
	if err := s.store.SetJSON(ctx, key, &record, s.opts.UnattributedTTL); err != nil {
		return err
	}

	// 带指纹的未归因转化稍后重试；指纹记录可能在此期间补上 click_id
	if record.Fingerprint != "" && s.enqueuer != nil {
		if err := s.enqueuer.EnqueueReattribute(key, s.opts.ReattributeDelay); err != nil {
			logger.Warnw("reattribute_enqueue_failed", "key", key, "error", err)
		}
	}
	return nil
}

// ReattributeByKey 尝试把一条未归因转化补记到指纹对应的点击上
// 返回是否成功归因；不可恢复的记录原地保留直到 TTL 过期
func (s *AttributionService) ReattributeByKey(ctx context.Context, key string) (bool, error) {
	var record UnattributedConversion
	hit, err := s.store.GetJSON(ctx, key, &record)
	if err != nil {
		return false, err
	}
	if !hit || record.Fingerprint == "" {
		return false, nil
	}

	var fp FingerprintRecord
	hit, err = s.store.GetJSON(ctx, kv.FingerprintKey(record.Fingerprint), &fp)
	if err != nil {
		return false, err
	}
	if !hit || fp.ClickID == "" {
		return false, nil
	}

	// 走指纹兜底路径，归因方式记为 fingerprint 而非 direct
	resolution, err := s.ResolveConversion(ctx, ConversionInput{
		PartnerID:      record.PartnerID,
		Fingerprint:    record.Fingerprint,
		SessionID:      record.SessionID,
		PageURL:        record.PageURL,
		ConversionType: record.ConversionType,
		Value:          record.Value,
		Currency:       record.Currency,
		Timestamp:      record.Timestamp,
	})
	if err != nil {
		return false, err
	}

	switch resolution.Outcome {
	case constants.AttributionOutcomeAttributed:
		if s.metrics != nil {
			s.metrics.PromoteUnattributed(ctx, record.PartnerID, record.Value)
		}
		if err := s.store.Delete(ctx, key); err != nil {
			logger.Warnw("unattributed_delete_failed", "key", key, "error", err)
		}
		logger.Infow("conversion_reattributed",
			"partner_id", record.PartnerID,
			"click_id", resolution.ClickID,
		)
		return true, nil
	case constants.AttributionOutcomeDuplicate:
		// 该点击已有转化，这条记录不会再被归因
		if err := s.store.Delete(ctx, key); err != nil {
			logger.Warnw("unattributed_delete_failed", "key", key, "error", err)
		}
		return false, nil
	default:
		return false, nil
	}
}

// SweepUnattributed 扫描全部未归因转化并尝试重归因；返回成功条数
func (s *AttributionService) SweepUnattributed(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx, kv.UnattributedConversionPrefix)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, key := range keys {
		ok, err := s.ReattributeByKey(ctx, key)
		if err != nil {
			logger.Warnw("reattribute_sweep_entry_failed", "key", key, "error", err)
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}

func randomSuffix() string {
	return uuid.NewString()[:8]
}
