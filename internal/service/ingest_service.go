package service

import (
	"context"
	"strings"
	"time"

	"github.com/deptrack/deptrack/internal/constants"
	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/ratelimit"

	"github.com/shopspring/decimal"
)

// EventData 事件负载
type EventData struct {
	ClickID            string            `json:"click_id,omitempty"`
	Fingerprint        string            `json:"fingerprint,omitempty"`
	SessionID          string            `json:"session_id"`
	PageURL            string            `json:"page_url,omitempty"`
	Referrer           string            `json:"referrer,omitempty"`
	Timestamp          int64             `json:"timestamp,omitempty"` // 客户端毫秒时间戳，仅随原始事件保留
	ConversionType     string            `json:"conversion_type,omitempty"`
	ConversionValue    *decimal.Decimal  `json:"conversion_value,omitempty"`
	ConversionCurrency string            `json:"conversion_currency,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// ClientInfo 服务端提取的客户端信息
type ClientInfo struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackingEvent 原始入库事件，TTL 7 天
type TrackingEvent struct {
	Type          string     `json:"type"`
	PartnerID     string     `json:"partner_id"`
	PartnerDomain string     `json:"partner_domain,omitempty"`
	Data          EventData  `json:"data"`
	ClientInfo    ClientInfo `json:"client_info"`
}

// IngestRequest 采集请求；HTTP 层负责解出 ClientIP/UserAgent
type IngestRequest struct {
	PartnerID     string
	Type          string
	PartnerDomain string
	Data          EventData
	ClientIP      string
	UserAgent     string
}

// IngestResult 采集处理结果；RateLimit 始终被填充供响应头回显
type IngestResult struct {
	RateLimit   ratelimit.Result
	Attribution *Resolution
	Message     string
}

// IngestOptions 采集服务配置
type IngestOptions struct {
	EventTTL time.Duration
}

// IngestService 采集管线：校验 → 域名鉴权 → 限流 → 入库 → 归因
// 每个请求是独立的无状态单元，任何阶段失败直接短路，不做请求内重试
type IngestService struct {
	store       kv.Store
	partners    *PartnerService
	limiter     *ratelimit.Limiter
	attribution *AttributionService
	metrics     *MetricsRecorder
	opts        IngestOptions
	now         func() time.Time
}

// NewIngestService 创建采集服务
func NewIngestService(
	store kv.Store,
	partners *PartnerService,
	limiter *ratelimit.Limiter,
	attribution *AttributionService,
	metrics *MetricsRecorder,
	opts IngestOptions,
) *IngestService {
	if opts.EventTTL <= 0 {
		opts.EventTTL = 7 * 24 * time.Hour
	}
	return &IngestService{
		store:       store,
		partners:    partners,
		limiter:     limiter,
		attribution: attribution,
		metrics:     metrics,
		opts:        opts,
		now:         time.Now,
	}
}

// SetClock 注入时钟，仅测试使用
func (s *IngestService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Ingest 处理一条采集事件
// 限流之前的失败也返回带默认限流信息的结果，保证响应头始终可回显
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	result := &IngestResult{RateLimit: s.defaultRate()}

	// VALIDATED
	if missing := s.validate(req); len(missing) > 0 {
		return result, &ValidationError{Required: missing}
	}

	// DOMAIN_AUTHORIZED
	partner, err := s.partners.Authorize(ctx, req.PartnerID, req.PartnerDomain)
	if err != nil {
		return result, err
	}

	// RATE_CHECKED
	rate := s.limiter.Allow(ctx, partner.PartnerID, req.ClientIP, partner.RateLimitPerHour)
	result.RateLimit = rate
	if !rate.Allowed {
		return result, &RateLimitError{Limit: rate.Limit, Reset: rate.Reset}
	}

	now := s.now()

	// STORED：单条事件丢失可以接受，失败只记日志
	event := TrackingEvent{
		Type:          req.Type,
		PartnerID:     partner.PartnerID,
		PartnerDomain: req.PartnerDomain,
		Data:          req.Data,
		ClientInfo: ClientInfo{
			IP:        req.ClientIP,
			UserAgent: req.UserAgent,
			Timestamp: now,
		},
	}
	eventKey := kv.TrackingEventKey(partner.PartnerID, now.Unix(), randomSuffix())
	if err := s.store.SetJSON(ctx, eventKey, &event, s.opts.EventTTL); err != nil {
		logger.Warnw("ingest_store_event_failed",
			"partner_id", partner.PartnerID,
			"type", req.Type,
			"error", err,
		)
	}

	if req.Type == constants.EventTypeTrack && s.metrics != nil {
		s.metrics.AddPageView(ctx, partner.PartnerID)
	}

	// 点击/指纹 upsert 对两类事件都无条件执行
	if err := s.attribution.UpsertClick(ctx, req.Data.ClickID, partner.PartnerID, now, ClickMetadata{
		Domain:    req.PartnerDomain,
		SessionID: req.Data.SessionID,
		IP:        req.ClientIP,
		UserAgent: req.UserAgent,
	}); err != nil {
		logger.Warnw("ingest_upsert_click_failed", "partner_id", partner.PartnerID, "error", err)
	}
	if err := s.attribution.UpsertFingerprint(ctx, req.Data.Fingerprint, partner.PartnerID, req.Data.ClickID, req.Data.SessionID); err != nil {
		logger.Warnw("ingest_upsert_fingerprint_failed", "partner_id", partner.PartnerID, "error", err)
	}

	// ATTRIBUTED
	if req.Type == constants.EventTypeConversion {
		resolution, err := s.attribution.ResolveConversion(ctx, ConversionInput{
			PartnerID:      partner.PartnerID,
			ClickID:        req.Data.ClickID,
			Fingerprint:    req.Data.Fingerprint,
			SessionID:      req.Data.SessionID,
			PageURL:        req.Data.PageURL,
			ConversionType: req.Data.ConversionType,
			Value:          req.Data.ConversionValue,
			Currency:       req.Data.ConversionCurrency,
			Timestamp:      now,
		})
		if err != nil {
			// 归因存储故障不打破对外成功契约，结果降级为暂不可归因
			logger.Errorw("ingest_attribution_failed", "partner_id", partner.PartnerID, "error", err)
			resolution = &Resolution{
				Outcome:    constants.AttributionOutcomeError,
				Attributed: false,
				Message:    "attribution temporarily unavailable",
			}
		}
		result.Attribution = resolution

		if s.metrics != nil {
			switch resolution.Outcome {
			case constants.AttributionOutcomeAttributed:
				s.metrics.AddConversion(ctx, partner.PartnerID, req.Data.ConversionValue)
			case constants.AttributionOutcomeUnattributed:
				s.metrics.AddUnattributed(ctx, partner.PartnerID)
			}
		}
	}

	result.Message = "event recorded"
	return result, nil
}

func (s *IngestService) validate(req IngestRequest) []string {
	var missing []string
	if strings.TrimSpace(req.PartnerID) == "" {
		missing = append(missing, "partner_id")
	}
	if req.Type != constants.EventTypeTrack && req.Type != constants.EventTypeConversion {
		missing = append(missing, "type")
	}
	if strings.TrimSpace(req.Data.SessionID) == "" {
		missing = append(missing, "data.session_id")
	}
	return missing
}

func (s *IngestService) defaultRate() ratelimit.Result {
	now := s.now()
	windowStart := now.Truncate(time.Hour)
	limit := s.limiter.DefaultLimit()
	return ratelimit.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		Reset:     windowStart.Add(time.Hour),
	}
}
