package service

import (
	"context"
	"strings"
	"time"

	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/models"
	"github.com/deptrack/deptrack/internal/repository"
)

const defaultPartnerCacheTTL = 5 * time.Minute

// PartnerSnapshot 合作伙伴配置快照；写入 KV 缓存的结构
type PartnerSnapshot struct {
	PartnerID        string   `json:"partner_id"`
	DomainWhitelist  []string `json:"domain_whitelist"`
	RateLimitPerHour int      `json:"rate_limit_per_hour"`
	Status           string   `json:"status"`
	CachedAt         int64    `json:"cached_at"`
}

// IsActive 判断是否可用
func (s *PartnerSnapshot) IsActive() bool {
	return s != nil && s.Status == models.PartnerStatusActive
}

// PartnerService 合作伙伴配置读取服务；数据库为准，KV 缓存加速
type PartnerService struct {
	repo     repository.PartnerConfigRepository
	store    kv.Store
	cacheTTL time.Duration
}

// NewPartnerService 创建合作伙伴配置服务
func NewPartnerService(repo repository.PartnerConfigRepository, store kv.Store, cacheTTL time.Duration) *PartnerService {
	if cacheTTL <= 0 {
		cacheTTL = defaultPartnerCacheTTL
	}
	return &PartnerService{repo: repo, store: store, cacheTTL: cacheTTL}
}

// GetPartner 按标识获取配置快照；未配置返回 (nil, nil)
func (s *PartnerService) GetPartner(ctx context.Context, partnerID string) (*PartnerSnapshot, error) {
	normalized := strings.TrimSpace(partnerID)
	if normalized == "" {
		return nil, nil
	}

	cacheKey := kv.PartnerConfigKey(normalized)
	if s.store != nil {
		var cached PartnerSnapshot
		hit, err := s.store.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warnw("partner_cache_read_failed", "partner_id", normalized, "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	row, err := s.repo.GetByPartnerID(normalized)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	snapshot := &PartnerSnapshot{
		PartnerID:        row.PartnerID,
		DomainWhitelist:  row.DomainWhitelist,
		RateLimitPerHour: row.RateLimitPerHour,
		Status:           row.Status,
		CachedAt:         time.Now().Unix(),
	}
	if s.store != nil {
		if err := s.store.SetJSON(ctx, cacheKey, snapshot, s.cacheTTL); err != nil {
			logger.Warnw("partner_cache_write_failed", "partner_id", normalized, "error", err)
		}
	}
	return snapshot, nil
}

// Authorize 域名鉴权；缺失、停用、域名不在白名单或内部错误都拒绝（fail closed）
func (s *PartnerService) Authorize(ctx context.Context, partnerID, domain string) (*PartnerSnapshot, error) {
	partner, err := s.GetPartner(ctx, partnerID)
	if err != nil {
		logger.Errorw("partner_lookup_failed", "partner_id", partnerID, "error", err)
		return nil, &AuthorizationError{Reason: "partner lookup unavailable"}
	}
	if partner == nil {
		return nil, &AuthorizationError{Reason: "unknown partner"}
	}
	if !partner.IsActive() {
		return nil, &AuthorizationError{Reason: "partner is not active"}
	}
	if !DomainAuthorized(partner.DomainWhitelist, domain) {
		return nil, &AuthorizationError{Reason: "domain not in whitelist"}
	}
	return partner, nil
}

// DomainAuthorized 判断申报域名是否被白名单允许
// 空白名单允许任意域名；`*.suffix` 通配要求 suffix 前有字面 "." 边界，
// 避免 evilexample.com 命中 *.example.com
func DomainAuthorized(whitelist []string, domain string) bool {
	if len(whitelist) == 0 {
		return true
	}
	normalized := strings.ToLower(strings.TrimSpace(domain))
	if normalized == "" {
		return false
	}
	for _, entry := range whitelist {
		allowed := strings.ToLower(strings.TrimSpace(entry))
		if allowed == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(allowed, "*."); ok {
			if normalized == rest || strings.HasSuffix(normalized, "."+rest) {
				return true
			}
			continue
		}
		if normalized == allowed {
			return true
		}
	}
	return false
}
