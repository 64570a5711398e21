package repository

import (
	"errors"
	"strings"

	"github.com/deptrack/deptrack/internal/models"

	"gorm.io/gorm"
)

// PartnerConfigRepository 合作伙伴配置数据访问接口（归因引擎只读）
type PartnerConfigRepository interface {
	GetByPartnerID(partnerID string) (*models.PartnerConfig, error)
	ListActive() ([]models.PartnerConfig, error)
}

// GormPartnerConfigRepository GORM 合作伙伴配置仓储
type GormPartnerConfigRepository struct {
	db *gorm.DB
}

// NewPartnerConfigRepository 创建合作伙伴配置仓储
func NewPartnerConfigRepository(db *gorm.DB) *GormPartnerConfigRepository {
	return &GormPartnerConfigRepository{db: db}
}

// GetByPartnerID 按合作伙伴标识获取配置
func (r *GormPartnerConfigRepository) GetByPartnerID(partnerID string) (*models.PartnerConfig, error) {
	normalized := strings.TrimSpace(partnerID)
	if normalized == "" {
		return nil, nil
	}
	var cfg models.PartnerConfig
	if err := r.db.Where("partner_id = ?", normalized).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// ListActive 查询所有可用配置
func (r *GormPartnerConfigRepository) ListActive() ([]models.PartnerConfig, error) {
	var rows []models.PartnerConfig
	if err := r.db.Where("status = ?", models.PartnerStatusActive).Order("partner_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
