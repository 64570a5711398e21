package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// 合作伙伴状态常量
const (
	PartnerStatusActive   = "active"
	PartnerStatusDisabled = "disabled"
)

// StringList 以 JSON 文本存储的字符串数组列
type StringList []string

// Value 实现 driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	payload, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan 实现 sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var payload []byte
	switch v := value.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		return fmt.Errorf("unsupported StringList source type %T", value)
	}
	if len(payload) == 0 {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(payload, &out); err != nil {
		return errors.New("invalid StringList payload: " + err.Error())
	}
	*l = out
	return nil
}

// PartnerConfig 合作伙伴配置；归因引擎只读，由运营侧（cmd/seed 或外部后台）维护
type PartnerConfig struct {
	ID               uint       `gorm:"primarykey" json:"id"`                                       // 主键
	PartnerID        string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"partner_id"`    // 合作伙伴标识
	DomainWhitelist  StringList `gorm:"type:text" json:"domain_whitelist"`                          // 域名白名单；空表示不限制
	RateLimitPerHour int        `gorm:"not null;default:0" json:"rate_limit_per_hour"`              // 每小时限流；0 表示使用默认值
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status"`              // active / disabled
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                                 // 更新时间
}

// TableName 指定表名
func (PartnerConfig) TableName() string {
	return "partner_configs"
}

// IsActive 判断是否处于可用状态
func (p *PartnerConfig) IsActive() bool {
	return p != nil && p.Status == PartnerStatusActive
}
