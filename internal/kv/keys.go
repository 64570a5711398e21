package kv

import "fmt"

// 持久化 key 布局；所有键都带存储层前缀（Redis 实现见 buildKey）
const (
	UnattributedConversionPrefix = "unattributed_conversion:"
	TrackingEventPrefix          = "tracking_event:"
)

// ClickKey 点击记录 key
func ClickKey(clickID string) string {
	return "click:" + clickID
}

// FingerprintKey 指纹记录 key
func FingerprintKey(fingerprint string) string {
	return "fingerprint:" + fingerprint
}

// ConversionKey 转化记录 key（每个 click_id 至多一条）
func ConversionKey(clickID string) string {
	return "conversion:" + clickID
}

// UnattributedConversionKey 未归因转化 key
func UnattributedConversionKey(partnerID string, unix int64, rand string) string {
	return fmt.Sprintf("%s%s:%d:%s", UnattributedConversionPrefix, partnerID, unix, rand)
}

// TrackingEventKey 原始事件 key
func TrackingEventKey(partnerID string, unix int64, rand string) string {
	return fmt.Sprintf("%s%s:%d:%s", TrackingEventPrefix, partnerID, unix, rand)
}

// DailyMetricsKey 按天聚合指标 key；date 形如 2026-08-29
func DailyMetricsKey(date string, partnerID string) string {
	return fmt.Sprintf("metrics:daily:%s:%s", date, partnerID)
}

// RateLimitKey 固定窗口限流计数 key
func RateLimitKey(partnerID string, ip string, windowStart int64) string {
	return fmt.Sprintf("rate_limit:%s:%s:%d", partnerID, ip, windowStart)
}

// PartnerConfigKey 合作伙伴配置缓存 key
func PartnerConfigKey(partnerID string) string {
	return "partner_config:" + partnerID
}
