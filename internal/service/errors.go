package service

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError 请求结构校验失败；Required 列出缺失字段
type ValidationError struct {
	Required []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Required, ", ")
}

// AuthorizationError 合作伙伴域名鉴权失败；内部错误一律按失败处理（fail closed）
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "partner not authorized"
	}
	return "partner not authorized: " + e.Reason
}

// RateLimitError 触发限流
type RateLimitError struct {
	Limit int
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d per hour exceeded", e.Limit)
}
