// Package ingest 事件采集 HTTP 处理器
package ingest

import (
	"github.com/deptrack/deptrack/internal/service"
)

// Handler 采集处理器
type Handler struct {
	Ingest *service.IngestService
}

// NewHandler 创建采集处理器
func NewHandler(ingest *service.IngestService) *Handler {
	return &Handler{Ingest: ingest}
}
