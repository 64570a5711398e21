// Package admin 管理端只读接口
package admin

import (
	"net/http"
	"time"

	"github.com/deptrack/deptrack/internal/http/response"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler 管理端处理器
type Handler struct {
	Partners *service.PartnerService
	Metrics  *service.MetricsRecorder
}

// NewHandler 创建管理端处理器
func NewHandler(partners *service.PartnerService, metrics *service.MetricsRecorder) *Handler {
	return &Handler{Partners: partners, Metrics: metrics}
}

// PartnerMetrics 处理 GET /api/v1/admin/partners/:partner_id/metrics
// date 缺省为当天（UTC）；无数据返回零值聚合
func (h *Handler) PartnerMetrics(c *gin.Context) {
	partnerID := c.Param("partner_id")

	partner, err := h.Partners.GetPartner(c.Request.Context(), partnerID)
	if err != nil {
		logger.Errorw("admin_partner_lookup_failed", "partner_id", partnerID, "error", err)
		response.InternalError(c)
		return
	}
	if partner == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown partner"})
		return
	}

	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		response.BadRequest(c, "invalid date, expected YYYY-MM-DD", nil)
		return
	}

	metrics, err := h.Metrics.Get(c.Request.Context(), partner.PartnerID, date)
	if err != nil {
		logger.Errorw("admin_metrics_read_failed", "partner_id", partnerID, "date", date, "error", err)
		response.InternalError(c)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// PartnerDetail 处理 GET /api/v1/admin/partners/:partner_id
func (h *Handler) PartnerDetail(c *gin.Context) {
	partnerID := c.Param("partner_id")

	partner, err := h.Partners.GetPartner(c.Request.Context(), partnerID)
	if err != nil {
		logger.Errorw("admin_partner_lookup_failed", "partner_id", partnerID, "error", err)
		response.InternalError(c)
		return
	}
	if partner == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown partner"})
		return
	}
	c.JSON(http.StatusOK, partner)
}
