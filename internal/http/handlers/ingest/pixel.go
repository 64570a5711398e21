package ingest

import (
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// transparentGIF 1×1 透明 GIF
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00,
	0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}

// Pixel 处理 GET /api/v1/pixel.gif
// 无论采集结果如何都返回像素，失败只记日志；用于 beacon 不可用的降级上报
func (h *Handler) Pixel(c *gin.Context) {
	req := service.IngestRequest{
		PartnerID:     c.Query("partner_id"),
		Type:          c.Query("type"),
		PartnerDomain: c.Query("partner_domain"),
		Data: service.EventData{
			ClickID:        c.Query("click_id"),
			Fingerprint:    c.Query("fingerprint"),
			SessionID:      c.Query("session_id"),
			PageURL:        c.Query("page_url"),
			Referrer:       c.Query("referrer"),
			ConversionType: c.Query("conversion_type"),
		},
		ClientIP:  ClientIP(c),
		UserAgent: c.GetHeader("User-Agent"),
	}
	if raw := c.Query("conversion_value"); raw != "" {
		if value, err := decimal.NewFromString(raw); err == nil {
			req.Data.ConversionValue = &value
		}
	}
	if currency := c.Query("conversion_currency"); currency != "" {
		req.Data.ConversionCurrency = currency
	}

	if _, err := h.Ingest.Ingest(c.Request.Context(), req); err != nil {
		logger.Debugw("pixel_ingest_rejected", "partner_id", req.PartnerID, "error", err)
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(200, "image/gif", transparentGIF)
}
