package ingest

import (
	"errors"

	"github.com/deptrack/deptrack/internal/constants"
	"github.com/deptrack/deptrack/internal/http/response"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TrackRequest 采集请求体
type TrackRequest struct {
	PartnerID     string    `json:"partner_id"`
	Type          string    `json:"type"`
	PartnerDomain string    `json:"partner_domain"`
	Data          TrackData `json:"data"`
}

// TrackData 采集事件负载
type TrackData struct {
	ClickID            string            `json:"click_id"`
	Fingerprint        string            `json:"fingerprint"`
	SessionID          string            `json:"session_id"`
	PageURL            string            `json:"page_url"`
	Referrer           string            `json:"referrer"`
	Timestamp          int64             `json:"timestamp"`
	ConversionType     string            `json:"conversion_type"`
	ConversionValue    *decimal.Decimal  `json:"conversion_value"`
	ConversionCurrency string            `json:"conversion_currency"`
	Metadata           map[string]string `json:"metadata"`
}

// Collect 处理 POST /api/v1/track
// 限流状态始终写入 X-RateLimit-* 响应头；归因失败在 200 body 中透出
func (h *Handler) Collect(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid json body", nil)
		return
	}

	result, err := h.Ingest.Ingest(c.Request.Context(), service.IngestRequest{
		PartnerID:     req.PartnerID,
		Type:          req.Type,
		PartnerDomain: req.PartnerDomain,
		Data: service.EventData{
			ClickID:            req.Data.ClickID,
			Fingerprint:        req.Data.Fingerprint,
			SessionID:          req.Data.SessionID,
			PageURL:            req.Data.PageURL,
			Referrer:           req.Data.Referrer,
			Timestamp:          req.Data.Timestamp,
			ConversionType:     req.Data.ConversionType,
			ConversionValue:    req.Data.ConversionValue,
			ConversionCurrency: req.Data.ConversionCurrency,
			Metadata:           req.Data.Metadata,
		},
		ClientIP:  ClientIP(c),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if result != nil {
		response.SetRateLimitHeaders(c, result.RateLimit)
	}

	if err != nil {
		var verr *service.ValidationError
		var aerr *service.AuthorizationError
		var rerr *service.RateLimitError
		switch {
		case errors.As(err, &verr):
			response.BadRequest(c, "missing required fields", verr.Required)
		case errors.As(err, &aerr):
			response.Forbidden(c, aerr.Error())
		case errors.As(err, &rerr):
			response.TooManyRequests(c, rerr.Reset)
		default:
			logger.Errorw("track_ingest_failed", "partner_id", req.PartnerID, "error", err)
			response.InternalError(c)
		}
		return
	}

	resp := response.TrackResponse{Success: true, Message: result.Message}
	if result.Attribution != nil {
		resp.Attributed = &result.Attribution.Attributed
		resp.Outcome = result.Attribution.Outcome
		if result.Attribution.Message != "" {
			resp.Message = result.Attribution.Message
		}
		if result.Attribution.Outcome == constants.AttributionOutcomeDuplicate {
			resp.Success = false
		}
	}
	response.Track(c, resp)
}
