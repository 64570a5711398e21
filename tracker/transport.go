package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deptrack/deptrack/internal/logger"
)

const transportTimeout = 5 * time.Second

// Event 上报事件
type Event struct {
	PartnerID      string            `json:"partner_id"`
	Type           string            `json:"type"`
	PartnerDomain  string            `json:"partner_domain,omitempty"`
	ClickID        string            `json:"click_id,omitempty"`
	Fingerprint    string            `json:"fingerprint,omitempty"`
	SessionID      string            `json:"session_id"`
	PageURL        string            `json:"page_url,omitempty"`
	Referrer       string            `json:"referrer,omitempty"`
	Timestamp      int64             `json:"timestamp,omitempty"`
	ConversionType string            `json:"conversion_type,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// transport 事件投递
// 像素 GET 为主通道（跨域安全）；转化额外补一发 beacon POST
// 不重试，丢失由服务端指纹兜底补偿；任何投递错误只记日志
type transport struct {
	endpoint string
	client   *http.Client
}

func newTransport(endpoint string, client *http.Client) *transport {
	if client == nil {
		client = &http.Client{Timeout: transportTimeout}
	}
	return &transport{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

// sendPixel 异步发送像素请求
func (t *transport) sendPixel(event Event) {
	pixelURL := t.pixelURL(event)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), transportTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pixelURL, nil)
		if err != nil {
			logger.Debugw("tracker_pixel_build_failed", "error", err)
			return
		}
		resp, err := t.client.Do(req)
		if err != nil {
			logger.Debugw("tracker_pixel_send_failed", "error", err)
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
	}()
}

// sendBeacon 异步发送 beacon POST；结果忽略
func (t *transport) sendBeacon(event Event) {
	payload := map[string]interface{}{
		"partner_id":     event.PartnerID,
		"type":           event.Type,
		"partner_domain": event.PartnerDomain,
		"data": map[string]interface{}{
			"click_id":        event.ClickID,
			"fingerprint":     event.Fingerprint,
			"session_id":      event.SessionID,
			"page_url":        event.PageURL,
			"referrer":        event.Referrer,
			"timestamp":       event.Timestamp,
			"conversion_type": event.ConversionType,
			"metadata":        event.Metadata,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Debugw("tracker_beacon_marshal_failed", "error", err)
		return
	}
	trackURL := t.endpoint + "/api/v1/track"
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), transportTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, trackURL, bytes.NewReader(body))
		if err != nil {
			logger.Debugw("tracker_beacon_build_failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client.Do(req)
		if err != nil {
			logger.Debugw("tracker_beacon_send_failed", "error", err)
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
	}()
}

func (t *transport) pixelURL(event Event) string {
	query := url.Values{}
	query.Set("partner_id", event.PartnerID)
	query.Set("type", event.Type)
	query.Set("session_id", event.SessionID)
	if event.PartnerDomain != "" {
		query.Set("partner_domain", event.PartnerDomain)
	}
	if event.ClickID != "" {
		query.Set("click_id", event.ClickID)
	}
	if event.Fingerprint != "" {
		query.Set("fingerprint", event.Fingerprint)
	}
	if event.PageURL != "" {
		query.Set("page_url", event.PageURL)
	}
	if event.Referrer != "" {
		query.Set("referrer", event.Referrer)
	}
	if event.ConversionType != "" {
		query.Set("conversion_type", event.ConversionType)
	}
	return t.endpoint + "/api/v1/pixel.gif?" + query.Encode()
}
