package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deptrack/deptrack/internal/constants"
	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/models"
	"github.com/deptrack/deptrack/internal/ratelimit"

	"github.com/shopspring/decimal"
)

type ingestFixture struct {
	svc     *IngestService
	store   *kv.MemoryStore
	metrics *MetricsRecorder
	current *time.Time
}

func newIngestFixture(t *testing.T, rateLimit int) *ingestFixture {
	t.Helper()
	store := kv.NewMemoryStore()
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }
	store.SetClock(clock)

	repo := &stubPartnerRepo{rows: map[string]*models.PartnerConfig{
		"vindstod": {
			PartnerID:        "vindstod",
			DomainWhitelist:  models.StringList{"vindstod.dk", "*.vindstod.dk"},
			RateLimitPerHour: rateLimit,
			Status:           models.PartnerStatusActive,
		},
	}}

	partners := NewPartnerService(repo, store, time.Minute)
	limiter := ratelimit.NewLimiter(store, 1000)
	limiter.SetClock(clock)
	metrics := NewMetricsRecorder(store, 30*24*time.Hour)
	metrics.SetClock(clock)
	attribution := NewAttributionService(store, metrics, nil, AttributionOptions{ClickIDPrefix: "dep_"})
	attribution.SetClock(clock)

	svc := NewIngestService(store, partners, limiter, attribution, metrics, IngestOptions{})
	svc.SetClock(clock)
	return &ingestFixture{svc: svc, store: store, metrics: metrics, current: &current}
}

func (f *ingestFixture) date() string {
	return f.current.UTC().Format("2006-01-02")
}

func trackRequest(clickID string) IngestRequest {
	return IngestRequest{
		PartnerID:     "vindstod",
		Type:          constants.EventTypeTrack,
		PartnerDomain: "vindstod.dk",
		Data: EventData{
			ClickID:   clickID,
			SessionID: "sess-1",
			PageURL:   "https://vindstod.dk/elaftale",
		},
		ClientIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0",
	}
}

func TestIngestTrackStoresClickAndEvent(t *testing.T) {
	f := newIngestFixture(t, 1000)
	ctx := context.Background()

	result, err := f.svc.Ingest(ctx, trackRequest("dep_abc"))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Attribution != nil {
		t.Fatalf("track event must not carry attribution, got %+v", result.Attribution)
	}

	var click ClickRecord
	if hit, _ := f.store.GetJSON(ctx, kv.ClickKey("dep_abc"), &click); !hit {
		t.Fatalf("click record should be stored")
	}
	events, err := f.store.Keys(ctx, kv.TrackingEventPrefix)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one raw event, got %d", len(events))
	}

	metrics, err := f.metrics.Get(ctx, "vindstod", f.date())
	if err != nil {
		t.Fatalf("metrics get failed: %v", err)
	}
	if metrics.PageViews != 1 {
		t.Fatalf("page_views want 1 got %d", metrics.PageViews)
	}
}

func TestIngestNonPrefixedClickIDIgnored(t *testing.T) {
	f := newIngestFixture(t, 1000)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, trackRequest("utm_12345")); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	keys, err := f.store.Keys(ctx, "click:")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("non-prefixed click_id must not create click records, got %v", keys)
	}
}

func TestIngestValidation(t *testing.T) {
	f := newIngestFixture(t, 1000)

	_, err := f.svc.Ingest(context.Background(), IngestRequest{Type: "bogus"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"partner_id", "type", "data.session_id"}
	if len(verr.Required) != len(want) {
		t.Fatalf("required want %v got %v", want, verr.Required)
	}
	for i, field := range want {
		if verr.Required[i] != field {
			t.Fatalf("required want %v got %v", want, verr.Required)
		}
	}
}

func TestIngestRejectsForeignDomain(t *testing.T) {
	f := newIngestFixture(t, 1000)

	req := trackRequest("dep_abc")
	req.PartnerDomain = "evil.com"
	_, err := f.svc.Ingest(context.Background(), req)
	var aerr *AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
}

func TestIngestRateLimit(t *testing.T) {
	f := newIngestFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Ingest(ctx, trackRequest("dep_abc")); err != nil {
			t.Fatalf("request %d should pass: %v", i+1, err)
		}
	}
	result, err := f.svc.Ingest(ctx, trackRequest("dep_abc"))
	var rerr *RateLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rerr.Limit != 2 {
		t.Fatalf("limit want 2 got %d", rerr.Limit)
	}
	if result == nil || result.RateLimit.Allowed {
		t.Fatalf("result must carry the rejected rate state, got %+v", result)
	}

	// 新窗口恢复
	*f.current = f.current.Add(time.Hour)
	if _, err := f.svc.Ingest(ctx, trackRequest("dep_abc")); err != nil {
		t.Fatalf("new window should pass: %v", err)
	}
}

func TestIngestConversionFlow(t *testing.T) {
	f := newIngestFixture(t, 1000)
	ctx := context.Background()

	// 先有点击，再转化
	if _, err := f.svc.Ingest(ctx, trackRequest("dep_abc")); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	*f.current = f.current.Add(2 * time.Hour)

	value := decimal.NewFromInt(499)
	req := trackRequest("dep_abc")
	req.Type = constants.EventTypeConversion
	req.Data.ConversionType = "signup"
	req.Data.ConversionValue = &value
	req.Data.ConversionCurrency = "DKK"

	result, err := f.svc.Ingest(ctx, req)
	if err != nil {
		t.Fatalf("conversion ingest failed: %v", err)
	}
	if result.Attribution == nil || !result.Attribution.Attributed {
		t.Fatalf("conversion should be attributed, got %+v", result.Attribution)
	}

	metrics, err := f.metrics.Get(ctx, "vindstod", f.date())
	if err != nil {
		t.Fatalf("metrics get failed: %v", err)
	}
	if metrics.Conversions != 1 {
		t.Fatalf("conversions want 1 got %d", metrics.Conversions)
	}
	if !metrics.Revenue.Equal(value) {
		t.Fatalf("revenue want 499 got %s", metrics.Revenue)
	}
}

func TestIngestUnattributedConversionStaysSuccessful(t *testing.T) {
	f := newIngestFixture(t, 1000)
	ctx := context.Background()

	req := trackRequest("")
	req.Type = constants.EventTypeConversion
	req.Data.Fingerprint = "fp_unknown"

	result, err := f.svc.Ingest(ctx, req)
	if err != nil {
		t.Fatalf("unattributed conversion must not surface an error: %v", err)
	}
	if result.Attribution == nil || result.Attribution.Attributed {
		t.Fatalf("conversion must be recorded as unattributed, got %+v", result.Attribution)
	}
	if result.Attribution.Outcome != constants.AttributionOutcomeUnattributed {
		t.Fatalf("outcome want unattributed got %s", result.Attribution.Outcome)
	}

	metrics, err := f.metrics.Get(ctx, "vindstod", f.date())
	if err != nil {
		t.Fatalf("metrics get failed: %v", err)
	}
	if metrics.UnattributedConversions != 1 {
		t.Fatalf("unattributed_conversions want 1 got %d", metrics.UnattributedConversions)
	}
}
