package service

import (
	"context"
	"testing"
	"time"

	"github.com/deptrack/deptrack/internal/constants"
	"github.com/deptrack/deptrack/internal/kv"

	"github.com/shopspring/decimal"
)

func newAttributionTestService(t *testing.T) (*AttributionService, *kv.MemoryStore, *time.Time) {
	t.Helper()
	store := kv.NewMemoryStore()
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }
	store.SetClock(clock)

	svc := NewAttributionService(store, nil, nil, AttributionOptions{
		ClickIDPrefix:     "dep_",
		ClickTTL:          90 * 24 * time.Hour,
		AttributionWindow: 90 * 24 * time.Hour,
	})
	svc.SetClock(clock)
	return svc, store, &current
}

func TestNormalizeClickIDPrefix(t *testing.T) {
	svc, _, _ := newAttributionTestService(t)

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "valid", input: "dep_abc123", want: "dep_abc123"},
		{name: "trimmed", input: "  dep_abc123 ", want: "dep_abc123"},
		{name: "wrong_prefix", input: "other_abc", want: ""},
		{name: "empty", input: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.NormalizeClickID(tc.input); got != tc.want {
				t.Fatalf("normalize %q want %q got %q", tc.input, tc.want, got)
			}
		})
	}
}

func TestUpsertClickAndDirectResolution(t *testing.T) {
	svc, store, current := newAttributionTestService(t)
	ctx := context.Background()

	if err := svc.UpsertClick(ctx, "dep_abc", "vindstod", *current, ClickMetadata{
		Domain:    "vindstod.dk",
		SessionID: "sess-1",
	}); err != nil {
		t.Fatalf("upsert click failed: %v", err)
	}

	var click ClickRecord
	if hit, _ := store.GetJSON(ctx, kv.ClickKey("dep_abc"), &click); !hit {
		t.Fatalf("click record should exist")
	}
	if click.PartnerID != "vindstod" || click.Metadata.Domain != "vindstod.dk" {
		t.Fatalf("unexpected click record: %+v", click)
	}

	// 2 天后转化
	*current = current.Add(48 * time.Hour)
	value := decimal.NewFromInt(499)
	resolution, err := svc.ResolveConversion(ctx, ConversionInput{
		PartnerID: "vindstod",
		ClickID:   "dep_abc",
		SessionID: "sess-1",
		Value:     &value,
		Currency:  "DKK",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolution.Attributed || resolution.Outcome != constants.AttributionOutcomeAttributed {
		t.Fatalf("expected attributed resolution, got %+v", resolution)
	}
	if resolution.Method != constants.AttributionMethodDirect {
		t.Fatalf("method want direct got %s", resolution.Method)
	}

	var conversion ConversionRecord
	if hit, _ := store.GetJSON(ctx, kv.ConversionKey("dep_abc"), &conversion); !hit {
		t.Fatalf("conversion record should exist")
	}
	if conversion.Status != constants.ConversionStatusPending {
		t.Fatalf("status want pending got %s", conversion.Status)
	}
	if conversion.Value == nil || !conversion.Value.Equal(value) {
		t.Fatalf("value want 499 got %+v", conversion.Value)
	}
}

func TestResolveConversionDuplicate(t *testing.T) {
	svc, _, _ := newAttributionTestService(t)
	ctx := context.Background()

	if err := svc.UpsertClick(ctx, "dep_dup", "vindstod", time.Time{}, ClickMetadata{}); err != nil {
		t.Fatalf("upsert click failed: %v", err)
	}

	input := ConversionInput{PartnerID: "vindstod", ClickID: "dep_dup", SessionID: "s"}
	first, err := svc.ResolveConversion(ctx, input)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if !first.Attributed {
		t.Fatalf("first conversion should be attributed")
	}

	second, err := svc.ResolveConversion(ctx, input)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if second.Attributed {
		t.Fatalf("duplicate conversion must not be attributed")
	}
	if second.Outcome != constants.AttributionOutcomeDuplicate {
		t.Fatalf("outcome want duplicate got %s", second.Outcome)
	}
}

func TestResolveConversionWindow(t *testing.T) {
	svc, _, current := newAttributionTestService(t)
	ctx := context.Background()

	if err := svc.UpsertClick(ctx, "dep_win", "vindstod", *current, ClickMetadata{}); err != nil {
		t.Fatalf("upsert click failed: %v", err)
	}
	clickTime := *current

	// 89 天内可归因
	*current = clickTime.Add(89 * 24 * time.Hour)
	resolution, err := svc.ResolveConversion(ctx, ConversionInput{PartnerID: "vindstod", ClickID: "dep_win"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolution.Attributed {
		t.Fatalf("conversion at +89d should be attributed, got %+v", resolution)
	}
}

func TestResolveConversionOutsideWindow(t *testing.T) {
	// 点击 TTL 放宽到窗口之外，确保 +91d 时记录还在、被窗口判定拒绝
	store := kv.NewMemoryStore()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	current := &start
	clock := func() time.Time { return *current }
	store.SetClock(clock)

	svc := NewAttributionService(store, nil, nil, AttributionOptions{
		ClickIDPrefix:     "dep_",
		ClickTTL:          120 * 24 * time.Hour,
		AttributionWindow: 90 * 24 * time.Hour,
	})
	svc.SetClock(clock)
	ctx := context.Background()

	if err := svc.UpsertClick(ctx, "dep_old", "vindstod", *current, ClickMetadata{}); err != nil {
		t.Fatalf("upsert click failed: %v", err)
	}

	*current = current.Add(91 * 24 * time.Hour)
	resolution, err := svc.ResolveConversion(ctx, ConversionInput{PartnerID: "vindstod", ClickID: "dep_old"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolution.Attributed {
		t.Fatalf("conversion at +91d must be rejected")
	}
	if resolution.Outcome != constants.AttributionOutcomeOutsideWindow {
		t.Fatalf("outcome want outside_window got %s", resolution.Outcome)
	}
}

func TestResolveConversionClickNotFound(t *testing.T) {
	svc, _, _ := newAttributionTestService(t)

	resolution, err := svc.ResolveConversion(context.Background(), ConversionInput{
		PartnerID: "vindstod",
		ClickID:   "dep_missing",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolution.Attributed {
		t.Fatalf("unknown click must not attribute")
	}
	if resolution.Outcome != constants.AttributionOutcomeClickNotFound {
		t.Fatalf("outcome want click_not_found got %s", resolution.Outcome)
	}
}

func TestFingerprintBackfillIsImmutable(t *testing.T) {
	svc, store, _ := newAttributionTestService(t)
	ctx := context.Background()

	if err := svc.UpsertFingerprint(ctx, "fp_1", "vindstod", "dep_first", "s1"); err != nil {
		t.Fatalf("upsert fingerprint failed: %v", err)
	}
	// 后续带新 click_id 的写入不能覆盖既有关联
	if err := svc.UpsertFingerprint(ctx, "fp_1", "vindstod", "dep_second", "s2"); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var record FingerprintRecord
	if hit, _ := store.GetJSON(ctx, kv.FingerprintKey("fp_1"), &record); !hit {
		t.Fatalf("fingerprint record should exist")
	}
	if record.ClickID != "dep_first" {
		t.Fatalf("click_id must stay dep_first, got %s", record.ClickID)
	}
	if record.PageViews != 2 {
		t.Fatalf("page_views want 2 got %d", record.PageViews)
	}
}

func TestFingerprintPreservesFirstSeen(t *testing.T) {
	svc, store, current := newAttributionTestService(t)
	ctx := context.Background()

	firstSeen := *current
	if err := svc.UpsertFingerprint(ctx, "fp_seen", "vindstod", "", "s1"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	*current = current.Add(24 * time.Hour)
	if err := svc.UpsertFingerprint(ctx, "fp_seen", "vindstod", "", "s1"); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var record FingerprintRecord
	if hit, _ := store.GetJSON(ctx, kv.FingerprintKey("fp_seen"), &record); !hit {
		t.Fatalf("fingerprint record should exist")
	}
	if !record.FirstSeen.Equal(firstSeen) {
		t.Fatalf("first_seen must be preserved: want %v got %v", firstSeen, record.FirstSeen)
	}
	if !record.LastSeen.Equal(*current) {
		t.Fatalf("last_seen must be refreshed: want %v got %v", *current, record.LastSeen)
	}
}

func TestResolveConversionFingerprintFallback(t *testing.T) {
	svc, _, _ := newAttributionTestService(t)
	ctx := context.Background()

	if err := svc.UpsertClick(ctx, "dep_fp", "vindstod", time.Time{}, ClickMetadata{}); err != nil {
		t.Fatalf("upsert click failed: %v", err)
	}
	if err := svc.UpsertFingerprint(ctx, "fp_xyz", "vindstod", "dep_fp", "s1"); err != nil {
		t.Fatalf("upsert fingerprint failed: %v", err)
	}

	resolution, err := svc.ResolveConversion(ctx, ConversionInput{
		PartnerID:   "vindstod",
		Fingerprint: "fp_xyz",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolution.Attributed {
		t.Fatalf("fingerprint fallback should attribute, got %+v", resolution)
	}
	if resolution.Method != constants.AttributionMethodFingerprint {
		t.Fatalf("method want fingerprint got %s", resolution.Method)
	}
	if resolution.ClickID != "dep_fp" {
		t.Fatalf("click_id want dep_fp got %s", resolution.ClickID)
	}
}

func TestResolveConversionUnattributed(t *testing.T) {
	svc, store, _ := newAttributionTestService(t)
	ctx := context.Background()

	resolution, err := svc.ResolveConversion(ctx, ConversionInput{
		PartnerID:   "vindstod",
		Fingerprint: "fp_unknown",
		SessionID:   "s1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolution.Attributed {
		t.Fatalf("conversion without resolvable click must not attribute")
	}
	if resolution.Outcome != constants.AttributionOutcomeUnattributed {
		t.Fatalf("outcome want unattributed got %s", resolution.Outcome)
	}

	keys, err := store.Keys(ctx, kv.UnattributedConversionPrefix)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one unattributed record, got %d", len(keys))
	}
}

func TestReattributeAfterFingerprintGainsClick(t *testing.T) {
	svc, store, _ := newAttributionTestService(t)
	ctx := context.Background()

	// 先落一条只有指纹的未归因转化
	value := decimal.NewFromInt(250)
	resolution, err := svc.ResolveConversion(ctx, ConversionInput{
		PartnerID:   "vindstod",
		Fingerprint: "fp_late",
		SessionID:   "s1",
		Value:       &value,
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolution.Outcome != constants.AttributionOutcomeUnattributed {
		t.Fatalf("expected unattributed, got %s", resolution.Outcome)
	}

	// 指纹随后补上 click_id
	if err := svc.UpsertClick(ctx, "dep_late", "vindstod", time.Time{}, ClickMetadata{}); err != nil {
		t.Fatalf("upsert click failed: %v", err)
	}
	if err := svc.UpsertFingerprint(ctx, "fp_late", "vindstod", "dep_late", "s1"); err != nil {
		t.Fatalf("upsert fingerprint failed: %v", err)
	}

	resolved, err := svc.SweepUnattributed(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("sweep resolved want 1 got %d", resolved)
	}

	var conversion ConversionRecord
	if hit, _ := store.GetJSON(ctx, kv.ConversionKey("dep_late"), &conversion); !hit {
		t.Fatalf("conversion record should exist after reattribution")
	}
	if conversion.AttributionMethod != constants.AttributionMethodFingerprint {
		t.Fatalf("method want fingerprint got %s", conversion.AttributionMethod)
	}

	keys, _ := store.Keys(ctx, kv.UnattributedConversionPrefix)
	if len(keys) != 0 {
		t.Fatalf("unattributed record should be deleted, got %v", keys)
	}
}
