package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/provider"
	"github.com/deptrack/deptrack/internal/queue"
	"github.com/deptrack/deptrack/internal/service"

	"github.com/hibiken/asynq"
)

func newConsumerFixture(t *testing.T) (*Consumer, *kv.MemoryStore, *service.AttributionService) {
	t.Helper()
	store := kv.NewMemoryStore()
	attribution := service.NewAttributionService(store, nil, nil, service.AttributionOptions{ClickIDPrefix: "dep_"})
	consumer := NewConsumer(&provider.Container{AttributionService: attribution})
	return consumer, store, attribution
}

func reattributeTask(t *testing.T, key string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.ReattributePayload{Key: key})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return asynq.NewTask(queue.TaskReattributeConversion, payload)
}

func TestHandleReattributeConversion(t *testing.T) {
	consumer, store, attribution := newConsumerFixture(t)
	ctx := context.Background()

	// 未归因转化，指纹随后补上 click_id
	resolution, err := attribution.ResolveConversion(ctx, service.ConversionInput{
		PartnerID:   "vindstod",
		Fingerprint: "fp_task",
		SessionID:   "s1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolution.Attributed {
		t.Fatalf("setup expects an unattributed conversion")
	}
	keys, err := store.Keys(ctx, kv.UnattributedConversionPrefix)
	if err != nil || len(keys) != 1 {
		t.Fatalf("expected one unattributed key, got %v err %v", keys, err)
	}

	if err := attribution.UpsertClick(ctx, "dep_task", "vindstod", time.Time{}, service.ClickMetadata{}); err != nil {
		t.Fatalf("upsert click failed: %v", err)
	}
	if err := attribution.UpsertFingerprint(ctx, "fp_task", "vindstod", "dep_task", "s1"); err != nil {
		t.Fatalf("upsert fingerprint failed: %v", err)
	}

	if err := consumer.handleReattributeConversion(ctx, reattributeTask(t, keys[0])); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	var conversion service.ConversionRecord
	if hit, _ := store.GetJSON(ctx, kv.ConversionKey("dep_task"), &conversion); !hit {
		t.Fatalf("conversion should exist after reattribution")
	}
	remaining, _ := store.Keys(ctx, kv.UnattributedConversionPrefix)
	if len(remaining) != 0 {
		t.Fatalf("unattributed key should be gone, got %v", remaining)
	}
}

func TestHandleReattributeConversionIgnoresMissingKey(t *testing.T) {
	consumer, _, _ := newConsumerFixture(t)

	if err := consumer.handleReattributeConversion(context.Background(), reattributeTask(t, "unattributed_conversion:gone")); err != nil {
		t.Fatalf("missing record must not fail the task: %v", err)
	}
	if err := consumer.handleReattributeConversion(context.Background(), reattributeTask(t, "")); err != nil {
		t.Fatalf("empty key must not fail the task: %v", err)
	}
}
