// Package worker 异步任务消费
package worker

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/provider"
	"github.com/deptrack/deptrack/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskReattributeConversion, c.handleReattributeConversion)
}

func (c *Consumer) handleReattributeConversion(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_reattribute_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReattributePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_reattribute_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.Key) == "" {
		logger.Debugw("worker_reattribute_skip_empty_key")
		return nil
	}

	resolved, err := c.AttributionService.ReattributeByKey(ctx, payload.Key)
	if err != nil {
		logger.Warnw("worker_reattribute_failed", "key", payload.Key, "error", err)
		return err
	}
	if resolved {
		logger.Infow("worker_reattribute_resolved", "key", payload.Key)
	}
	return nil
}
