package worker

import (
	"context"
	"errors"
	"time"

	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	reattributeSweepInterval = 10 * time.Minute
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.AttributionService != nil {
		go s.runReattributeSweepLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runReattributeSweepLoop 周期扫描未归因转化
// 延迟任务丢失（队列清空、停机）时的兜底路径
func (s *Service) runReattributeSweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.AttributionService == nil {
		return
	}
	runOnce := func() {
		resolved, err := s.consumer.AttributionService.SweepUnattributed(ctx)
		if err != nil {
			logger.Warnw("worker_reattribute_sweep_failed", "error", err)
			return
		}
		if resolved > 0 {
			logger.Infow("worker_reattribute_sweep_resolved", "count", resolved)
		}
	}
	runOnce()

	ticker := time.NewTicker(reattributeSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
