// Package provider 依赖注入容器
package provider

import (
	"time"

	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/models"
	"github.com/deptrack/deptrack/internal/queue"
	"github.com/deptrack/deptrack/internal/ratelimit"
	"github.com/deptrack/deptrack/internal/repository"
	"github.com/deptrack/deptrack/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	Store       kv.Store
	QueueClient *queue.Client

	// Repositories
	PartnerRepo repository.PartnerConfigRepository

	// Services
	PartnerService     *service.PartnerService
	Limiter            *ratelimit.Limiter
	Metrics            *service.MetricsRecorder
	AttributionService *service.AttributionService
	IngestService      *service.IngestService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	c := &Container{Config: cfg}

	// KV 存储：redis 未启用时退化为进程内存储（单实例部署/本地开发）
	if cfg.Redis.Enabled {
		c.Store = kv.NewRedisStore(&cfg.Redis)
	} else {
		logger.Warnw("provider_redis_disabled_using_memory_store")
		c.Store = kv.NewMemoryStore()
	}

	// 队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
	} else {
		c.QueueClient = queueClient
	}

	c.initRepositories()
	c.initServices()
	return c
}

func (c *Container) initRepositories() {
	c.PartnerRepo = repository.NewPartnerConfigRepository(models.DB)
}

func (c *Container) initServices() {
	tracking := c.Config.Tracking

	c.PartnerService = service.NewPartnerService(
		c.PartnerRepo,
		c.Store,
		time.Duration(tracking.PartnerCacheSeconds)*time.Second,
	)
	c.Limiter = ratelimit.NewLimiter(c.Store, tracking.DefaultRateLimitPerHour)
	c.Metrics = service.NewMetricsRecorder(c.Store, days(tracking.MetricsTTLDays))

	c.AttributionService = service.NewAttributionService(c.Store, c.Metrics, c.QueueClient, service.AttributionOptions{
		ClickIDPrefix:     tracking.ClickIDPrefix,
		ClickTTL:          days(tracking.ClickTTLDays),
		AttributionWindow: days(tracking.AttributionWindowDays),
		UnattributedTTL:   days(tracking.UnattributedTTLDays),
		ReattributeDelay:  time.Duration(tracking.ReattributeDelayMinutes) * time.Minute,
	})
	c.IngestService = service.NewIngestService(
		c.Store,
		c.PartnerService,
		c.Limiter,
		c.AttributionService,
		c.Metrics,
		service.IngestOptions{EventTTL: days(tracking.EventTTLDays)},
	)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
