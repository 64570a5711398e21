package main

import (
	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/models"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 示例合作伙伴配置
	partners := []models.PartnerConfig{
		{
			PartnerID:        "vindstod",
			DomainWhitelist:  models.StringList{"vindstod.dk", "*.vindstod.dk"},
			RateLimitPerHour: 1000,
			Status:           models.PartnerStatusActive,
		},
		{
			PartnerID:        "demo",
			DomainWhitelist:  models.StringList{},
			RateLimitPerHour: 100,
			Status:           models.PartnerStatusActive,
		},
	}

	for _, partner := range partners {
		var existing models.PartnerConfig
		if err := models.DB.Where("partner_id = ?", partner.PartnerID).First(&existing).Error; err != nil {
			// 不存在则创建
			if err := models.DB.Create(&partner).Error; err != nil {
				stdLog.Printf("Failed to create partner %s: %v", partner.PartnerID, err)
			} else {
				stdLog.Printf("Created partner: %s", partner.PartnerID)
			}
		} else {
			stdLog.Printf("Partner already exists: %s", partner.PartnerID)
		}
	}

	stdLog.Printf("Seed finished")
}
