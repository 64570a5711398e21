package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/logger"
	"github.com/deptrack/deptrack/internal/service"
)

func main() {
	var subject string
	var hours int
	flag.StringVar(&subject, "subject", "admin", "令牌主体（操作者标识）")
	flag.IntVar(&hours, "hours", 0, "有效期小时数；0 使用配置值")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())

	if cfg.AdminJWT.SecretKey == "" {
		fmt.Fprintln(os.Stderr, "admin_jwt.secret 未配置")
		os.Exit(1)
	}
	if hours <= 0 {
		hours = cfg.AdminJWT.ExpireHours
	}
	if hours <= 0 {
		hours = 24
	}

	token, err := service.IssueAdminToken(cfg.AdminJWT.SecretKey, subject, time.Duration(hours)*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "签发失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
