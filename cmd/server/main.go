package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/dpo2u/lgpdkit/config"
	"github.com/dpo2u/lgpdkit/internal/eventbus"
	"github.com/dpo2u/lgpdkit/internal/handler"
	"github.com/dpo2u/lgpdkit/internal/pkg/database"
	"github.com/dpo2u/lgpdkit/internal/pkg/llm"
	"github.com/dpo2u/lgpdkit/internal/pkg/runcache"
	"github.com/dpo2u/lgpdkit/internal/repository"
	"github.com/dpo2u/lgpdkit/internal/router"
	"github.com/dpo2u/lgpdkit/internal/service"
	"github.com/dpo2u/lgpdkit/internal/service/orchestrator"
	"github.com/dpo2u/lgpdkit/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	port := flag.String("port", "", "监听端口，覆盖配置")
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()
	if *port != "" {
		cfg.Server.Port = *port
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	runRepo := repository.NewRunRepository(db)

	// 步骤完成事件写入运行历史
	bus := eventbus.NewStepEventBus()
	unsubscribe := subscriber.NewStepEventSubscriber(runRepo).Register(bus)
	defer unsubscribe()

	client, err := llm.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create generation backend: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := llm.Preflight(ctx, client); err != nil {
		// 服务仍可启动，运行时步骤会使用兜底内容
		klog.Warningf("后端预检失败: %v", err)
	}
	cancel()

	complianceService := service.NewComplianceService(cfg, client, runcache.New(cfg.Output.Dir), runRepo, bus)

	// 初始化全局任务编排器
	// 默认单个 worker，保证缓存文件只有一个写入者
	if err := orchestrator.InitGlobalOrchestrator(cfg.Queue.Workers, complianceService); err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}
	complianceService.SetOrchestrator(orchestrator.GetGlobalOrchestrator())
	defer orchestrator.ShutdownGlobalOrchestrator()

	// 启动时清理卡住的运行
	cleanupStuckRuns(complianceService)

	r := router.Setup(cfg,
		handler.NewHealthHandler(complianceService),
		handler.NewRunHandler(complianceService),
		handler.NewCacheHandler(complianceService),
	)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// cleanupStuckRuns 清理启动前卡住的运行
func cleanupStuckRuns(s *service.ComplianceService) {
	timeout := 10 * time.Minute

	affected, err := s.CleanupStuckRuns(timeout)
	if err != nil {
		klog.V(6).Infof("清理卡住运行失败: %v", err)
		return
	}

	if affected > 0 {
		klog.V(6).Infof("启动时清理了 %d 个卡住的运行", affected)
	}
}
