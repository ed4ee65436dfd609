package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/config"
	grpcserver "github.com/Paradox-Developer-Foundation/PackageManager/internal/grpc"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/handler"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/logger"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/middleware"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/repository"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/service"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/storage"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/version"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/database"
	"go.uber.org/zap"
)

var (
	configFile  = flag.String("config", "configs/registry.yaml", "配置文件路径")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	// 1. 加载配置
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.Init(&cfg.Log)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log.Info("Registry starting...",
		zap.String("version", version.Get().String()),
		zap.String("mode", cfg.Server.Mode),
	)

	// 3. 初始化数据库
	db, err := database.Init(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to init database", zap.Error(err))
	}

	// 自动迁移数据库表结构
	if err := database.AutoMigrate(db, log); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database migrated successfully")

	// 4. 初始化包文件存储
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	blobs, err := storage.New(initCtx, &cfg.Storage)
	initCancel()
	if err != nil {
		log.Fatal("Failed to init storage", zap.Error(err))
	}
	log.Info("Storage initialized", zap.String("type", cfg.Storage.Type))

	// 5. 初始化Repository层
	packageRepo := repository.NewPackageRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// 6. 初始化Service层
	packageService := service.NewPackageService(packageRepo, blobs, log)
	coordinator := service.NewIngestionCoordinator(
		service.NewPackageValidator(),
		service.NewDependencyResolver(packageRepo, log),
		service.NewContentHasher(),
		packageRepo,
		packageRepo,
		blobs,
		cfg.Storage.ArchiveExt,
		log,
	)

	var reconciler *service.BlobReconciler
	if cfg.Reconcile.Enabled {
		reconciler = service.NewBlobReconciler(packageRepo, blobs, log)
		if err := reconciler.Start(cfg.Reconcile.Schedule); err != nil {
			log.Fatal("Failed to start reconciler", zap.Error(err))
		}
	}

	// 7. 初始化Handler层与路由
	auditor := middleware.NewAuditor(auditRepo, log)
	router := handler.NewRouter(&cfg.Server, handler.RouterDeps{
		Package: handler.NewPackageHandler(packageService, coordinator, log),
		Health:  handler.NewHealthHandler(db, log),
		Auditor: auditor,
		Logger:  log,
	})

	// 8. 启动HTTP服务器
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 9. 启动gRPC健康检查服务
	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Enabled {
		grpcListener, err := net.Listen("tcp", cfg.GRPC.Address())
		if err != nil {
			log.Fatal("Failed to listen gRPC", zap.Error(err))
		}

		grpcSrv = grpcserver.NewServer(log)
		go func() {
			if err := grpcSrv.Serve(grpcListener); err != nil {
				log.Fatal("gRPC server failed", zap.Error(err))
			}
		}()
		grpcSrv.SetServing()
	}

	// 10. 等待信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Registry shutting down...")

	// 11. 优雅关闭
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 关闭HTTP服务器，等待进行中的上传与下载完成
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}

	if reconciler != nil {
		reconciler.Stop()
	}

	// 审计日志异步写入，关闭数据库前等待完成
	auditor.Wait()

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		log.Error("Database close failed", zap.Error(err))
	}

	log.Info("Registry stopped")
}
