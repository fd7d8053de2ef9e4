package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sales_ledger_v1/internal/config"
	"sales_ledger_v1/internal/controller"
	"sales_ledger_v1/internal/logger"
	"sales_ledger_v1/internal/middleware"
	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/normalize"
	"sales_ledger_v1/internal/platform"
	"sales_ledger_v1/internal/repository"
	"sales_ledger_v1/internal/router"
	"sales_ledger_v1/internal/service"
	"sales_ledger_v1/internal/task"
	"sales_ledger_v1/pkg/database"
	"sales_ledger_v1/pkg/lock"
)

func main() {
	// 1. 配置与日志
	cfg, err := config.Load()
	if err != nil {
		panic("加载配置失败: " + err.Error())
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer func() { _ = log.Sync() }()

	// 2. 初始化数据库
	db, partitionTask := initDatabase(cfg, log)

	// 3. 初始化依赖
	deps := initDependencies(cfg, db, log)

	// 4. 启动后台任务
	deps.Tasks.Start()
	if partitionTask != nil {
		partitionTask.Start()
	}

	// 5. 初始化路由
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.GinLogger(log), gin.Recovery())
	router.InitRoutes(r, deps.Controllers)

	// 6. 启动服务
	startServer(cfg, r, log, func() {
		deps.Tasks.Stop()
		if partitionTask != nil {
			partitionTask.Stop()
		}
		if deps.Redis != nil {
			_ = deps.Redis.Close()
		}
	})
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Repos       *Repositories
	Services    *Services
	Tasks       *task.TaskManager
	Controllers *router.Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Credential repository.CredentialRepository
	Sale       repository.SaleRepository
	SyncRun    repository.SyncRunRepository
}

// Services 服务集合
type Services struct {
	Credential *service.CredentialService
	Sync       *service.SyncService
	Sale       *service.SaleService
	Analytics  *service.AnalyticsService
}

// ==================== 初始化函数 ====================

// initDatabase 连接数据库并建表
// postgres 且开启分区时 sync_runs 由分区 SQL 创建，其余表 AutoMigrate
func initDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, *database.PartitionTask) {
	db, err := database.Open(database.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger.NewGormLogger(log, cfg.Database.LogLevel, cfg.Database.SlowThreshold))
	if err != nil {
		log.Fatal("[DB] 数据库连接失败", zap.Error(err))
	}

	if cfg.Database.Driver != database.DriverPostgres || !cfg.Partition.Enabled {
		if err := db.AutoMigrate(&model.Credential{}, &model.Sale{}, &model.SyncRun{}); err != nil {
			log.Fatal("[DB] 自动建表失败", zap.Error(err))
		}
		log.Info("[DB] 数据库初始化完成", zap.String("driver", cfg.Database.Driver))
		return db, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	initializer, err := database.NewInitializer(db, database.InitOptions{
		Models:       []interface{}{&model.Credential{}, &model.Sale{}},
		FutureMonths: cfg.Partition.FutureMonths,
		Retention:    map[string]int{model.SyncRun{}.TableName(): cfg.Partition.RetentionMonths},
		Logger:       log,
	})
	if err != nil {
		log.Fatal("[DB] 分区配置加载失败", zap.Error(err))
	}
	if err := initializer.Initialize(ctx); err != nil {
		log.Fatal("[DB] 数据库初始化失败", zap.Error(err))
	}

	partitionTask := database.NewPartitionTask(initializer.Manager(),
		database.WithFutureMonths(cfg.Partition.FutureMonths),
		database.WithInterval(cfg.Partition.Interval),
		database.WithLogger(log),
	)
	return db, partitionTask
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB, log *zap.Logger) *Dependencies {
	deps := &Dependencies{DB: db}

	// -------- Repo 层 --------
	deps.Repos = &Repositories{
		Credential: repository.NewCredentialRepository(db),
		Sale:       repository.NewSaleRepository(db),
		SyncRun:    repository.NewSyncRunRepository(db),
	}

	// -------- 平台接入 --------
	registry := platform.NewRegistry(platformOptions(cfg))
	credSvc := service.NewCredentialService(deps.Repos.Credential, registry, log)

	pager := platform.NewPager(credSvc, log)
	pager.PageSize = cfg.Sync.PageSize
	pager.MaxPages = cfg.Sync.MaxPages
	pager.PageTimeout = cfg.Sync.PageTimeout
	pager.MaxAttempts = cfg.Sync.MaxAttempts
	pager.InitialBackoff = cfg.Sync.InitialBackoff
	pager.MaxBackoff = cfg.Sync.MaxBackoff

	// -------- 入账锁 --------
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Enabled {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewRedisLocker(deps.Redis, "sales_ledger:", cfg.Redis.LockTTL, log)
		log.Info("[Main] 使用 Redis 分布式写锁", zap.String("addr", cfg.Redis.Addr))
	}
	ledger := service.NewLedgerWriter(deps.Repos.Sale, locker, log)

	// -------- 业务服务 --------
	syncSvc := service.NewSyncService(
		credSvc, registry, pager, normalize.New(log), ledger, deps.Repos.SyncRun,
		service.SyncOptions{
			Concurrency:     cfg.Sync.Concurrency,
			DefaultDaysBack: cfg.Sync.DefaultDaysBack,
			MaxDaysBack:     cfg.Sync.MaxDaysBack,
			RefreshSkew:     cfg.Token.RefreshSkew,
		}, log)
	analyticsSvc := service.NewAnalyticsService(deps.Repos.Sale, service.AnalyticsOptions{
		HighValueThreshold:  cfg.Analytics.HighValueThreshold,
		NewCustomerLookback: cfg.Analytics.NewCustomerLookback,
		TopProductsLimit:    cfg.Analytics.TopProductsLimit,
		Location:            cfg.Analytics.Location(),
		ExcludeCancelled:    cfg.Analytics.ExcludeCancelled,
	}, log)
	deps.Services = &Services{
		Credential: credSvc,
		Sync:       syncSvc,
		Sale:       service.NewSaleService(deps.Repos.Sale, cfg.Analytics.Location()),
		Analytics:  analyticsSvc,
	}

	// -------- 后台任务 --------
	deps.Tasks = task.NewTaskManager(&task.TaskManagerDeps{
		Users:     deps.Repos.Credential,
		Syncer:    deps.Services.Sync,
		Refresher: credSvc,
	}, &task.TaskManagerConfig{
		SyncEnabled:      cfg.Sync.Enabled,
		SyncCron:         cfg.Sync.Cron,
		SyncDaysBack:     cfg.Sync.DefaultDaysBack,
		UserConcurrency:  cfg.Sync.UserConcurrency,
		RunTimeout:       cfg.Sync.RunTimeout,
		TokenEnabled:     cfg.Token.Enabled,
		TokenCron:        cfg.Token.Cron,
		RefreshAhead:     cfg.Token.RefreshAhead,
		TokenConcurrency: cfg.Token.Concurrency,
	}, log)

	// -------- Controller 层 --------
	middleware.SetJWTConfig(&middleware.JWTConfig{
		SecretKey:      cfg.JWT.Secret,
		AccessTokenTTL: cfg.JWT.AccessTTL,
		Issuer:         cfg.JWT.Issuer,
	})
	deps.Controllers = &router.Controllers{
		Sync:         controller.NewSyncController(deps.Tasks, deps.Services.Sync, log),
		Sales:        controller.NewSalesController(deps.Services.Sale),
		Analytics:    controller.NewAnalyticsController(deps.Services.Analytics),
		Credential:   controller.NewCredentialController(credSvc),
		SyncCooldown: cfg.Sync.ManualCooldown,
		Limiter:      middleware.GetLimiter(),
		TaskStatus:   deps.Tasks.Status,
	}

	return deps
}

// platformOptions 配置转为平台接入参数
func platformOptions(cfg *config.Config) map[string]platform.Options {
	out := make(map[string]platform.Options, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		out[name] = platform.Options{
			BaseURL:           p.BaseURL,
			TokenURL:          p.TokenURL,
			ClientID:          p.ClientID,
			ClientSecret:      p.ClientSecret,
			RequestsPerSecond: p.RequestsPerSecond,
			Burst:             p.Burst,
			Timeout:           cfg.Sync.PageTimeout,
		}
	}
	return out
}

// ==================== 服务启动 ====================

// startServer 启动服务，收到退出信号后先停后台任务再关闭 HTTP
func startServer(cfg *config.Config, r *gin.Engine, log *zap.Logger, cleanup func()) {
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: r,
	}

	go func() {
		log.Info("[Main] 服务启动", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("[Main] 服务启动失败", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] 正在关闭服务...")
	cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("[Main] 服务强制关闭", zap.Error(err))
	}

	log.Info("[Main] 服务已退出")
}
