// Package app 提供分配引擎服务的应用入口
//
// ========================================
// almoner-allocation 服务对接总览
// ========================================
//
// ## 服务信息
// - 服务名: almoner-allocation
// - HTTP 端口: 8080 (管理 API), 9090 (metrics + health)
// - 数据库: almoner_allocation (PostgreSQL)
//
// ## 依赖服务
// - PostgreSQL: 数据持久化 (申请、决策、执行、合规、审计链)
// - Redis: 捐赠资金池 (余额预留/扣减)、分布式锁、任务锁
// - Kafka: 消息队列 (可选，未配置时降级为进程内处理)
//
// ## Kafka 主题
// - 消费: donation-settlements (捐赠结算入账)
// - 生产: allocation-events (分配生命周期事件), compliance-alerts (合规告警)
//
// ## 上游对接 (ONLUS 登记模块)
// 1. 机构提交资金申请后调用 POST /admin/v1/requests
//   - mode=standard 进入批量队列, mode=emergency 走即时通道
// 2. 机构登记/财务数据写入 organizations 表 (本服务只读)
//
// ## 上游对接 (捐赠结算)
// 1. 捐赠入账 -> donation-settlements
//   - 按 settlement_id 幂等入账 Redis 资金池
//
// ## 下游对接 (审核后台)
// 1. 消费 allocation-events / compliance-alerts 主题
// 2. 或轮询 /admin/v1/alerts 人工审查队列
//
// ========================================
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/cache"
	"github.com/almoner-platform/almoner-allocation/internal/client"
	"github.com/almoner-platform/almoner-allocation/internal/config"
	"github.com/almoner-platform/almoner-allocation/internal/handler"
	"github.com/almoner-platform/almoner-allocation/internal/jobs"
	"github.com/almoner-platform/almoner-allocation/internal/kafka"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/internal/router"
	"github.com/almoner-platform/almoner-allocation/internal/rules"
	"github.com/almoner-platform/almoner-allocation/internal/scheduler"
	"github.com/almoner-platform/almoner-allocation/internal/scoring"
	"github.com/almoner-platform/almoner-allocation/internal/service"
	"github.com/almoner-platform/almoner-allocation/pkg/alert"
	"github.com/almoner-platform/almoner-allocation/pkg/circuitbreaker"
	"github.com/almoner-platform/almoner-allocation/pkg/infra"
	"github.com/almoner-platform/almoner-allocation/pkg/lock"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
	"github.com/almoner-platform/almoner-allocation/pkg/migrate"
)

// App 分配引擎应用
type App struct {
	cfg *config.Config

	// 基础设施
	db          *gorm.DB
	redisClient *redis.Client
	httpServer  *http.Server // 业务 API
	opsServer   *http.Server // metrics + health
	poolMetrics *infra.PoolMetricsCollector

	// Kafka
	kafkaProducer *kafka.Producer
	kafkaConsumer *kafka.Consumer

	// 调度器
	scheduler *scheduler.Scheduler

	// 仓储层
	orgRepo      *repository.OrganizationRepository
	donorRepo    *repository.DonorRepository
	execRepo     *repository.JobExecutionRepository
	donorFunds   cache.DonorFundRedisRepository

	// 服务层
	auditSvc      *service.AuditService
	allocationSvc *service.AllocationService
	complianceSvc *service.ComplianceService

	// 运维告警
	alerter alert.Alerter

	// 上下文
	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建应用实例
func New(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run 启动应用
func (a *App) Run() error {
	// 1. 确保数据库存在
	if err := migrate.EnsureDatabase(a.cfg.Postgres.Host, a.cfg.Postgres.Port, a.cfg.Postgres.User, a.cfg.Postgres.Password, a.cfg.Postgres.Database); err != nil {
		return fmt.Errorf("failed to ensure database: %w", err)
	}

	// 2. 初始化数据库
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 3. 初始化 Redis
	if err := a.initRedis(); err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	// 4. 初始化 Kafka (可选，失败不阻止启动)
	if err := a.initKafka(); err != nil {
		logger.Warn("failed to init kafka, running without kafka", "error", err)
	}

	// 5. 初始化服务层
	a.initServices()

	// 6. 预热资金池 (从数据库镜像同步 Redis)
	a.warmupDonorFunds()

	// 7. 注册并启动定时任务
	if err := a.initScheduler(); err != nil {
		return fmt.Errorf("failed to init scheduler: %w", err)
	}

	// 8. 启动结算消费者
	if a.kafkaConsumer != nil {
		if err := a.kafkaConsumer.Start(a.ctx); err != nil {
			logger.Warn("failed to start settlement consumer", "error", err)
		}
	}

	// 9. 启动 HTTP 服务
	if err := a.startHTTP(); err != nil {
		return fmt.Errorf("failed to start http: %w", err)
	}

	return nil
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down allocation service...")

	// 关闭顺序: API -> 调度器 -> 消费者 -> 生产者 -> 数据库 -> Redis
	if err := infra.ShutdownHTTPServer(a.httpServer, 10*time.Second); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := infra.ShutdownHTTPServer(a.opsServer, 5*time.Second); err != nil {
		logger.Error("ops server shutdown error", "error", err)
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	a.cancel()

	if a.kafkaConsumer != nil {
		if err := a.kafkaConsumer.Stop(); err != nil {
			logger.Warn("close kafka consumer failed", "error", err)
		}
	}
	if a.kafkaProducer != nil {
		if err := a.kafkaProducer.Close(); err != nil {
			logger.Warn("close kafka producer failed", "error", err)
		}
	}

	if a.poolMetrics != nil {
		a.poolMetrics.Stop()
	}

	if a.db != nil {
		sqlDB, _ := a.db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}

	if a.redisClient != nil {
		a.redisClient.Close()
	}

	logger.Info("allocation service stopped")
	return nil
}

// initDB 初始化数据库
func (a *App) initDB() error {
	db, err := infra.NewDatabase(&a.cfg.Postgres)
	if err != nil {
		return err
	}
	a.db = db

	if err := AutoMigrate(a.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database migrated")

	return nil
}

// initRedis 初始化 Redis
func (a *App) initRedis() error {
	a.redisClient = infra.NewRedisClient(&a.cfg.Redis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return a.redisClient.Ping(ctx).Err()
}

// initKafka 初始化 Kafka
func (a *App) initKafka() error {
	if !a.cfg.Kafka.Enabled || len(a.cfg.Kafka.Brokers) == 0 {
		logger.Info("kafka disabled")
		return nil
	}

	producer, err := kafka.NewProducer(&a.cfg.Kafka)
	if err != nil {
		return err
	}
	a.kafkaProducer = producer

	logger.Info("kafka producer initialized", "brokers", a.cfg.Kafka.Brokers)
	return nil
}

// initServices 初始化服务层
func (a *App) initServices() {
	// 仓储层
	a.orgRepo = repository.NewOrganizationRepository(a.db)
	a.donorRepo = repository.NewDonorRepository(a.db)
	a.execRepo = repository.NewJobExecutionRepository(a.db)
	requestRepo := repository.NewAllocationRequestRepository(a.db)
	decisionRepo := repository.NewAllocationDecisionRepository(a.db)
	resultRepo := repository.NewAllocationResultRepository(a.db)
	perfRepo := repository.NewPerformanceRepository(a.db)
	snapshotRepo := repository.NewComplianceSnapshotRepository(a.db)
	assessmentRepo := repository.NewComplianceAssessmentRepository(a.db)
	alertRepo := repository.NewComplianceAlertRepository(a.db)
	auditRepo := repository.NewAuditEntryRepository(a.db)

	// 缓存与执行器
	a.donorFunds = cache.NewDonorFundRedisRepository(a.redisClient)
	executor := client.NewDonationExecutor(a.donorFunds, a.donorRepo, a.orgRepo, circuitbreaker.DefaultConfig())

	// 分配执行的按机构串行锁
	locker := lock.NewRedisLocker(a.redisClient, "alloc", 5*time.Minute)

	// 服务层
	a.auditSvc = service.NewAuditService(auditRepo)
	scorer := scoring.NewScorer(&a.cfg.Allocation)
	gate := rules.NewGate(a.orgRepo, assessmentRepo, a.cfg.Compliance.GetEligibilityFloor())

	a.allocationSvc = service.NewAllocationService(
		&a.cfg.Allocation,
		requestRepo,
		decisionRepo,
		resultRepo,
		a.orgRepo,
		a.donorRepo,
		perfRepo,
		a.donorFunds,
		executor,
		a.auditSvc,
		scorer,
		gate,
		locker,
	)

	a.complianceSvc = service.NewComplianceService(
		&a.cfg.Compliance,
		a.orgRepo,
		requestRepo,
		assessmentRepo,
		snapshotRepo,
		alertRepo,
		a.auditSvc,
	)

	// 事件/告警经 Kafka 外发
	if a.kafkaProducer != nil {
		a.allocationSvc.SetOnEvent(a.kafkaProducer.AllocationEventCallback())
		a.complianceSvc.SetOnAlert(a.kafkaProducer.ComplianceAlertCallback())

		consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers: a.cfg.Kafka.Brokers,
			GroupID: a.cfg.Kafka.GroupID,
			Topic:   a.cfg.Kafka.Topics.DonationSettlements,
		}, a.donorFunds, a.donorRepo)
		if err != nil {
			logger.Warn("failed to create settlement consumer", "error", err)
		} else {
			a.kafkaConsumer = consumer
		}
	}

	// 运维 webhook 告警
	a.alerter = alert.NewAlerter(&a.cfg.Alert)
}

// warmupDonorFunds 启动时从数据库镜像预热 Redis 资金池
// 只在启动期执行: 同步会清零在途预留
func (a *App) warmupDonorFunds() {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()

	donors, err := a.donorRepo.ListActive(ctx)
	if err != nil {
		logger.Error("warmup: list active donors failed", "error", err)
		return
	}

	synced := 0
	for _, donor := range donors {
		if err := a.donorFunds.SyncFundFromDB(ctx, donor); err != nil {
			logger.Error("warmup: sync donor fund failed", "donor_id", donor.DonorID, "error", err)
			continue
		}
		synced++
	}

	logger.Info("donor fund pool warmed up", "donors", len(donors), "synced", synced)
}

// initScheduler 注册定时任务并启动调度器
func (a *App) initScheduler() error {
	// 调度器即便停用也要创建: 任务注册表支撑手工触发与状态查询
	a.scheduler = scheduler.NewScheduler(&scheduler.SchedulerConfig{
		MaxConcurrentJobs: a.cfg.Scheduler.MaxConcurrentJobs,
		RedisClient:       a.redisClient,
	}, a.execRepo)

	auditVerifyJob := jobs.NewAuditVerifyJob(a.auditSvc)
	auditVerifyJob.SetAlertFunc(func(ctx context.Context, chainAlert *jobs.ChainVerifyAlert) error {
		a.alerter.SendAsync(ctx, &alert.Alert{
			Title: "audit chain verification failed",
			Message: fmt.Sprintf("chain status %s in [%d, %d]",
				chainAlert.Status, chainAlert.StartSequence, chainAlert.EndSequence),
			Severity: alert.SeverityCritical,
			Tags: map[string]string{
				"status":     chainAlert.Status,
				"violations": fmt.Sprintf("%d", len(chainAlert.IntegrityViolations)),
				"breaks":     fmt.Sprintf("%d", len(chainAlert.ChainBreaks)),
			},
			Timestamp: time.Now(),
		})
		return nil
	})

	registrations := []struct {
		job scheduler.Job
		cfg config.JobConfig
	}{
		{jobs.NewBatchAllocationJob(a.allocationSvc), a.cfg.Jobs.BatchAllocation},
		{jobs.NewComplianceSweepJob(a.complianceSvc), a.cfg.Jobs.ComplianceSweep},
		{jobs.NewAssessmentRefreshJob(a.complianceSvc, assessmentRefreshLimit), a.cfg.Jobs.AssessmentRefresh},
		{auditVerifyJob, a.cfg.Jobs.AuditVerify},
		{jobs.NewStaleExecutionJob(a.allocationSvc, time.Duration(a.cfg.Allocation.StaleExecutionMinutes)*time.Minute, a.cfg.Allocation.BatchSize), a.cfg.Jobs.StaleExecution},
	}

	for _, reg := range registrations {
		err := a.scheduler.RegisterJob(reg.job, scheduler.JobConfig{
			Cron:    reg.cfg.Cron,
			Enabled: reg.cfg.Enabled,
		})
		if err != nil {
			return fmt.Errorf("register job %s: %w", reg.job.Name(), err)
		}
	}

	if !a.cfg.Scheduler.Enabled {
		logger.Info("scheduler disabled, jobs available for manual trigger only")
		return nil
	}

	a.scheduler.Start()
	logger.Info("scheduler started", "jobs", len(registrations))
	return nil
}

// assessmentRefreshLimit 单次刷新到期评估的上限
const assessmentRefreshLimit = 100

// startHTTP 启动业务 API 与运维端口
func (a *App) startHTTP() error {
	if a.cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	router.SetupRouter(engine, &router.Handlers{
		Allocation: handler.NewAllocationHandler(a.allocationSvc),
		Compliance: handler.NewComplianceHandler(a.complianceSvc),
		Audit:      handler.NewAuditHandler(a.auditSvc),
		Jobs:       handler.NewJobsHandler(a.scheduler, a.execRepo),
		Registry:   handler.NewRegistryHandler(a.orgRepo, a.donorRepo, a.donorFunds),
	})

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler: engine,
	}
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", "error", err)
		}
	}()

	// metrics + health 独立端口
	a.opsServer = infra.NewHTTPServer(&infra.HTTPServerConfig{
		Port:          a.cfg.Service.OpsPort,
		DB:            a.db,
		Redis:         a.redisClient,
		EnableMetrics: true,
		EnableHealth:  true,
	})
	infra.StartHTTPServer(a.opsServer)

	a.poolMetrics = infra.NewPoolMetricsCollector(&infra.PoolMetricsConfig{
		DB:     a.db,
		DBName: a.cfg.Postgres.Database,
		Redis:  a.redisClient,
	})
	a.poolMetrics.Start()

	logger.Info("http servers started",
		"http_port", a.cfg.Service.HTTPPort,
		"ops_port", a.cfg.Service.OpsPort)
	return nil
}
