package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"washflow/config"
	"washflow/cron"
	"washflow/database"
	directoryRepo "washflow/database/repository/directory"
	disputeRepo "washflow/database/repository/dispute"
	escrowRepo "washflow/database/repository/escrow"
	laneRepo "washflow/database/repository/lane"
	"washflow/database/repository/memstore"
	orderRepo "washflow/database/repository/order"
	"washflow/database/seed"
	"washflow/handlers"
	"washflow/middleware"
	"washflow/routes"
	"washflow/services/directory"
	"washflow/services/dispute"
	"washflow/services/escrow"
	"washflow/services/notification"
	"washflow/services/order"
	"washflow/services/pricing"
	"washflow/services/qa"
	"washflow/services/rewards"
	"washflow/services/slots"
	"washflow/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

type stores struct {
	lanes    laneRepo.LaneRepository
	orders   orderRepo.OrderRepository
	disputes disputeRepo.DisputeRepository
	ledger   escrowRepo.LedgerStore
	source   directoryRepo.Source
	points   rewards.PointsStore
}

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, checks := openStores(ctx, cfg, logger)
	clock := utils.NewSystemClock()

	var locker utils.Locker = utils.NewLocalLocker()
	if config.UsesRedis() {
		lockClient := utils.GetLockClient()
		locker = utils.NewRedisLocker(lockClient)
		checks["redis"] = func(ctx context.Context) error { return lockClient.Ping(ctx).Err() }
	}

	dir := directory.NewDirectory(st.source)
	retry := utils.DefaultRetryPolicy()
	if cfg.DependencyMaxAttempts > 0 {
		retry.Attempts = cfg.DependencyMaxAttempts
	}

	allocator := slots.NewSlotAllocator(st.lanes, locker, clock, logger)
	allocator.Directory = dir

	ledger := escrow.NewMockLedger(st.ledger, clock, logger)
	ledger.Timeout = cfg.EscrowTimeout()
	ledger.Latency = cfg.EscrowLatency()

	orderSvc := order.NewOrderService(st.orders, allocator, ledger, pricing.NewPricingService(allocator, logger), dir, locker, clock, logger)
	policy := order.DefaultPolicy()
	policy.QAWindow = cfg.QAWindow()
	policy.PenaltyRate = cfg.CancellationPenaltyRate
	orderSvc.Policy = policy
	orderSvc.Retry = retry

	disputeSvc := dispute.NewDisputeService(st.disputes, orderSvc, ledger, clock, logger)
	disputeSvc.Windows = dispute.Windows{Response: cfg.DisputeResponseWindow(), Resolution: cfg.DisputeResolutionWindow()}
	disputeSvc.Retry = retry

	var qaSvc *qa.Service
	var stopWorker func()
	if config.UsesRedis() {
		client := asynq.NewClient(cron.RedisOpt())
		defer client.Close()

		orderSvc.Notifier = notification.NewQueueNotifier(client, logger)
		orderSvc.Alerts = notification.NewQueueAlerter(client)
		orderSvc.Rewards = rewards.NewQueueAwarder(client)
		orderSvc.Settlements = order.NewQueueSettlements(client)
		disputeSvc.Notifier = orderSvc.Notifier
		disputeSvc.Alerts = orderSvc.Alerts

		scheduler := qa.NewAsynqScheduler(client, logger)
		orderSvc.Scheduler = scheduler
		qaSvc = qa.NewService(st.orders, orderSvc, scheduler, clock, logger)

		worker := &cron.Worker{
			QA:       qaSvc,
			Orders:   orderSvc,
			Disputes: disputeSvc,
			Delivery: notification.NewLogNotifier(logger),
			Alerts:   notification.NewLogAlerter(logger),
			Points:   st.points,
			Logger:   logger,
		}
		stopWorker = worker.Start()
	} else {
		// No queue: timers, settlement retries and the SLA check run in-process.
		orderSvc.Rewards = rewards.NewDirectAwarder(st.points, logger)
		orderSvc.Settlements = order.NewBackgroundSettler(orderSvc, logger)
		local := qa.NewLocalScheduler(clock, func(ctx context.Context, orderID string) error {
			return qaSvc.HandleAutoApprove(ctx, orderID)
		}, logger)
		orderSvc.Scheduler = local
		qaSvc = qa.NewService(st.orders, orderSvc, local, clock, logger)
		stopWorker = local.Stop

		go qaSvc.RunSweeper(ctx, cfg.SweepInterval())
		go runSLACheck(ctx, disputeSvc, 15*time.Minute, logger)
	}

	// Deadlines and refunds owed from before a restart.
	if rep, err := qaSvc.Recover(ctx); err != nil {
		logger.Warn("startup recovery incomplete", zap.Error(err))
	} else {
		logger.Info("startup recovery",
			zap.Int("approved", rep.Approved),
			zap.Int("scheduled", rep.Scheduled),
			zap.Int("captured", rep.Captured),
			zap.Int("settled", rep.Settled),
			zap.Int("discarded", rep.Discarded),
			zap.Int("failed", rep.Failed))
	}

	utils.StartHealthMonitor(ctx, checks, 30*time.Second)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin, logger))

	routes.RegisterRoutes(router, &handlers.HandlerBundle{
		Lanes:    handlers.NewLaneHandler(allocator),
		Orders:   handlers.NewOrderHandler(orderSvc),
		Disputes: handlers.NewDisputeHandler(disputeSvc),
		Escrow:   handlers.NewEscrowHandler(ledger),
	})

	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	stop()
	stopWorker()
	database.CloseDB(shutdownCtx)

	logger.Sugar().Info("main: server stopped gracefully")
}

// openStores wires the configured backends and returns the health checks for them.
func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, map[string]utils.HealthCheck) {
	checks := map[string]utils.HealthCheck{}
	var st stores

	if cfg.StoreBackend == "memory" {
		dir, lanes := memstore.NewDirectory(), memstore.NewLaneStore()
		if err := seed.LoadMemory(ctx, dir, lanes, seed.Generate(rand.New(rand.NewSource(1)), 10, 20)); err != nil {
			logger.Fatal("failed to seed memory stores", zap.Error(err))
		}
		st = stores{
			lanes:    lanes,
			orders:   memstore.NewOrderStore(),
			disputes: memstore.NewDisputeStore(),
			ledger:   memstore.NewLedgerStore(),
			source:   dir,
			points:   rewards.NewMemoryPointsStore(),
		}
		logger.Warn("running with in-memory stores; state is lost on restart")
	} else {
		database.InitDB()
		db := database.Database()
		points := rewards.NewMongoPointsStore(db)
		st = stores{
			lanes:    laneRepo.NewMongoLaneRepo(db),
			orders:   orderRepo.NewMongoOrderRepo(db),
			disputes: disputeRepo.NewMongoDisputeRepo(db),
			ledger:   escrowRepo.NewMongoLedgerStore(db),
			source:   directoryRepo.NewMongoSource(db),
			points:   points,
		}
		for _, s := range []interface{}{st.lanes, st.orders, st.disputes, st.ledger, points} {
			if ix, ok := s.(indexer); ok {
				if err := ix.EnsureIndexes(ctx); err != nil {
					logger.Fatal("failed to ensure indexes", zap.Error(err))
				}
			}
		}
		checks["mongo"] = database.PingMongo
	}

	switch cfg.LedgerBackend {
	case "postgres":
		pool, err := database.OpenPostgres(ctx)
		if err != nil {
			logger.Fatal("failed to open postgres ledger", zap.Error(err))
		}
		st.ledger = escrowRepo.NewPostgresLedgerStore(pool)
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	case "memory":
		st.ledger = memstore.NewLedgerStore()
	}
	return st, checks
}

func runSLACheck(ctx context.Context, svc dispute.DisputeService, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.CheckSLA(ctx); err != nil {
				logger.Warn("dispute SLA check failed", zap.Error(err))
			}
		}
	}
}
