package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bradeyre/platinum-repairs-sub001/internal/analytics"
	httptransport "github.com/bradeyre/platinum-repairs-sub001/internal/api/http"
	"github.com/bradeyre/platinum-repairs-sub001/internal/api/http/handlers"
	"github.com/bradeyre/platinum-repairs-sub001/internal/calendar"
	"github.com/bradeyre/platinum-repairs-sub001/internal/config"
	"github.com/bradeyre/platinum-repairs-sub001/internal/connector"
	"github.com/bradeyre/platinum-repairs-sub001/internal/events"
	"github.com/bradeyre/platinum-repairs-sub001/internal/observability"
	"github.com/bradeyre/platinum-repairs-sub001/internal/orchestrator"
	"github.com/bradeyre/platinum-repairs-sub001/internal/persistence"
	"github.com/bradeyre/platinum-repairs-sub001/internal/policy"
	"github.com/bradeyre/platinum-repairs-sub001/internal/reconciler"
	"github.com/bradeyre/platinum-repairs-sub001/internal/repository"
	"github.com/bradeyre/platinum-repairs-sub001/internal/rework"
	"github.com/bradeyre/platinum-repairs-sub001/internal/status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	domainCfg, err := config.LoadDomain(cfg.Sync.DomainConfigPath)
	if err != nil {
		logger.Fatal("failed to load domain config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	// An invalid work-week definition corrupts every duration downstream,
	// so startup refuses it outright.
	calendarSettings, err := domainCfg.CalendarSettings()
	if err != nil {
		logger.Fatal("invalid calendar config", zap.Error(err))
	}
	cal, err := calendar.New(calendarSettings)
	if err != nil {
		logger.Fatal("invalid business calendar", zap.Error(err))
	}

	normalizer := status.NewNormalizer(domainCfg.StatusTable())
	detector := rework.NewDetector(domainCfg.ReworkKeywords)
	filter := policy.NewFilter(domainCfg.Policies)
	categorizer := analytics.NewDeviceCategorizer(domainCfg.DeviceCategories)
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	opsRepo := repository.NewSyncOperationRepository(pool)
	eventRepo := repository.NewStatusEventRepository(pool)
	sampleRepo := repository.NewWaitSampleRepository(pool)

	clients := make([]*connector.Client, 0, len(domainCfg.Sources))
	for _, src := range domainCfg.Sources {
		clients = append(clients, connector.NewClient(src, &http.Client{Timeout: cfg.App.RequestTimeout()}))
	}
	fetcher := connector.NewFetcher(clients, normalizer, cfg.Sync.Concurrency, logger)

	rec := reconciler.New(reconciler.Dependencies{
		TicketRepo: ticketRepo,
		EventRepo:  eventRepo,
		SampleRepo: sampleRepo,
		Normalizer: normalizer,
		Calendar:   cal,
		Detector:   detector,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, domainCfg.DefaultActiveRatio)

	orch := orchestrator.New(opsRepo, ticketRepo, fetcher, rec, filter, dispatcher, orchestrator.Config{
		Concurrency:    cfg.Sync.Concurrency,
		PassBudget:     cfg.Sync.PassBudget(),
		ClaimStaleness: cfg.Sync.ClaimStaleness(),
		DueLimit:       cfg.Sync.DueLimit,
		TargetStatuses: domainCfg.CanonicalTargets(),
	}, logger)

	dispatcher.Subscribe(events.EventSyncCompleted, func(_ context.Context, ev events.Event) error {
		if payload, ok := ev.Payload.(events.SyncCompletedPayload); ok {
			metrics.RecordSyncPass(payload.Kind, payload.Status, payload.Counters)
		}
		return nil
	})

	scheduler := startScheduler(ctx, domainCfg.Schedule, orch, logger)
	if scheduler != nil {
		defer scheduler.Stop()
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets: handlers.NewTicketsHandler(ticketRepo, eventRepo),
		Sync:    handlers.NewSyncHandler(orch, opsRepo),
		Analytics: handlers.NewAnalyticsHandler(
			ticketRepo, eventRepo, sampleRepo, categorizer,
			cal.Location(), redis.Client, cfg.Sync.AnalyticsCacheTTL(), logger),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// startScheduler registers the recurring incremental pass. An empty or
// invalid schedule disables it; the service still syncs on demand.
func startScheduler(ctx context.Context, schedule string, orch *orchestrator.Orchestrator, logger *zap.Logger) *cron.Cron {
	if schedule == "" {
		logger.Info("no sync schedule configured; manual triggers only")
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		result, err := orch.RunOnce(ctx, orchestrator.RunRequest{})
		if err != nil {
			logger.Error("scheduled sync failed", zap.Error(err))
			return
		}
		if !result.Accepted {
			logger.Info("scheduled sync skipped", zap.String("running_operation_id", result.RunningID))
		}
	})
	if err != nil {
		logger.Warn("invalid sync schedule; scheduling disabled", zap.String("schedule", schedule), zap.Error(err))
		return nil
	}
	c.Start()
	logger.Info("sync schedule active", zap.String("schedule", schedule))
	return c
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
