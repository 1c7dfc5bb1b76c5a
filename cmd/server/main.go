package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/config"
	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
	"github.com/mamadbah2/restopos/internal/repository/memory"
	"github.com/mamadbah2/restopos/internal/repository/mongodb"
	"github.com/mamadbah2/restopos/internal/repository/sheets"
	"github.com/mamadbah2/restopos/internal/scheduler"
	"github.com/mamadbah2/restopos/internal/server/handlers"
	"github.com/mamadbah2/restopos/internal/server/router"
	"github.com/mamadbah2/restopos/internal/service/billview"
	"github.com/mamadbah2/restopos/internal/service/ledger"
	"github.com/mamadbah2/restopos/internal/service/menu"
	"github.com/mamadbah2/restopos/internal/service/printjobs"
	reportingsvc "github.com/mamadbah2/restopos/internal/service/reporting"
	"github.com/mamadbah2/restopos/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level, cfg.Log.Development))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, err := openStore(context.Background(), cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init document store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close document store", zap.Error(err))
		}
	}()

	location, err := cfg.Reporting.Location()
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}

	var salesSheet sheets.SalesSheet
	if cfg.Sheets.Enabled() {
		sheet, err := sheets.NewGoogleSalesSheet(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sales sheet", zap.Error(err))
		}
		salesSheet = sheet
	} else {
		baseLogger.Warn("google sheets not configured, daily sales export disabled")
	}

	ledgerSvc := ledger.NewService(store, baseLogger.Named("svc.ledger"),
		ledger.WithStrictRevisions(cfg.Ledger.StrictRevisions),
		ledger.WithCodePrefix(cfg.Ledger.CodePrefix),
	)
	menuSvc := menu.NewService(store, baseLogger.Named("svc.menu"))

	trackerLogger := baseLogger.Named("svc.printjobs")
	trackers := make([]*printjobs.Tracker, 0, len(models.Channels))
	sweepers := make([]scheduler.Sweeper, 0, len(models.Channels))
	for _, channel := range models.Channels {
		t := printjobs.NewTracker(channel, store, trackerLogger,
			printjobs.WithTimeout(cfg.Print.Timeout),
			printjobs.WithAgentSecret(cfg.Print.AgentSecret),
		)
		trackers = append(trackers, t)
		sweepers = append(sweepers, t)
		trackerLogger.Info("print tracker ready",
			zap.String("channel", string(t.Channel())),
			zap.Duration("timeout", t.Timeout()),
		)
	}
	controller := billview.NewController(ledgerSvc, store, trackers, baseLogger.Named("svc.billview"))

	var exporter scheduler.Exporter
	if salesSheet != nil {
		exporter = reportingsvc.NewService(store, salesSheet, location, baseLogger.Named("svc.reporting"))
	}

	billHandler := handlers.NewBillHandler(ledgerSvc, menuSvc, controller, baseLogger.Named("handlers.bills"))
	foodHandler := handlers.NewFoodHandler(menuSvc, baseLogger.Named("handlers.foods"))
	engine, err := router.New(billHandler, foodHandler, router.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PrintRateLimit: cfg.Server.PrintRateLimit,
	}, baseLogger.Named("router"))
	if err != nil {
		baseLogger.Fatal("failed to init router", zap.Error(err))
	}

	sched := scheduler.NewScheduler(scheduler.Config{
		SweepSchedule:  cfg.Print.SweepSchedule,
		ReportSchedule: cfg.Reporting.CronSchedule,
		Location:       location,
	}, sweepers, exporter, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// WriteTimeout stays unset: /bills/:id/events streams for as long as the client listens.
	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.BaseContext = func(_ net.Listener) context.Context { return ctx }

	go func() {
		baseLogger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("strict_revisions", ledgerSvc.Strict()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, base *zap.Logger) (repository.Store, error) {
	if cfg.Store.Driver == config.StoreMemory {
		base.Warn("using in-memory store, data is lost on restart")
		return memory.New(memory.WithLogger(base.Named("repo.memory"))), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	repo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, base.Named("repo.mongodb"))
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		_ = repo.Close(context.Background())
		return nil, err
	}
	return repo, nil
}
