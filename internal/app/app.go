package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"hostpulse/internal/collector"
	"hostpulse/internal/config"
	"hostpulse/internal/db"
	"hostpulse/internal/history"
	"hostpulse/internal/monitor"
	"hostpulse/internal/retention"
	"hostpulse/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db        *db.Repository
	monitor   *monitor.Monitor
	scheduler *monitor.Scheduler
	retention *retention.Service
	web       *web.Server

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	probe := collector.NewProbe(cfg.ProbeHost, cfg.ProbeTimeout, logger.With("module", "probe"))
	sampler := collector.NewHostSampler(cfg.CPUSampleInterval, probe, logger.With("module", "collector"))
	store := history.NewStore(cfg.HistoryPath, logger.With("module", "history"))
	mon := monitor.New(monitor.Options{
		Retention:    cfg.Retention,
		BucketCount:  cfg.BucketCount,
		BucketWidth:  cfg.BucketWidth,
		StatsTimeout: cfg.StatsTimeout,
	}, sampler, store, repo, logger.With("module", "monitor"))
	w := web.NewServer(mon, repo, cfg.CORSOrigin, logger.With("module", "web"))

	app := &App{
		cfg:       cfg,
		log:       logger,
		db:        repo,
		monitor:   mon,
		scheduler: monitor.NewScheduler(mon, cfg.CycleInterval, logger.With("module", "scheduler")),
		retention: retention.NewService(repo, cfg.ArchiveRetentionDays, logger.With("module", "retention")),
		web:       w,
	}
	app.httpSrv = &http.Server{Addr: cfg.Addr, Handler: w.Routes(), ReadHeaderTimeout: 10 * time.Second}
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server failed", "err", err)
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		a.scheduler.Run(ctx)
	}()

	retentionTicker := time.NewTicker(6 * time.Hour)
	defer retentionTicker.Stop()
	a.retention.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = a.httpSrv.Shutdown(shutdownCtx)
			cancel()
			// An in-flight cycle either finishes or is abandoned; history
			// writes are whole-file renames so either outcome is consistent.
			<-schedDone
			return a.db.DB().Close()
		case <-retentionTicker.C:
			a.retention.Run(ctx)
		}
	}
}
