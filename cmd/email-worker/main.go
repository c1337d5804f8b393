package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/voyagecrm/notify/internal/config/email-worker"
	"github.com/voyagecrm/notify/internal/obs"
	pg "github.com/voyagecrm/notify/internal/repository/postgres"
	worker "github.com/voyagecrm/notify/internal/services/email-worker"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/email-worker.yaml"
}

func main() {
	// init
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, App: "email-worker"})
	if err != nil {
		log.Fatal(err)
	}

	l.Info("starting email-worker",
		zap.String("smtp_addr", cfg.SMTP.Addr),
		zap.Duration("tick", cfg.Worker.Tick),
		zap.Int("batch_limit", cfg.Worker.BatchLimit),
		zap.String("metrics_addr", cfg.Worker.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.New(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Worker.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// wiring
	renderer, err := worker.NewRenderer()
	if err != nil {
		l.Fatal("templates", zap.Error(err))
	}
	queue := pg.NewMailQueueRepo(db)
	notifs := pg.NewNotificationRepo(db)
	proc := worker.NewProcessor(
		queue,
		pg.NewMailLogRepo(db),
		pg.NewUserRepo(db),
		worker.NewMailer(cfg.SMTP).WithLogger(l),
		renderer,
		cfg.SMTP.From,
		cfg.Worker.BaseBackoff,
		cfg.Worker.MaxAttempts,
		cfg.Worker.ProcessingTTL,
		l,
	)
	runner := worker.NewRunner(l, proc, &cfg.Worker)
	janitor := worker.NewJanitor(l, queue, notifs, &cfg.Retention)

	// start
	errCh := make(chan error, 2)
	go func() { errCh <- runner.Run(rootCtx) }()
	go func() { errCh <- janitor.Run(rootCtx) }()
	l.Info("worker started")

	// main loop
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
