package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/api"
	config "github.com/voyagecrm/notify/internal/config/notify-api"
	"github.com/voyagecrm/notify/internal/obs"
	"github.com/voyagecrm/notify/internal/obs/retry"
	kafkax "github.com/voyagecrm/notify/internal/repository/kafka"
	pg "github.com/voyagecrm/notify/internal/repository/postgres"
	"github.com/voyagecrm/notify/internal/services/orchestrator"
	"github.com/voyagecrm/notify/internal/services/policy"
	"github.com/voyagecrm/notify/internal/services/push"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/notify-api.yaml"
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
	l, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, App: "notify-api"})
	if err != nil {
		log.Fatal(err)
	}

	l.Info("starting notify-api",
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.Any("kafka_in", cfg.In),
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
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// kafka
	cons := kafkax.BootstrapConsumer(rootCtx, cfg.In.AsConsumerConfig(), l).WithLogger(l)
	defer func() { _ = cons.Close() }()
	prod := kafkax.NewProducer(cfg.In.Brokers, cfg.In.Topic)
	defer func() { _ = prod.Close() }()
	pub := kafkax.NewCRMEventsKafka(prod)

	// wiring
	notifs := pg.NewNotificationRepo(db)
	prefs := pg.NewPreferenceRepo(db)
	queue := pg.NewMailQueueRepo(db)
	logs := pg.NewMailLogRepo(db)

	reg := push.NewRegistry(push.Config{
		Heartbeat: cfg.Push.Heartbeat,
		IdleTTL:   cfg.Push.IdleTTL,
		Buffer:    cfg.Push.Buffer,
	}, l)
	defer reg.Shutdown()

	gate := policy.NewGate(prefs, cfg.Policy.FailOpen, l)
	uc := orchestrator.New(gate, notifs, queue, reg, cfg.Orchestrator.MaxAttempts, l)
	ctrl := &orchestrator.Controller{Log: l, Sub: cons, UC: uc, Pol: retry.DefaultEventPolicy(l)}

	srv := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Notifs: notifs,
			Prefs:  prefs,
			Queue:  queue,
			Logs:   logs,
			UC:     uc,
			Pub:    pub,
			Push:   reg,
			Log:    l,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// start
	errCh := make(chan error, 2)
	go func() {
		l.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		l.Info("event controller starting")
		errCh <- ctrl.Run(rootCtx)
	}()

	// main loop
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("run error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
