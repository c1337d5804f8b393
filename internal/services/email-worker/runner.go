package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	config "github.com/voyagecrm/notify/internal/config/email-worker"
)

var (
	mClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_worker_entries_claimed_total", Help: "Queue entries claimed for processing",
	})
	mSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_worker_emails_sent_total", Help: "Emails delivered to the provider",
	})
	mRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_worker_entries_retried_total", Help: "Entries rescheduled with backoff",
	})
	mFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_worker_entries_failed_total", Help: "Entries that reached terminal failure",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_worker_errors_total", Help: "Errors in the worker loop",
	})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "email_worker_loop_duration_seconds", Help: "Worker tick duration",
		Buckets: prometheus.DefBuckets,
	})
)

type Runner struct {
	Log  *zap.Logger
	Proc *Processor
	Cfg  *config.WorkerCfg
}

func NewRunner(log *zap.Logger, proc *Processor, cfg *config.WorkerCfg) *Runner {
	return &Runner{Log: log, Proc: proc, Cfg: cfg}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	claimed, sent, retried, failed, err := r.Proc.Tick(ctx, r.Cfg.BatchLimit)
	if err != nil {
		mErr.Inc()
		r.Log.Warn("tick error", zap.Error(err))
	}
	if claimed > 0 {
		mClaimed.Add(float64(claimed))
		mSent.Add(float64(sent))
		mRetried.Add(float64(retried))
		mFailed.Add(float64(failed))
		r.Log.Debug("processed batch",
			zap.Int("claimed", claimed),
			zap.Int("sent", sent),
			zap.Int("retried", retried),
			zap.Int("failed", failed),
		)
	}
	mLoopDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	tick := r.Cfg.Tick
	if tick <= 0 {
		tick = 30 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
