package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	config "github.com/voyagecrm/notify/internal/config/email-worker"
	"github.com/voyagecrm/notify/internal/domain/mailqueue"
	"github.com/voyagecrm/notify/internal/domain/notification"
)

var mPurged = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "email_worker_rows_purged_total", Help: "Rows removed by retention sweeps",
}, []string{"table"})

// Janitor periodically removes settled queue entries and stale read
// notifications past their retention windows.
type Janitor struct {
	Log    *zap.Logger
	Queue  mailqueue.Repo
	Notifs notification.Repo
	Cfg    *config.RetentionCfg
}

func NewJanitor(log *zap.Logger, queue mailqueue.Repo, notifs notification.Repo, cfg *config.RetentionCfg) *Janitor {
	return &Janitor{Log: log, Queue: queue, Notifs: notifs, Cfg: cfg}
}

func (j *Janitor) sweep(ctx context.Context) {
	if j.Cfg.QueueDays > 0 {
		n, err := j.Queue.DeleteOld(ctx, j.Cfg.QueueDays)
		if err != nil {
			j.Log.Warn("queue sweep failed", zap.Error(err))
		} else if n > 0 {
			mPurged.WithLabelValues("email_queue").Add(float64(n))
			j.Log.Info("queue sweep", zap.Int64("removed", n))
		}
	}
	if j.Cfg.NotificationDays > 0 {
		n, err := j.Notifs.DeleteReadOlderThan(ctx, j.Cfg.NotificationDays)
		if err != nil {
			j.Log.Warn("notification sweep failed", zap.Error(err))
		} else if n > 0 {
			mPurged.WithLabelValues("notifications").Add(float64(n))
			j.Log.Info("notification sweep", zap.Int64("removed", n))
		}
	}
}

func (j *Janitor) Run(ctx context.Context) error {
	tick := j.Cfg.Tick
	if tick <= 0 {
		tick = 12 * time.Hour
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	j.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}
