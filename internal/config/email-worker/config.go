package email_worker_config

import (
	"time"

	"github.com/voyagecrm/notify/internal/obs"
	pginfra "github.com/voyagecrm/notify/internal/repository/postgres"
)

type OTELCfg struct {
	Enable      bool    `mapstructure:"enable"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	Endpoint    string  `mapstructure:"otlp_endpoint"`
}

func (c OTELCfg) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.Enable,
		Endpoint:    c.Endpoint,
		ServiceName: c.ServiceName,
		SampleRatio: c.SampleRatio,
	}
}

type SMTP struct {
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
}

type WorkerCfg struct {
	Tick          time.Duration `mapstructure:"tick"`
	BatchLimit    int           `mapstructure:"batch_limit"`
	BaseBackoff   time.Duration `mapstructure:"base_backoff"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	ProcessingTTL time.Duration `mapstructure:"processing_ttl"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
}

type RetentionCfg struct {
	Tick             time.Duration `mapstructure:"tick"`
	QueueDays        int           `mapstructure:"queue_days"`
	NotificationDays int           `mapstructure:"notification_days"`
}

type Config struct {
	DB        pginfra.Config `mapstructure:"db"`
	SMTP      SMTP           `mapstructure:"smtp"`
	Worker    WorkerCfg      `mapstructure:"worker"`
	Retention RetentionCfg   `mapstructure:"retention"`
	OTEL      OTELCfg        `mapstructure:"otel"`
	LogLevel  string         `mapstructure:"log_level"`
}
