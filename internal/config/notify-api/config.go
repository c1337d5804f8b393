package notify_api_config

import (
	"time"

	"github.com/voyagecrm/notify/internal/obs"
	kafkax "github.com/voyagecrm/notify/internal/repository/kafka"
	pginfra "github.com/voyagecrm/notify/internal/repository/postgres"
)

type KafkaIn struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

func (k KafkaIn) AsConsumerConfig() *kafkax.ConsumerConfig {
	return &kafkax.ConsumerConfig{
		Brokers: k.Brokers,
		Topic:   k.Topic,
		GroupID: k.GroupID,
	}
}

type Server struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type PushCfg struct {
	Heartbeat time.Duration `mapstructure:"heartbeat"`
	IdleTTL   time.Duration `mapstructure:"idle_ttl"`
	Buffer    int           `mapstructure:"buffer"`
}

type PolicyCfg struct {
	FailOpen bool `mapstructure:"fail_open"`
}

type OrchestratorCfg struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

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

type Config struct {
	DB           pginfra.Config  `mapstructure:"db"`
	In           KafkaIn         `mapstructure:"kafka_in"`
	Server       Server          `mapstructure:"server"`
	Push         PushCfg         `mapstructure:"push"`
	Policy       PolicyCfg       `mapstructure:"policy"`
	Orchestrator OrchestratorCfg `mapstructure:"orchestrator"`
	OTEL         OTELCfg         `mapstructure:"otel"`
	LogLevel     string          `mapstructure:"log_level"`
}
