package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Sink    string `env:"MON_SINK"    envDefault:"trace"`
	Output  string `env:"MON_OUTPUT"  envDefault:"monitor.trace"`
	Skip    string `env:"MON_SKIP"    envDefault:"buffer"`
	Enabled bool   `env:"MON_ENABLED" envDefault:"true"`

	// Settings is the YAML file holding host settings across runs.
	Settings string `env:"MON_SETTINGS"`

	KafkaBrokers []string      `env:"MON_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string        `env:"MON_KAFKA_TOPIC"   envDefault:"mon-trace"`
	KafkaTimeout time.Duration `env:"MON_KAFKA_TIMEOUT" envDefault:"10s"`

	// OTLPEndpoint enables metric export, e.g. "localhost:4317".
	OTLPEndpoint    string        `env:"MON_OTLP_ENDPOINT"`
	OTLPInsecure    bool          `env:"MON_OTLP_INSECURE"`
	MetricsInterval time.Duration `env:"MON_METRICS_INTERVAL" envDefault:"15s"`
	SummaryInterval time.Duration `env:"MON_SUMMARY_INTERVAL" envDefault:"10s"`

	Capture string `env:"MON_CAPTURE"`
	// Symbols points to a YAML symbol table; empty means the fixed
	// register addresses.
	Symbols string `env:"MON_SYMBOLS"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
