// Package config содержит логику чтения конфигурации партнёрского леджера.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress         = "localhost:8080"
	defaultHoldingPeriod      = 21 * 24 * time.Hour
	defaultCodeValidity       = 365 * 24 * time.Hour
	defaultSettlementSchedule = "0 0 */3 * * *"
	defaultExpirySchedule     = "0 30 4 * * *"
	defaultRelaySchedule      = "*/10 * * * * *"
	defaultEventsChannel      = "partner-ledger.events"
)

// Config содержит параметры конфигурации партнёрского леджера.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	CatalogAddress string `env:"CATALOG_ADDRESS"`
	RedisAddress   string `env:"REDIS_ADDRESS"`
	APIKey         string `env:"API_KEY"`
	TokenSecret    string `env:"TOKEN_SECRET"`
	EventsChannel  string `env:"EVENTS_CHANNEL"`

	HoldingPeriod time.Duration `env:"HOLDING_PERIOD"`
	CodeValidity  time.Duration `env:"CODE_VALIDITY"`

	// Расписания cron с секундами для cmd/settler.
	SettlementSchedule string `env:"SETTLEMENT_SCHEDULE"`
	ExpirySchedule     string `env:"EXPIRY_SCHEDULE"`
	RelaySchedule      string `env:"RELAY_SCHEDULE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "product catalog address")
	flag.StringVar(&cfg.RedisAddress, "redis", "", "redis address for locks and event publishing")
	flag.StringVar(&cfg.APIKey, "k", "", "API key for internal routes")
	flag.StringVar(&cfg.TokenSecret, "s", "", "secret for partner tokens")
	flag.StringVar(&cfg.EventsChannel, "events-channel", defaultEventsChannel, "redis channel for ledger events")
	flag.DurationVar(&cfg.HoldingPeriod, "holding", defaultHoldingPeriod, "commission holding period")
	flag.DurationVar(&cfg.CodeValidity, "code-validity", defaultCodeValidity, "redemption code validity")
	flag.StringVar(&cfg.SettlementSchedule, "settlement-schedule", defaultSettlementSchedule, "settlement cron schedule")
	flag.StringVar(&cfg.ExpirySchedule, "expiry-schedule", defaultExpirySchedule, "code expiry cron schedule")
	flag.StringVar(&cfg.RelaySchedule, "relay-schedule", defaultRelaySchedule, "event relay cron schedule")

	flag.Parse()

	override(&cfg.RunAddress, envCfg.RunAddress)
	override(&cfg.DatabaseURI, envCfg.DatabaseURI)
	override(&cfg.CatalogAddress, envCfg.CatalogAddress)
	override(&cfg.RedisAddress, envCfg.RedisAddress)
	override(&cfg.APIKey, envCfg.APIKey)
	override(&cfg.TokenSecret, envCfg.TokenSecret)
	override(&cfg.EventsChannel, envCfg.EventsChannel)
	override(&cfg.HoldingPeriod, envCfg.HoldingPeriod)
	override(&cfg.CodeValidity, envCfg.CodeValidity)
	override(&cfg.SettlementSchedule, envCfg.SettlementSchedule)
	override(&cfg.ExpirySchedule, envCfg.ExpirySchedule)
	override(&cfg.RelaySchedule, envCfg.RelaySchedule)

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.HoldingPeriod < 0 || cfg.CodeValidity <= 0 {
		return nil, fmt.Errorf("invalid durations: holding %s, code validity %s", cfg.HoldingPeriod, cfg.CodeValidity)
	}

	return cfg, nil
}

func override[T comparable](dst *T, envValue T) {
	var zero T
	if envValue != zero {
		*dst = envValue
	}
}
