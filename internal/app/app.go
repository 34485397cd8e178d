// Package app собирает зависимости леджера для исполняемых файлов.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/catalog"
	"github.com/mmeshcher/partner-ledger/internal/config"
	"github.com/mmeshcher/partner-ledger/internal/events"
	"github.com/mmeshcher/partner-ledger/internal/lock"
	"github.com/mmeshcher/partner-ledger/internal/metrics"
	"github.com/mmeshcher/partner-ledger/internal/repository"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

// settlementLockTTL ограничивает удержание блокировки упавшим запуском подтверждения.
const settlementLockTTL = 10 * time.Minute

// App содержит собранные зависимости.
type App struct {
	Repo     *repository.PostgresRepository
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.LedgerMetrics
	Service  *service.Service
	Relay    *events.Relay
}

// New подключается к PostgreSQL (и Redis, если задан адрес) и собирает сервис.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("database initialization: %w", err)
	}

	a := &App{Repo: repo}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	var (
		locker    lock.Locker      = lock.Noop{}
		publisher events.Publisher = events.NewLogPublisher(logger)
	)
	if cfg.RedisAddress != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		locker = lock.NewRedisLocker(a.Redis, settlementLockTTL)
		publisher = events.NewRedisPublisher(a.Redis, cfg.EventsChannel)
	} else {
		logger.Warn("redis is not configured: settlement runs are not locked across nodes, events go to log")
	}

	opts := service.DefaultOptions()
	opts.HoldingPeriod = cfg.HoldingPeriod
	opts.CodeValidity = cfg.CodeValidity

	a.Service = service.NewService(repo, catalog.NewClient(cfg.CatalogAddress, logger), locker, a.Metrics, logger, opts)
	a.Relay = events.NewRelay(repo, publisher, logger)

	return a, nil
}

// Close освобождает соединения.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Repo != nil {
		_ = a.Repo.Close()
	}
}
