// Package main запускает фоновые задачи леджера: подтверждение начислений,
// истечение кодов погашения и ретрансляцию событий.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/app"
	"github.com/mmeshcher/partner-ledger/internal/config"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

const jobTimeout = 10 * time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		sugar.Fatalw("initialization error", "error", err.Error())
	}
	defer a.Close()

	// Пересекающиеся запуски одной задачи пропускаются.
	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{sugar})),
	)

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) error
	}{
		{
			name:     "settlement",
			schedule: cfg.SettlementSchedule,
			run: func(ctx context.Context) error {
				report, err := a.Service.ConfirmDueSettlements(ctx)
				if errors.Is(err, service.ErrSettlementInProgress) {
					sugar.Infow("settlement run skipped: another node holds the lock")
					return nil
				}
				if err != nil {
					return err
				}
				sugar.Infow("settlement run",
					"confirmed", report.Confirmed, "failed", report.Failed, "skipped", report.Skipped)
				return nil
			},
		},
		{
			name:     "code-expiry",
			schedule: cfg.ExpirySchedule,
			run: func(ctx context.Context) error {
				_, err := a.Service.ExpireRedemptionCodes(ctx)
				return err
			},
		},
		{
			name:     "event-relay",
			schedule: cfg.RelaySchedule,
			run: func(ctx context.Context) error {
				n, err := a.Relay.Run(ctx)
				if n > 0 {
					sugar.Debugw("events relayed", "count", n)
				}
				return err
			},
		},
	}

	for _, job := range jobs {
		_, err := scheduler.AddFunc(job.schedule, func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()

			if err := job.run(jobCtx); err != nil {
				sugar.Errorw("job failed", "job", job.name, "error", err)
			}
		})
		if err != nil {
			sugar.Fatalw("invalid job schedule", "job", job.name, "schedule", job.schedule, "error", err)
		}
		sugar.Infow("job scheduled", "job", job.name, "schedule", job.schedule)
	}

	scheduler.Start()
	<-ctx.Done()

	sugar.Info("shutting down scheduler...")
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		sugar.Info("scheduler stopped gracefully")
	case <-time.After(5 * time.Second):
		sugar.Info("scheduler forced to stop after timeout")
	}
}

// cronLogger направляет сообщения планировщика в zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
