package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/lock"
	"github.com/mmeshcher/partner-ledger/internal/repository"
)

const settlementLockName = "settlement"

// SettlementReport описывает итог одного запуска подтверждения начислений.
type SettlementReport struct {
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	// Skipped считает начисления, подтверждённые конкурентным запуском.
	Skipped int `json:"skipped"`
}

// ConfirmDueSettlements подтверждает все начисления, у которых истёк период удержания.
// Каждое начисление подтверждается в отдельной транзакции; сбой одного не прерывает запуск.
// Если запуск уже выполняется на другом узле, возвращает ErrSettlementInProgress.
func (s *Service) ConfirmDueSettlements(ctx context.Context) (*SettlementReport, error) {
	report := &SettlementReport{}
	start := time.Now()

	err := s.locker.WithLock(ctx, settlementLockName, func(ctx context.Context) error {
		return s.confirmDue(ctx, report)
	})

	s.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	s.metrics.SettlementsTotal.WithLabelValues("confirmed").Add(float64(report.Confirmed))
	s.metrics.SettlementsTotal.WithLabelValues("failed").Add(float64(report.Failed))
	s.metrics.SettlementsTotal.WithLabelValues("skipped").Add(float64(report.Skipped))

	if errors.Is(err, lock.ErrNotAcquired) {
		return report, ErrSettlementInProgress
	}
	if err != nil {
		return report, err
	}

	if report.Confirmed > 0 || report.Failed > 0 {
		s.logger.Info("settlement run finished",
			zap.Int("confirmed", report.Confirmed),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
			zap.Duration("took", time.Since(start)),
		)
	}
	return report, nil
}

func (s *Service) confirmDue(ctx context.Context, report *SettlementReport) error {
	now := s.now()
	var after int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := s.repo.DueCommissionIDs(ctx, now, after, settlementBatchSize)
		if err != nil {
			return fmt.Errorf("list due commissions: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		for _, id := range ids {
			after = id

			_, err := s.repo.ConfirmCommission(ctx, id, now)
			switch {
			case err == nil:
				report.Confirmed++
			case errors.Is(err, repository.ErrAlreadyConfirmed):
				report.Skipped++
			default:
				report.Failed++
				s.logger.Error("confirm commission", zap.Error(err), zap.Int64("commissionID", id))
			}
		}

		if len(ids) < settlementBatchSize {
			return nil
		}
	}
}
