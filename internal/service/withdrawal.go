package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/repository"
)

// RequestWithdrawal создаёт заявку на вывод amount с доступного баланса партнёра.
// Неактивный партнёр считается ненайденным.
func (s *Service) RequestWithdrawal(ctx context.Context, partnerID int64, amount decimal.Decimal, method model.PaymentMethod, info string) (*model.Withdrawal, error) {
	cents, err := model.CentsFromDecimal(amount)
	if err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	info = strings.TrimSpace(info)
	if info == "" {
		return nil, ErrPaymentInfoRequired
	}

	w, err := s.repo.CreateWithdrawal(ctx, partnerID, cents, method, info)
	switch {
	case err == nil:
		s.metrics.WithdrawalsTotal.WithLabelValues("created").Inc()
		s.logger.Info("withdrawal requested",
			zap.Int64("partnerID", partnerID),
			zap.Int64("withdrawalID", w.ID),
			zap.Int64("amount", cents),
		)
		return w, nil
	case errors.Is(err, repository.ErrInsufficientBalance):
		s.metrics.WithdrawalsTotal.WithLabelValues("insufficient").Inc()
		return nil, err
	case errors.Is(err, repository.ErrPartnerInactive):
		s.metrics.WithdrawalsTotal.WithLabelValues("failed").Inc()
		return nil, repository.ErrPartnerNotFound
	default:
		s.metrics.WithdrawalsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
}

// UpdateWithdrawalStatus переводит заявку в новый статус (решение оператора).
func (s *Service) UpdateWithdrawalStatus(ctx context.Context, id int64, status model.WithdrawalStatus, reason string) (*model.Withdrawal, error) {
	w, err := s.repo.UpdateWithdrawalStatus(ctx, id, status, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal status changed",
		zap.Int64("withdrawalID", id),
		zap.String("status", string(w.Status)),
	)
	return w, nil
}

// ListWithdrawals возвращает заявки партнёра.
func (s *Service) ListWithdrawals(ctx context.Context, partnerID int64) ([]model.Withdrawal, error) {
	return s.repo.ListWithdrawals(ctx, partnerID)
}
