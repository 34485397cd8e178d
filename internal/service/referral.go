package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/repository"
	"github.com/mmeshcher/partner-ledger/internal/validation"
)

// Attribution описывает результат привязки пользователя к партнёру.
type Attribution struct {
	// Created == false означает, что пользователь уже был закреплён ранее.
	Created bool
	Direct  model.Referral
	// Upstream заполнен, если у владельца прямого партнёра есть свой реферер.
	Upstream *model.Referral
}

// AttributeReferral закрепляет пользователя userID за партнёром с кодом code.
// Ребро второго уровня создаётся отдельным шагом: его сбой не отменяет прямую привязку,
// а повторный вызов достраивает недостающее ребро.
func (s *Service) AttributeReferral(ctx context.Context, userID int64, code string) (*Attribution, error) {
	code = validation.NormalizeCode(code)
	if !validation.IsValidCode(code) {
		s.metrics.ReferralAttributions.WithLabelValues("1", "invalid").Inc()
		return nil, ErrInvalidCode
	}

	direct, partner, created, err := s.repo.AttributeDirect(ctx, code, userID)
	if err != nil {
		if errors.Is(err, repository.ErrPartnerNotFound) ||
			errors.Is(err, repository.ErrPartnerInactive) ||
			errors.Is(err, repository.ErrSelfReferral) {
			s.metrics.ReferralAttributions.WithLabelValues("1", "invalid").Inc()
			return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
		}
		s.metrics.ReferralAttributions.WithLabelValues("1", "failed").Inc()
		return nil, fmt.Errorf("attribute referral: %w", err)
	}
	s.metrics.ReferralAttributions.WithLabelValues("1", attributionResult(created)).Inc()

	res := &Attribution{Created: created, Direct: *direct}

	upstream, upCreated, err := s.repo.AttributeUpstream(ctx, direct, partner)
	if err != nil {
		s.metrics.ReferralAttributions.WithLabelValues("2", "failed").Inc()
		s.logger.Warn("upstream attribution failed",
			zap.Error(err),
			zap.Int64("userID", userID),
			zap.Int64("referralID", direct.ID),
		)
		return res, nil
	}
	if upstream != nil {
		s.metrics.ReferralAttributions.WithLabelValues("2", attributionResult(upCreated)).Inc()
		res.Upstream = upstream
	}

	if created {
		s.logger.Info("referral attributed",
			zap.Int64("userID", userID),
			zap.Int64("partnerID", partner.ID),
			zap.Bool("upstream", upstream != nil),
		)
	}

	return res, nil
}

// ListReferrals возвращает пользователей, приведённых партнёром.
func (s *Service) ListReferrals(ctx context.Context, partnerID int64) ([]model.Referral, error) {
	return s.repo.ListReferrals(ctx, partnerID)
}

func attributionResult(created bool) string {
	if created {
		return "created"
	}
	return "existing"
}
