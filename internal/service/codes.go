package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/codegen"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/repository"
)

// CodeBatch описывает выпущенную пачку кодов погашения.
type CodeBatch struct {
	Codes            []string
	Tier             model.Tier
	PrepurchaseCount int64
	ExpiresAt        time.Time
}

// GenerateRedemptionCodes выпускает count уникальных кодов погашения для партнёра
// и учитывает их как предзакупку, что может повысить уровень партнёра.
// Пачка выпускается целиком или не выпускается вовсе.
func (s *Service) GenerateRedemptionCodes(ctx context.Context, partnerID int64, count int) (*CodeBatch, error) {
	if count < 1 || count > maxCodeBatch {
		return nil, ErrInvalidCount
	}

	p, err := s.repo.GetPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if !p.Active() {
		return nil, repository.ErrPartnerNotFound
	}

	codes, err := s.codes.Batch(count, func(candidates []string) (map[string]bool, error) {
		return s.repo.IssuedCodes(ctx, candidates)
	})
	if errors.Is(err, codegen.ErrExhausted) {
		return nil, ErrGenerationExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("generate codes: %w", err)
	}

	expiresAt := s.now().Add(s.opts.CodeValidity)
	updated, err := s.repo.IssueRedemptionCodes(ctx, partnerID, codes, expiresAt, s.opts.Tiers)
	switch {
	case errors.Is(err, repository.ErrCodeTaken):
		// Конкурентный выпуск занял один из кодов между проверкой и вставкой.
		return nil, ErrGenerationExhausted
	case errors.Is(err, repository.ErrPartnerInactive):
		return nil, repository.ErrPartnerNotFound
	case err != nil:
		return nil, err
	}

	s.metrics.CodesIssued.Add(float64(len(codes)))
	if updated.Tier != p.Tier {
		s.logger.Info("partner tier promoted",
			zap.Int64("partnerID", partnerID),
			zap.Stringer("from", p.Tier),
			zap.Stringer("to", updated.Tier),
		)
	}

	return &CodeBatch{
		Codes:            codes,
		Tier:             updated.Tier,
		PrepurchaseCount: updated.PrepurchaseCount,
		ExpiresAt:        expiresAt,
	}, nil
}

// ExpireRedemptionCodes помечает истёкшие коды.
func (s *Service) ExpireRedemptionCodes(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireRedemptionCodes(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("redemption codes expired", zap.Int64("count", n))
	}
	return n, nil
}
