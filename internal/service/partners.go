package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/repository"
)

// CreatePartner регистрирует партнёрский аккаунт пользователя с уровнем L0 и уникальным кодом.
func (s *Service) CreatePartner(ctx context.Context, userID int64, partnerType model.PartnerType) (*model.Partner, error) {
	if !partnerType.Valid() {
		return nil, ErrInvalidPartnerType
	}

	level := s.opts.Tiers.Of(model.TierL0)
	for range partnerCodeAttempts {
		code, err := s.partnerCodes.Code()
		if err != nil {
			return nil, err
		}

		p, err := s.repo.CreatePartner(ctx, userID, partnerType, code, level)
		if errors.Is(err, repository.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("partner created",
			zap.Int64("partnerID", p.ID),
			zap.Int64("userID", userID),
			zap.String("type", string(partnerType)),
		)
		return p, nil
	}

	return nil, ErrGenerationExhausted
}

// GetPartner возвращает партнёра с балансами.
func (s *Service) GetPartner(ctx context.Context, id int64) (*model.Partner, error) {
	return s.repo.GetPartner(ctx, id)
}

// SetPartnerStatus включает или отключает партнёра.
func (s *Service) SetPartnerStatus(ctx context.Context, id int64, status model.PartnerStatus) error {
	if status != model.PartnerStatusActive && status != model.PartnerStatusInactive {
		return repository.ErrInvalidTransition
	}
	return s.repo.SetPartnerStatus(ctx, id, status)
}
