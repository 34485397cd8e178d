package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/repository"
)

// AccrualResult описывает итог начисления одному партнёру.
type AccrualResult struct {
	PartnerID    int64
	CommissionID int64
	Amount       int64
	Level        *int
	// Duplicate означает, что начисление по этому заказу уже было.
	Duplicate bool
	// Skipped означает, что комиссия после округления равна нулю и не начислялась.
	Skipped bool
	Err       error
}

// OK сообщает, что начисление не завершилось ошибкой. Пропущенные нулевые комиссии тоже OK.
func (r AccrualResult) OK() bool {
	return r.Err == nil
}

type accrualTarget struct {
	partner        model.Partner
	rate           decimal.Decimal
	level          *int
	referredUserID *int64
}

// AccrueCommission начисляет комиссии по завершённому заказу согласно настройкам продукта.
// Каждое начисление партнёру выполняется отдельной транзакцией, и сбой одного не откатывает остальные.
// Повторный вызов для того же заказа не создаёт дублей.
func (s *Service) AccrueCommission(ctx context.Context, order model.Order) ([]AccrualResult, error) {
	order.ID = strings.TrimSpace(order.ID)
	if order.ID == "" || order.Amount <= 0 {
		return nil, ErrInvalidOrder
	}

	configs, err := s.catalog.CommissionConfigs(ctx, order.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load commission configs: %w", err)
	}

	var results []AccrualResult
	for _, cfg := range configs {
		if !cfg.Enabled || !cfg.Rate.IsPositive() {
			continue
		}

		targets, err := s.resolveTargets(ctx, cfg, order)
		if err != nil {
			s.logger.Error("resolve commission targets",
				zap.Error(err),
				zap.String("order", order.ID),
				zap.String("type", string(cfg.Type)),
			)
			s.metrics.CommissionsAccrued.WithLabelValues("failed").Inc()
			results = append(results, AccrualResult{Err: err})
			continue
		}

		for _, t := range targets {
			results = append(results, s.accrueOne(ctx, order, t))
		}
	}

	return results, nil
}

func (s *Service) accrueOne(ctx context.Context, order model.Order, t accrualTarget) AccrualResult {
	res := AccrualResult{PartnerID: t.partner.ID, Level: t.level}

	amount, err := model.CommissionCents(order.Amount, t.rate)
	if err != nil {
		s.logger.Error("commission amount out of range",
			zap.String("order", order.ID),
			zap.Int64("partnerID", t.partner.ID),
			zap.String("rate", t.rate.String()),
		)
		s.metrics.CommissionsAccrued.WithLabelValues("failed").Inc()
		res.Err = err
		return res
	}
	if amount <= 0 {
		s.metrics.CommissionsAccrued.WithLabelValues("skipped").Inc()
		res.Skipped = true
		return res
	}

	c, created, err := s.repo.AccrueCommission(ctx, model.Commission{
		PartnerID:        t.partner.ID,
		OrderID:          order.ID,
		OrderType:        order.Type,
		OrderAmount:      order.Amount,
		CommissionRate:   t.rate,
		CommissionAmount: amount,
		Level:            t.level,
		Status:           model.CommissionPending,
		ConfirmAt:        s.now().Add(s.opts.HoldingPeriod),
		ReferredUserID:   t.referredUserID,
	})
	if err != nil {
		s.logger.Error("accrue commission",
			zap.Error(err),
			zap.String("order", order.ID),
			zap.Int64("partnerID", t.partner.ID),
		)
		s.metrics.CommissionsAccrued.WithLabelValues("failed").Inc()
		res.Err = err
		return res
	}

	res.CommissionID = c.ID
	res.Amount = c.CommissionAmount
	res.Duplicate = !created
	if created {
		s.metrics.CommissionsAccrued.WithLabelValues("created").Inc()
		s.metrics.CommissionAmount.Add(model.Float(c.CommissionAmount))
	} else {
		s.metrics.CommissionsAccrued.WithLabelValues("duplicate").Inc()
	}
	return res
}

// resolveTargets определяет получателей комиссии для одной настройки продукта.
func (s *Service) resolveTargets(ctx context.Context, cfg model.CommissionConfig, order model.Order) ([]accrualTarget, error) {
	switch cfg.Target {
	case model.TargetAllPartners:
		partners, err := s.repo.ListActivePartnersByType(ctx, cfg.Type)
		if err != nil {
			return nil, fmt.Errorf("list partners: %w", err)
		}
		targets := make([]accrualTarget, 0, len(partners))
		for _, p := range partners {
			targets = append(targets, accrualTarget{partner: p, rate: cfg.Rate})
		}
		return targets, nil

	case model.TargetReferrer, "":
		return s.referrerTargets(ctx, cfg, order)

	default:
		return nil, fmt.Errorf("unknown commission target %q", cfg.Target)
	}
}

// referrerTargets возвращает прямого реферера покупателя и реферера этого реферера.
// Ставка настройки продукта здесь только допускает начисление, а сумма считается
// по ставкам уровня партнёра (commission_rate_l1 и commission_rate_l2).
// Второй уровень получает комиссию, только если её получает первый.
func (s *Service) referrerTargets(ctx context.Context, cfg model.CommissionConfig, order model.Order) ([]accrualTarget, error) {
	direct, _, err := s.repo.GetDirectReferrer(ctx, order.BuyerID)
	if err != nil {
		if errors.Is(err, repository.ErrPartnerNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find referrer: %w", err)
	}

	if direct.Type != cfg.Type || !direct.Active() {
		return nil, nil
	}

	buyer := order.BuyerID
	targets := []accrualTarget{{
		partner:        *direct,
		rate:           direct.CommissionRateL1,
		level:          intPtr(1),
		referredUserID: &buyer,
	}}

	upstream, _, err := s.repo.GetDirectReferrer(ctx, direct.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrPartnerNotFound) {
			return targets, nil
		}
		return nil, fmt.Errorf("find upstream referrer: %w", err)
	}
	if upstream.Type == cfg.Type && upstream.Active() && upstream.UserID != buyer {
		targets = append(targets, accrualTarget{
			partner:        *upstream,
			rate:           upstream.CommissionRateL2,
			level:          intPtr(2),
			referredUserID: &buyer,
		})
	}

	return targets, nil
}

// ReverseCommission отменяет неподтверждённое начисление (возврат заказа).
func (s *Service) ReverseCommission(ctx context.Context, id int64, reason string) (*model.Commission, error) {
	return s.repo.ReverseCommission(ctx, id, strings.TrimSpace(reason), s.now())
}

// ListCommissions возвращает начисления партнёра.
func (s *Service) ListCommissions(ctx context.Context, partnerID int64) ([]model.Commission, error) {
	return s.repo.ListCommissions(ctx, partnerID)
}

func intPtr(v int) *int {
	return &v
}
