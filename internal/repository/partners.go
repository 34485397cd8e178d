package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/partner-ledger/internal/events"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/tier"
)

const partnerColumns = `id, user_id, partner_type, partner_code, tier, commission_rate_l1, commission_rate_l2,
	prepurchase_count, total_referrals, total_l2_referrals, pending_balance, available_balance,
	total_earnings, status, created_at, updated_at`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanPartner(row pgx.Row, extra ...any) (*model.Partner, error) {
	var p model.Partner
	dest := []any{
		&p.ID, &p.UserID, &p.Type, &p.Code, &p.Tier, &p.CommissionRateL1, &p.CommissionRateL2,
		&p.PrepurchaseCount, &p.TotalReferrals, &p.TotalL2Referrals, &p.PendingBalance, &p.AvailableBalance,
		&p.TotalEarnings, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPartnerNotFound
		}
		return nil, fmt.Errorf("scan partner: %w", err)
	}
	return &p, nil
}

// CreatePartner создаёт активного партнёра на уровне L0.
func (r *PostgresRepository) CreatePartner(ctx context.Context, userID int64, partnerType model.PartnerType, code string, level tier.Level) (*model.Partner, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO partners (user_id, partner_type, partner_code, tier, commission_rate_l1, commission_rate_l2, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+partnerColumns,
		userID, string(partnerType), code, int16(level.Tier), level.RateL1, level.RateL2, string(model.PartnerStatusActive),
	)

	p, err := scanPartner(row)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "partners_partner_code_key" {
				return nil, fmt.Errorf("%w: %s", ErrCodeTaken, code)
			}
			return nil, fmt.Errorf("%w: %d", ErrPartnerExists, userID)
		}
		return nil, fmt.Errorf("create partner: %w", err)
	}
	return p, nil
}

// GetPartner возвращает партнёра по идентификатору.
func (r *PostgresRepository) GetPartner(ctx context.Context, id int64) (*model.Partner, error) {
	return scanPartner(r.pool.QueryRow(ctx,
		`SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id))
}

// GetPartnerByCode возвращает партнёра по его партнёрскому коду.
func (r *PostgresRepository) GetPartnerByCode(ctx context.Context, code string) (*model.Partner, error) {
	return scanPartner(r.pool.QueryRow(ctx,
		`SELECT `+partnerColumns+` FROM partners WHERE partner_code = $1`, code))
}

// GetDirectReferrer возвращает партнёра, который привёл пользователя userID, и идентификатор ребра первого уровня.
func (r *PostgresRepository) GetDirectReferrer(ctx context.Context, userID int64) (*model.Partner, int64, error) {
	return directReferrer(ctx, r.pool, userID)
}

func directReferrer(ctx context.Context, q querier, userID int64) (*model.Partner, int64, error) {
	var referralID int64
	p, err := scanPartner(q.QueryRow(ctx,
		`SELECT `+partnerColumns+`, ref.ref_id FROM partners
		 JOIN (SELECT id AS ref_id, partner_id FROM referrals WHERE referred_user_id = $1 AND level = 1) ref
		   ON ref.partner_id = partners.id`,
		userID,
	), &referralID)
	if err != nil {
		return nil, 0, err
	}
	return p, referralID, nil
}

// ListActivePartnersByType возвращает всех активных партнёров указанного типа.
func (r *PostgresRepository) ListActivePartnersByType(ctx context.Context, partnerType model.PartnerType) ([]model.Partner, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+partnerColumns+` FROM partners
		 WHERE partner_type = $1 AND status = $2
		 ORDER BY id`,
		string(partnerType), string(model.PartnerStatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("select partners: %w", err)
	}
	defer rows.Close()

	var res []model.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetPartnerStatus включает или отключает партнёра.
func (r *PostgresRepository) SetPartnerStatus(ctx context.Context, id int64, status model.PartnerStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE partners SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update partner status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPartnerNotFound
	}
	return nil
}

// applyPrepurchase увеличивает счётчик предзакупок и повышает уровень партнёра в транзакции tx.
// Строка партнёра должна быть заблокирована вызывающим.
func applyPrepurchase(ctx context.Context, tx pgx.Tx, p *model.Partner, increment int64, table tier.Table) (tier.Level, error) {
	newCount := p.PrepurchaseCount + increment
	level := table.Promote(p.Tier, newCount)

	_, err := tx.Exec(ctx,
		`UPDATE partners
		 SET prepurchase_count = $2, tier = $3, commission_rate_l1 = $4, commission_rate_l2 = $5, updated_at = now()
		 WHERE id = $1`,
		p.ID, newCount, int16(level.Tier), level.RateL1, level.RateL2,
	)
	if err != nil {
		return tier.Level{}, fmt.Errorf("update partner tier: %w", err)
	}

	if level.Tier > p.Tier {
		err = emit(ctx, tx, events.KindTierPromoted, p.ID, map[string]any{
			"from":              p.Tier.String(),
			"to":                level.Tier.String(),
			"prepurchase_count": newCount,
		})
		if err != nil {
			return tier.Level{}, err
		}
	}

	p.PrepurchaseCount = newCount
	p.Tier = level.Tier
	p.CommissionRateL1 = level.RateL1
	p.CommissionRateL2 = level.RateL2
	return level, nil
}

func lockPartner(ctx context.Context, tx pgx.Tx, id int64) (*model.Partner, error) {
	return scanPartner(tx.QueryRow(ctx,
		`SELECT `+partnerColumns+` FROM partners WHERE id = $1 FOR UPDATE`, id))
}
