package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/partner-ledger/internal/events"
	"github.com/mmeshcher/partner-ledger/internal/model"
)

var (
	// ErrPartnerInactive возвращается, если партнёр отключён.
	ErrPartnerInactive = errors.New("partner is inactive")
	// ErrSelfReferral возвращается, если партнёр пытается привести собственного пользователя.
	ErrSelfReferral = errors.New("partner cannot refer its own user")
)

const referralColumns = `id, partner_id, referred_user_id, level, parent_referral_id, created_at`

// AttributeDirect закрепляет пользователя за партнёром с кодом code (ребро первого уровня).
// Если пользователь уже закреплён, возвращает существующее ребро и created == false.
func (r *PostgresRepository) AttributeDirect(ctx context.Context, code string, userID int64) (*model.Referral, *model.Partner, bool, error) {
	var (
		edge    *model.Referral
		partner *model.Partner
		created bool
	)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		created = false

		// Строка партнёра блокируется на запись сразу: ниже она обновляется,
		// а повышение разделяемой блокировки взаимоблокирует параллельные привязки.
		p, err := scanPartner(tx.QueryRow(ctx,
			`SELECT `+partnerColumns+` FROM partners WHERE partner_code = $1 FOR NO KEY UPDATE`, code))
		if err != nil {
			return err
		}
		if !p.Active() {
			return ErrPartnerInactive
		}
		if p.UserID == userID {
			return ErrSelfReferral
		}
		partner = p

		var ref model.Referral
		err = pgxscan.Get(ctx, tx, &ref,
			`INSERT INTO referrals (partner_id, referred_user_id, level)
			 VALUES ($1, $2, 1)
			 ON CONFLICT DO NOTHING
			 RETURNING `+referralColumns,
			p.ID, userID,
		)
		if err != nil && !pgxscan.NotFound(err) {
			return fmt.Errorf("insert direct referral: %w", err)
		}

		if pgxscan.NotFound(err) {
			// Первое закрепление навсегда, повторные события ничего не меняют.
			err = pgxscan.Get(ctx, tx, &ref,
				`SELECT `+referralColumns+` FROM referrals WHERE referred_user_id = $1 AND level = 1`, userID)
			if err != nil {
				return fmt.Errorf("select direct referral: %w", err)
			}
			if ref.PartnerID != p.ID {
				owner, err := scanPartner(tx.QueryRow(ctx,
					`SELECT `+partnerColumns+` FROM partners WHERE id = $1`, ref.PartnerID))
				if err != nil {
					return err
				}
				partner = owner
			}
			edge = &ref
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE partners SET total_referrals = total_referrals + 1, updated_at = now() WHERE id = $1`,
			p.ID,
		); err != nil {
			return fmt.Errorf("increment total_referrals: %w", err)
		}
		p.TotalReferrals++

		if err := emit(ctx, tx, events.KindReferralAttributed, p.ID, map[string]any{
			"referral_id":      ref.ID,
			"referred_user_id": userID,
			"level":            1,
		}); err != nil {
			return err
		}

		edge = &ref
		created = true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}

	return edge, partner, created, nil
}

// AttributeUpstream создаёт ребро второго уровня для партнёра, который привёл владельца direct.
// Возвращает nil, если владелец партнёра direct сам никем не приведён.
func (r *PostgresRepository) AttributeUpstream(ctx context.Context, direct *model.Referral, directPartner *model.Partner) (*model.Referral, bool, error) {
	var (
		edge    *model.Referral
		created bool
	)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		edge, created = nil, false

		upstream, _, err := directReferrer(ctx, tx, directPartner.UserID)
		if err != nil {
			if errors.Is(err, ErrPartnerNotFound) {
				return nil
			}
			return fmt.Errorf("find upstream partner: %w", err)
		}
		if upstream.UserID == direct.ReferredUserID {
			return nil
		}

		var ref model.Referral
		err = pgxscan.Get(ctx, tx, &ref,
			`INSERT INTO referrals (partner_id, referred_user_id, level, parent_referral_id)
			 VALUES ($1, $2, 2, $3)
			 ON CONFLICT DO NOTHING
			 RETURNING `+referralColumns,
			upstream.ID, direct.ReferredUserID, direct.ID,
		)
		if err != nil && !pgxscan.NotFound(err) {
			return fmt.Errorf("insert upstream referral: %w", err)
		}

		if pgxscan.NotFound(err) {
			err = pgxscan.Get(ctx, tx, &ref,
				`SELECT `+referralColumns+` FROM referrals
				 WHERE partner_id = $1 AND referred_user_id = $2 AND level = 2`,
				upstream.ID, direct.ReferredUserID)
			if err != nil {
				return fmt.Errorf("select upstream referral: %w", err)
			}
			edge = &ref
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE partners SET total_l2_referrals = total_l2_referrals + 1, updated_at = now() WHERE id = $1`,
			upstream.ID,
		); err != nil {
			return fmt.Errorf("increment total_l2_referrals: %w", err)
		}

		if err := emit(ctx, tx, events.KindReferralAttributed, upstream.ID, map[string]any{
			"referral_id":        ref.ID,
			"referred_user_id":   direct.ReferredUserID,
			"level":              2,
			"parent_referral_id": direct.ID,
		}); err != nil {
			return err
		}

		edge = &ref
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return edge, created, nil
}

// ListReferrals возвращает рёбра, в которых партнёр выступает реферером.
func (r *PostgresRepository) ListReferrals(ctx context.Context, partnerID int64) ([]model.Referral, error) {
	var res []model.Referral
	err := pgxscan.Select(ctx, r.pool, &res,
		`SELECT `+referralColumns+` FROM referrals WHERE partner_id = $1 ORDER BY created_at DESC, id DESC`,
		partnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select referrals: %w", err)
	}
	return res, nil
}
