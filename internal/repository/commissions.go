package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/partner-ledger/internal/events"
	"github.com/mmeshcher/partner-ledger/internal/model"
)

const commissionColumns = `id, partner_id, order_id, order_type, order_amount, commission_rate, commission_amount,
	level, status, confirm_at, confirmed_at, reversed_at, referred_user_id, created_at`

// errBalanceDrift означает расхождение баланса партнёра с его начислениями.
var errBalanceDrift = errors.New("partner pending balance lower than commission amount")

// AccrueCommission записывает ожидающее начисление и увеличивает ожидающий баланс партнёра.
// Повторное начисление по тому же заказу возвращает существующую запись и created == false.
func (r *PostgresRepository) AccrueCommission(ctx context.Context, c model.Commission) (*model.Commission, bool, error) {
	var (
		res     model.Commission
		created bool
	)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		created = false

		p, err := lockPartner(ctx, tx, c.PartnerID)
		if err != nil {
			return err
		}
		if !p.Active() {
			return ErrPartnerInactive
		}

		err = pgxscan.Get(ctx, tx, &res,
			`INSERT INTO commissions (partner_id, order_id, order_type, order_amount, commission_rate,
			     commission_amount, level, status, confirm_at, referred_user_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (partner_id, order_id) DO NOTHING
			 RETURNING `+commissionColumns,
			c.PartnerID, c.OrderID, c.OrderType, c.OrderAmount, c.CommissionRate,
			c.CommissionAmount, c.Level, string(model.CommissionPending), c.ConfirmAt, c.ReferredUserID,
		)
		if err != nil && !pgxscan.NotFound(err) {
			return fmt.Errorf("insert commission: %w", err)
		}

		if pgxscan.NotFound(err) {
			err = pgxscan.Get(ctx, tx, &res,
				`SELECT `+commissionColumns+` FROM commissions WHERE partner_id = $1 AND order_id = $2`,
				c.PartnerID, c.OrderID)
			if err != nil {
				return fmt.Errorf("select existing commission: %w", err)
			}
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE partners SET pending_balance = pending_balance + $2, updated_at = now() WHERE id = $1`,
			c.PartnerID, c.CommissionAmount,
		); err != nil {
			return fmt.Errorf("increment pending balance: %w", err)
		}

		if err := emit(ctx, tx, events.KindCommissionAccrued, c.PartnerID, map[string]any{
			"commission_id":     res.ID,
			"order_id":          res.OrderID,
			"commission_amount": model.DecimalFromCents(res.CommissionAmount),
			"confirm_at":        res.ConfirmAt,
		}); err != nil {
			return err
		}

		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &res, created, nil
}

// DueCommissionIDs возвращает идентификаторы ожидающих начислений с истёкшим сроком удержания,
// идущие после afterID.
func (r *PostgresRepository) DueCommissionIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM commissions
		 WHERE status = $1 AND confirm_at <= $2 AND id > $3
		 ORDER BY id
		 LIMIT $4`,
		string(model.CommissionPending), now, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select due commissions: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect due commissions: %w", err)
	}
	return ids, nil
}

// ConfirmCommission атомарно переводит начисление в confirmed и переносит сумму
// с ожидающего баланса на доступный и в общий заработок.
// Если начисление уже не pending, возвращает ErrAlreadyConfirmed и ничего не меняет.
func (r *PostgresRepository) ConfirmCommission(ctx context.Context, id int64, now time.Time) (*model.Commission, error) {
	var res model.Commission

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := pgxscan.Get(ctx, tx, &res,
			`UPDATE commissions SET status = $2, confirmed_at = $3
			 WHERE id = $1 AND status = $4 AND confirm_at <= $3
			 RETURNING `+commissionColumns,
			id, string(model.CommissionConfirmed), now, string(model.CommissionPending),
		)
		if pgxscan.NotFound(err) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM commissions WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("check commission: %w", err)
			}
			if !exists {
				return ErrCommissionNotFound
			}
			return ErrAlreadyConfirmed
		}
		if err != nil {
			return fmt.Errorf("confirm commission: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE partners
			 SET pending_balance = pending_balance - $2,
			     available_balance = available_balance + $2,
			     total_earnings = total_earnings + $2,
			     updated_at = now()
			 WHERE id = $1 AND pending_balance >= $2`,
			res.PartnerID, res.CommissionAmount,
		)
		if err != nil {
			return fmt.Errorf("move balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("commission %d: %w", id, errBalanceDrift)
		}

		return emit(ctx, tx, events.KindCommissionConfirmed, res.PartnerID, map[string]any{
			"commission_id":     res.ID,
			"order_id":          res.OrderID,
			"commission_amount": model.DecimalFromCents(res.CommissionAmount),
		})
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ReverseCommission отменяет ожидающее начисление и списывает его сумму с ожидающего баланса.
func (r *PostgresRepository) ReverseCommission(ctx context.Context, id int64, reason string, now time.Time) (*model.Commission, error) {
	var res model.Commission

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := pgxscan.Get(ctx, tx, &res,
			`SELECT `+commissionColumns+` FROM commissions WHERE id = $1 FOR UPDATE`, id)
		if pgxscan.NotFound(err) {
			return ErrCommissionNotFound
		}
		if err != nil {
			return fmt.Errorf("select commission: %w", err)
		}

		if !res.Status.CanTransition(model.CommissionReversed) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, res.Status, model.CommissionReversed)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE commissions SET status = $2, reversed_at = $3 WHERE id = $1`,
			id, string(model.CommissionReversed), now,
		); err != nil {
			return fmt.Errorf("reverse commission: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE partners SET pending_balance = pending_balance - $2, updated_at = now()
			 WHERE id = $1 AND pending_balance >= $2`,
			res.PartnerID, res.CommissionAmount,
		)
		if err != nil {
			return fmt.Errorf("decrement pending balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("commission %d: %w", id, errBalanceDrift)
		}

		res.Status = model.CommissionReversed
		res.ReversedAt = &now

		return emit(ctx, tx, events.KindCommissionReversed, res.PartnerID, map[string]any{
			"commission_id":     res.ID,
			"order_id":          res.OrderID,
			"commission_amount": model.DecimalFromCents(res.CommissionAmount),
			"reason":            reason,
		})
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ListCommissions возвращает начисления партнёра, новые первыми.
func (r *PostgresRepository) ListCommissions(ctx context.Context, partnerID int64) ([]model.Commission, error) {
	var res []model.Commission
	err := pgxscan.Select(ctx, r.pool, &res,
		`SELECT `+commissionColumns+` FROM commissions WHERE partner_id = $1 ORDER BY created_at DESC, id DESC`,
		partnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select commissions: %w", err)
	}
	return res, nil
}
