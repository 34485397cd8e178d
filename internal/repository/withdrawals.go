package repository

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/partner-ledger/internal/events"
	"github.com/mmeshcher/partner-ledger/internal/model"
)

const withdrawalColumns = `id, partner_id, amount, payment_method, payment_info, status, reject_reason, created_at, updated_at`

// CreateWithdrawal создаёт заявку на вывод и списывает сумму с доступного баланса.
// Использует блокировку строки партнёра для сериализации выводов: заявка без списания
// баланса не может сохраниться.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, partnerID, amount int64, method model.PaymentMethod, info string) (*model.Withdrawal, error) {
	var res model.Withdrawal

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockPartner(ctx, tx, partnerID)
		if err != nil {
			return err
		}
		if !p.Active() {
			return ErrPartnerInactive
		}

		if amount > p.AvailableBalance {
			return &InsufficientBalanceError{Available: p.AvailableBalance, Requested: amount}
		}

		err = pgxscan.Get(ctx, tx, &res,
			`INSERT INTO withdrawals (partner_id, amount, payment_method, payment_info, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+withdrawalColumns,
			partnerID, amount, string(method), info, string(model.WithdrawalPending),
		)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE partners SET available_balance = available_balance - $2, updated_at = now()
			 WHERE id = $1 AND available_balance >= $2`,
			partnerID, amount,
		)
		if err != nil {
			if checkViolation(err) {
				return &InsufficientBalanceError{Available: p.AvailableBalance, Requested: amount}
			}
			return fmt.Errorf("decrement available balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &InsufficientBalanceError{Available: p.AvailableBalance, Requested: amount}
		}

		return emit(ctx, tx, events.KindWithdrawalRequested, partnerID, map[string]any{
			"withdrawal_id":  res.ID,
			"amount":         model.DecimalFromCents(amount),
			"payment_method": method,
		})
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// UpdateWithdrawalStatus меняет статус заявки по таблице переходов.
// Отклонение возвращает сумму заявки на доступный баланс в той же транзакции.
func (r *PostgresRepository) UpdateWithdrawalStatus(ctx context.Context, id int64, next model.WithdrawalStatus, reason string) (*model.Withdrawal, error) {
	var res model.Withdrawal

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := pgxscan.Get(ctx, tx, &res,
			`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
		if pgxscan.NotFound(err) {
			return ErrWithdrawalNotFound
		}
		if err != nil {
			return fmt.Errorf("select withdrawal: %w", err)
		}

		prev := res.Status
		if !prev.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
		}

		var rejectReason *string
		if next == model.WithdrawalRejected {
			rejectReason = &reason
		}

		err = pgxscan.Get(ctx, tx, &res,
			`UPDATE withdrawals SET status = $2, reject_reason = COALESCE($3, reject_reason), updated_at = now()
			 WHERE id = $1
			 RETURNING `+withdrawalColumns,
			id, string(next), rejectReason,
		)
		if err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}

		if next.RestoresBalance() {
			if _, err := tx.Exec(ctx,
				`UPDATE partners SET available_balance = available_balance + $2, updated_at = now() WHERE id = $1`,
				res.PartnerID, res.Amount,
			); err != nil {
				return fmt.Errorf("restore available balance: %w", err)
			}
		}

		return emit(ctx, tx, events.KindWithdrawalStatusChanged, res.PartnerID, map[string]any{
			"withdrawal_id": res.ID,
			"from":          prev,
			"to":            next,
			"amount":        model.DecimalFromCents(res.Amount),
			"reason":        reason,
		})
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ListWithdrawals возвращает историю заявок партнёра.
func (r *PostgresRepository) ListWithdrawals(ctx context.Context, partnerID int64) ([]model.Withdrawal, error) {
	var res []model.Withdrawal
	err := pgxscan.Select(ctx, r.pool, &res,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE partner_id = $1 ORDER BY created_at DESC, id DESC`,
		partnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	return res, nil
}
