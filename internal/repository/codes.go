package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/partner-ledger/internal/events"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/tier"
)

// IssuedCodes возвращает те из кандидатов, которые уже выпущены как коды погашения или партнёрские коды.
func (r *PostgresRepository) IssuedCodes(ctx context.Context, candidates []string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT code FROM redemption_codes WHERE code = ANY($1)
		 UNION
		 SELECT partner_code FROM partners WHERE partner_code = ANY($1)`,
		candidates,
	)
	if err != nil {
		return nil, fmt.Errorf("select issued codes: %w", err)
	}

	taken, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect issued codes: %w", err)
	}

	res := make(map[string]bool, len(taken))
	for _, c := range taken {
		res[c] = true
	}
	return res, nil
}

// IssueRedemptionCodes сохраняет пачку кодов и учитывает их как предзакупку партнёра,
// пересчитывая уровень. Всё выполняется в одной транзакции: либо выпущены все коды, либо ни одного.
func (r *PostgresRepository) IssueRedemptionCodes(ctx context.Context, partnerID int64, codes []string, expiresAt time.Time, table tier.Table) (*model.Partner, error) {
	var partner *model.Partner

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockPartner(ctx, tx, partnerID)
		if err != nil {
			return err
		}
		if !p.Active() {
			return ErrPartnerInactive
		}

		rows := make([][]any, 0, len(codes))
		for _, c := range codes {
			rows = append(rows, []any{c, partnerID, string(model.CodeAvailable), expiresAt})
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"redemption_codes"},
			[]string{"code", "partner_id", "status", "expires_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			if _, ok := uniqueViolation(err); ok {
				return ErrCodeTaken
			}
			return fmt.Errorf("insert redemption codes: %w", err)
		}

		if _, err := applyPrepurchase(ctx, tx, p, int64(len(codes)), table); err != nil {
			return err
		}

		if err := emit(ctx, tx, events.KindCodesIssued, partnerID, map[string]any{
			"count":      len(codes),
			"expires_at": expiresAt,
		}); err != nil {
			return err
		}

		partner = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return partner, nil
}

// ExpireRedemptionCodes помечает истёкшие доступные коды как expired и возвращает их количество.
func (r *PostgresRepository) ExpireRedemptionCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE redemption_codes SET status = $1 WHERE status = $2 AND expires_at <= $3`,
		string(model.CodeExpired), string(model.CodeAvailable), now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire redemption codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
