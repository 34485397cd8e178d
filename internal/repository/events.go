package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/mmeshcher/partner-ledger/internal/events"
)

// UnpublishedEvents возвращает самые старые неопубликованные события.
func (r *PostgresRepository) UnpublishedEvents(ctx context.Context, limit int) ([]events.Event, error) {
	var rows []struct {
		ID        string    `db:"id"`
		Kind      string    `db:"kind"`
		PartnerID int64     `db:"partner_id"`
		Payload   []byte    `db:"payload"`
		CreatedAt time.Time `db:"created_at"`
	}

	err := pgxscan.Select(ctx, r.pool, &rows,
		`SELECT id::text AS id, kind, partner_id, payload, created_at FROM ledger_events
		 WHERE published_at IS NULL
		 ORDER BY created_at, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}

	res := make([]events.Event, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		res = append(res, events.Event{
			ID:        id,
			Kind:      events.Kind(row.Kind),
			PartnerID: row.PartnerID,
			Payload:   row.Payload,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return res, nil
}

// MarkEventsPublished помечает события как доставленные.
func (r *PostgresRepository) MarkEventsPublished(ctx context.Context, ids []uuid.UUID) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE ledger_events SET published_at = now() WHERE id = ANY($1::uuid[]) AND published_at IS NULL`,
		keys,
	)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}
