// Package events описывает доменные события леджера и их доставку внешним потребителям.
//
// События записываются в таблицу ledger_events в той же транзакции, что и изменение
// балансов, а Relay позже передаёт их Publisher. Поэтому уведомления никогда не
// вызываются синхронно из транзакции леджера.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind описывает тип доменного события.
type Kind string

const (
	KindReferralAttributed      Kind = "referral.attributed"
	KindCommissionAccrued       Kind = "commission.accrued"
	KindCommissionConfirmed     Kind = "commission.confirmed"
	KindCommissionReversed      Kind = "commission.reversed"
	KindWithdrawalRequested     Kind = "withdrawal.requested"
	KindWithdrawalStatusChanged Kind = "withdrawal.status_changed"
	KindTierPromoted            Kind = "tier.promoted"
	KindCodesIssued             Kind = "codes.issued"
)

// Event описывает запись исходящего события.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Kind      Kind            `json:"kind"`
	PartnerID int64           `json:"partner_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New создаёт событие с новым идентификатором и сериализованной нагрузкой.
func New(kind Kind, partnerID int64, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		PartnerID: partnerID,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Publisher доставляет событие потребителям.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Store описывает хранилище исходящих событий.
type Store interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]Event, error)
	MarkEventsPublished(ctx context.Context, ids []uuid.UUID) error
}

// LogPublisher пишет события в журнал. Используется, когда брокер не настроен.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт публикатор, пишущий события в журнал.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish записывает событие в журнал.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("ledger event",
		zap.String("id", e.ID.String()),
		zap.String("kind", string(e.Kind)),
		zap.Int64("partnerID", e.PartnerID),
		zap.ByteString("payload", e.Payload),
	)
	return nil
}
