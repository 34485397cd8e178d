package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const relayBatchSize = 200

// Relay переносит неопубликованные события из хранилища в Publisher.
type Relay struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
}

// NewRelay создаёт ретранслятор событий.
func NewRelay(store Store, publisher Publisher, logger *zap.Logger) *Relay {
	return &Relay{store: store, publisher: publisher, logger: logger}
}

// Run публикует накопившиеся события и возвращает число доставленных.
// Доставка «хотя бы один раз»: событие помечается только после успешной публикации.
func (r *Relay) Run(ctx context.Context) (int, error) {
	total := 0
	for {
		batch, err := r.store.UnpublishedEvents(ctx, relayBatchSize)
		if err != nil {
			return total, fmt.Errorf("load events: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		published := make([]uuid.UUID, 0, len(batch))
		for _, e := range batch {
			if err := r.publisher.Publish(ctx, e); err != nil {
				r.logger.Warn("publish event failed", zap.String("id", e.ID.String()), zap.Error(err))
				break
			}
			published = append(published, e.ID)
		}

		if len(published) > 0 {
			if err := r.store.MarkEventsPublished(ctx, published); err != nil {
				return total, fmt.Errorf("mark events published: %w", err)
			}
		}
		total += len(published)

		// Публикатор отказал на середине пачки, остаток повторим на следующем запуске.
		if len(published) < len(batch) {
			return total, nil
		}
	}
}

// RedisPublisher публикует события в канал Redis.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher создаёт публикатор в канал channel.
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish отправляет событие в канал.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
