package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	events    []Event
	published map[uuid.UUID]bool
}

func (s *memStore) UnpublishedEvents(_ context.Context, limit int) ([]Event, error) {
	var out []Event
	for _, e := range s.events {
		if s.published[e.ID] {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) MarkEventsPublished(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		s.published[id] = true
	}
	return nil
}

type recordingPublisher struct {
	got    []Event
	failAt int
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	if p.failAt > 0 && len(p.got)+1 == p.failAt {
		p.failAt = 0
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, e)
	return nil
}

func newStore(t *testing.T, n int) *memStore {
	t.Helper()
	s := &memStore{published: make(map[uuid.UUID]bool)}
	for i := 0; i < n; i++ {
		e, err := New(KindCommissionAccrued, int64(i+1), map[string]int{"n": i})
		require.NoError(t, err)
		s.events = append(s.events, e)
	}
	return s
}

func TestRelayPublishesAllBatches(t *testing.T) {
	store := newStore(t, relayBatchSize+5)
	pub := &recordingPublisher{}

	n, err := NewRelay(store, pub, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, relayBatchSize+5, n)
	assert.Len(t, pub.got, relayBatchSize+5)

	n, err = NewRelay(store, pub, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "published events must not be sent again")
}

func TestRelayStopsOnPublishFailure(t *testing.T) {
	store := newStore(t, 5)
	pub := &recordingPublisher{failAt: 3}
	relay := NewRelay(store, pub, zap.NewNop())

	n, err := relay.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Порядок доставки сохраняется.
	for i, e := range pub.got {
		assert.Equal(t, store.events[i].ID, e.ID)
	}
}

func TestNewEventPayload(t *testing.T) {
	e, err := New(KindWithdrawalRequested, 7, map[string]int64{"amount": 500})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, int64(7), e.PartnerID)
	assert.JSONEq(t, `{"amount":500}`, string(e.Payload))

	_, err = New(KindWithdrawalRequested, 7, make(chan int))
	assert.Error(t, err)
}
