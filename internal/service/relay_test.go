package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bookstore/internal/events"
	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
)

type stubPublisher struct {
	published [][]events.Event
	err       error
}

func (p *stubPublisher) Publish(ctx context.Context, batch []events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, batch)
	return nil
}

func TestRelayEventBatch_PublishesAndMarksSent(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedUser(t, repo, "alice", model.RoleCustomer)
	seedBook(t, repo, "B1", "Go in Action", 5)

	pub := &stubPublisher{}
	svc := NewService(repo, pub, nil, WithClock(func() time.Time { return fixedNow }))

	purchase, err := svc.Checkout(context.Background(), "alice", []model.CartItem{{BookID: "B1", Quantity: 2}})
	require.NoError(t, err)

	n, err := svc.relayEventBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.published, 1)
	require.Len(t, pub.published[0], 1)

	evt := pub.published[0][0]
	assert.Equal(t, repository.EventPurchaseCompleted, evt.Type)
	assert.Equal(t, "alice", evt.Key)

	var payload model.PurchaseEvent
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, purchase.ID, payload.PurchaseID)
	assert.Equal(t, evt.ID, payload.EventID)
	assert.Equal(t, "25", payload.Total.String())

	n, err = svc.relayEventBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "events must not be published twice")
}

func TestRelayEventBatch_KeepsEventsOnPublishError(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedUser(t, repo, "alice", model.RoleCustomer)
	seedBook(t, repo, "B1", "Go in Action", 5)

	pub := &stubPublisher{err: errors.New("broker unavailable")}
	svc := NewService(repo, pub, nil)

	_, err := svc.Checkout(context.Background(), "alice", []model.CartItem{{BookID: "B1", Quantity: 1}})
	require.NoError(t, err)

	_, err = svc.relayEventBatch(context.Background())
	require.Error(t, err)

	pending, err := repo.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRunEventRelay_NoPublisher(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.RunEventRelay(ctx, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		require.Fail(t, "RunEventRelay did not return without publisher")
	}
}
