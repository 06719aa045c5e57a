package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func TestHub_RegisterLimits(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register("u1", nil)
		require.NoError(t, err)
	}
	_, err := hub.Register("u1", nil)
	assert.ErrorIs(t, err, ErrUserLimit)

	_, err = hub.Register("", nil)
	assert.NoError(t, err, "anonymous viewers only count globally")
	assert.Equal(t, maxConnsPerUser+1, hub.Count())
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	client, err := hub.Register("u1", nil)
	require.NoError(t, err)

	hub.UnregisterClient(client)
	hub.UnregisterClient(client)
	assert.Equal(t, 0, hub.Count())

	_, open := <-client.send
	assert.False(t, open, "send channel is closed on unregister")

	_, err = hub.Register("u1", nil)
	assert.NoError(t, err, "slot is released")
}

func TestHub_BroadcastAll(t *testing.T) {
	hub := NewHub()
	a, err := hub.Register("u1", nil)
	require.NoError(t, err)
	b, err := hub.Register("", nil)
	require.NoError(t, err)

	hub.BroadcastAll([]byte("hello"))
	assert.Equal(t, []byte("hello"), <-a.send)
	assert.Equal(t, []byte("hello"), <-b.send)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	client, err := hub.Register("u1", nil)
	require.NoError(t, err)

	for i := 0; i < sendBuffer; i++ {
		assert.True(t, client.TrySend([]byte("x")))
	}
	assert.False(t, client.TrySend([]byte("overflow")))
	assert.Len(t, client.send, sendBuffer)

	hub.UnregisterClient(client)
	assert.NotPanics(t, func() { assert.False(t, client.TrySend([]byte("late"))) })
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	hub := NewHub()
	_, err := hub.Register("u1", nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.Count())

	_, err = hub.Register("u2", nil)
	assert.ErrorIs(t, err, ErrHubShutdown)
}

func TestFeed_LocalDelivery(t *testing.T) {
	hub := NewHub()
	client, err := hub.Register("", nil)
	require.NoError(t, err)

	feed := NewFeed(hub, NewNotifier(nil))
	feed.Publish(context.Background(), Event{Type: EventModelCreated, ModelID: "m1", Title: "Bracket"})

	var got Event
	require.NoError(t, json.Unmarshal(<-client.send, &got))
	assert.Equal(t, EventModelCreated, got.Type)
	assert.Equal(t, "m1", got.ModelID)
	assert.False(t, got.At.IsZero())
}

func TestFeed_RedisFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	notifier := NewNotifier(rdb)
	require.NoError(t, hub.StartWiring(ctx, notifier))

	client, err := hub.Register("", nil)
	require.NoError(t, err)

	NewFeed(hub, notifier).Publish(ctx, Event{Type: EventModelDownloaded, ModelID: "m9"})

	select {
	case msg := <-client.send:
		assert.Contains(t, string(msg), `"model_id":"m9"`)
	case <-time.After(testEventuallyTimeout):
		t.Fatal("event was not delivered through redis")
	}
	assert.Never(t, func() bool { return len(client.send) > 0 }, 10*testPollInterval, testPollInterval,
		"redis delivery is not duplicated locally")
}

func TestFeed_NilSafe(t *testing.T) {
	var f *Feed
	assert.NotPanics(t, func() { f.Publish(context.Background(), Event{Type: EventModelLiked}) })
	assert.NotPanics(t, func() { NopPublisher{}.Publish(context.Background(), Event{}) })
}
