package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCodec(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	in := Event{
		Type:      TypePhaseCompleted,
		UserID:    "u-1",
		SessionID: "s-1",
		Payload:   json.RawMessage(`{"status":"IN_PROGRESS"}`),
		At:        at,
		Origin:    "node-a",
	}

	raw, err := encodeEvent(in)
	require.NoError(t, err)

	out, err := decodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.JSONEq(t, `{"status":"IN_PROGRESS"}`, string(out.Payload))
	assert.True(t, at.Equal(out.At))

	_, err = decodeEvent([]byte(`{"type":"phase_completed"}`))
	assert.Error(t, err)
	_, err = decodeEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestRelayHandleSkipsOwnAndForeignEvents(t *testing.T) {
	local := NewBroker(4)
	defer local.Close()
	sub, err := local.Subscribe("u-1")
	require.NoError(t, err)

	relay := NewRedisRelay(nil, local, "node-a")

	encode := func(e Event) []byte {
		raw, err := encodeEvent(e)
		require.NoError(t, err)
		return raw
	}

	relay.handle(redis.Message{Channel: channelFor("u-1"), Data: encode(Event{UserID: "u-1", Origin: "node-a"})})
	relay.handle(redis.Message{Channel: channelFor("u-2"), Data: encode(Event{UserID: "u-1", Origin: "node-b"})})
	relay.handle(redis.Message{Channel: channelFor("u-1"), Data: []byte("garbage")})
	assert.Len(t, sub.Events(), 0)

	relay.handle(redis.Message{Channel: channelFor("u-1"), Data: encode(Event{UserID: "u-1", SessionID: "s-9", Origin: "node-b"})})
	require.Len(t, sub.Events(), 1)
	assert.Equal(t, "s-9", (<-sub.Events()).SessionID)
}

func TestRedisRelayAcrossInstances(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewRedisPool(addr)
	defer pool.Close()

	brokerA, brokerB := NewBroker(4), NewBroker(4)
	defer brokerA.Close()
	defer brokerB.Close()
	relayA := NewRedisRelay(pool, brokerA, "node-a")
	relayB := NewRedisRelay(pool, brokerB, "node-b")

	errs := make(chan error, 1)
	go func() { errs <- relayB.Run(ctx) }()

	sub, err := brokerB.Subscribe("u-1")
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		relayA.Publish(ctx, Event{Type: TypePhaseCompleted, UserID: "u-1", SessionID: "s-1"})
		select {
		case got := <-sub.Events():
			assert.Equal(t, "s-1", got.SessionID)
			assert.Equal(t, "node-a", got.Origin)
			cancel()
			assert.NoError(t, <-errs)
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("event did not cross instances")
		}
	}
}
