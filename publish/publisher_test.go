package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBroker struct {
	mu       sync.Mutex
	channels []string
	messages []string
	fail     error
	closed   bool
}

func (f *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if f.fail != nil {
		cmd.SetErr(f.fail)
		return cmd
	}
	f.channels = append(f.channels, channel)
	f.messages = append(f.messages, message.(string))
	cmd.SetVal(1)
	return cmd
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestRedisPublishesJSONEnvelope(t *testing.T) {
	b := &fakeBroker{}
	r := newRedis(zap.NewNop().Sugar(), b, RedisOptions{})

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.Publish(Event{Type: TypeMatchStarted, Content: MatchStarted{MatchID: 1, RoomID: 2, Participants: []int32{1, 2}, At: at}})
	r.Publish(Event{Type: TypeMatchEnded, Content: MatchEnded{MatchID: 1, RoomID: 2, Winner: 2, At: at}})
	require.NoError(t, r.Close())

	require.Len(t, b.messages, 2)
	assert.Equal(t, []string{DefaultChannel, DefaultChannel}, b.channels)
	assert.True(t, b.closed)

	var got struct {
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(b.messages[1]), &got))
	assert.Equal(t, TypeMatchEnded, got.Type)
	assert.JSONEq(t, `{"matchId":1,"roomId":2,"winner":2,"at":"2024-05-01T12:00:00Z"}`, string(got.Content))
}

func TestRedisKeepsRunningAfterBrokerError(t *testing.T) {
	b := &fakeBroker{fail: errors.New("connection refused")}
	r := newRedis(zap.NewNop().Sugar(), b, RedisOptions{Channel: "custom"})
	r.Publish(Event{Type: TypeMatchStarted})
	require.NoError(t, r.Close())
	assert.Empty(t, b.messages)
}

func TestRedisIgnoresPublishAfterClose(t *testing.T) {
	b := &fakeBroker{}
	r := newRedis(zap.NewNop().Sugar(), b, RedisOptions{})
	require.NoError(t, r.Close())
	assert.NotPanics(t, func() { r.Publish(Event{Type: TypeMatchEnded}) })
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(Event{Type: TypeMatchStarted})
	assert.NoError(t, p.Close())
}
