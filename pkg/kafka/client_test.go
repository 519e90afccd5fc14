package kafka

import (
	"context"
	"errors"
	"testing"
	"textlens-go/internal/config"
	"textlens-go/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	err   error
	calls []tasks.ChatIndexTask
}

func (p *stubProcessor) Process(_ context.Context, task tasks.ChatIndexTask) error {
	p.calls = append(p.calls, task)
	return p.err
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestHandleMessage_Success(t *testing.T) {
	mr, rdb := newRedis(t)
	p := &stubProcessor{}

	commit := handleMessage(context.Background(), rdb, p, []byte(`{"chat_id":"c1","user_id":3,"action":"index"}`))

	assert.True(t, commit)
	require.Len(t, p.calls, 1)
	assert.Equal(t, tasks.ChatIndexTask{ChatID: "c1", UserID: 3, Action: tasks.ActionIndex}, p.calls[0])
	assert.False(t, mr.Exists("kafka:attempts:index:c1"))
}

func TestHandleMessage_MalformedIsCommitted(t *testing.T) {
	_, rdb := newRedis(t)
	p := &stubProcessor{}

	assert.True(t, handleMessage(context.Background(), rdb, p, []byte(`not json`)))
	assert.Empty(t, p.calls)
}

func TestHandleMessage_RetriesThenGivesUp(t *testing.T) {
	mr, rdb := newRedis(t)
	p := &stubProcessor{err: errors.New("es down")}
	msg := []byte(`{"chat_id":"c1","action":"index"}`)

	assert.False(t, handleMessage(context.Background(), rdb, p, msg))
	assert.False(t, handleMessage(context.Background(), rdb, p, msg))
	got, err := mr.Get("kafka:attempts:index:c1")
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	assert.True(t, handleMessage(context.Background(), rdb, p, msg))
	assert.Len(t, p.calls, 3)
	assert.False(t, mr.Exists("kafka:attempts:index:c1"))
}

func TestHandleMessage_RedisDownKeepsOffset(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	p := &stubProcessor{err: errors.New("es down")}

	assert.False(t, handleMessage(context.Background(), rdb, p, []byte(`{"chat_id":"c1","action":"delete"}`)))
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(config.KafkaConfig{Brokers: " a:9092, ,b:9092"}))
}
