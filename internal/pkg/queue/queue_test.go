package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestQueue_PushPop(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_wake")
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, &WakeMessage{JobID: "job-1", TeamID: "team-1", Reason: "enqueue"}))
	require.NoError(t, q.Push(ctx, &WakeMessage{JobID: "job-2", TeamID: "team-1", Reason: "retry"}))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	// FIFO: LPUSH + BRPOP
	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "job-1", first.JobID)
	assert.Equal(t, "enqueue", first.Reason)
	assert.False(t, first.EnqueuedAt.IsZero())

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "job-2", second.JobID)
}

func TestQueue_PopTimeout(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_wake")

	msg, err := q.Pop(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestQueue_PopInvalidPayload(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_wake")
	_, err := mr.Lpush("test_wake", "not json")
	require.NoError(t, err)

	_, err = q.Pop(context.Background(), time.Second)
	assert.Error(t, err)
}

func TestQueue_Drain(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_wake")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, &WakeMessage{JobID: "job"}))
	}

	n, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, length)
}
