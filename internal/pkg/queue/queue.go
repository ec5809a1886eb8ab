package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Queue Redis 列表实现的唤醒队列。任务本身只存在数据库中，
// 这里的消息只用于让调度循环提前执行一次 tick，丢失不影响正确性
type Queue struct {
	client    *redis.Client
	queueName string
}

// WakeMessage 新任务入队或重试时发出的唤醒消息
type WakeMessage struct {
	JobID      string    `json:"job_id"`
	TeamID     string    `json:"team_id"`
	Reason     string    `json:"reason"` // enqueue, retry
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 发送唤醒消息
func (q *Queue) Push(ctx context.Context, msg *WakeMessage) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 阻塞等待唤醒消息，超时返回 nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*WakeMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 超时，无消息
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg WakeMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Drain 清空积压的唤醒消息，一次 tick 会处理所有待领取任务，返回丢弃的条数
func (q *Queue) Drain(ctx context.Context) (int64, error) {
	pipe := q.client.TxPipeline()
	length := pipe.LLen(ctx, q.queueName)
	pipe.Del(ctx, q.queueName)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to drain queue: %w", err)
	}
	return length.Val(), nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
