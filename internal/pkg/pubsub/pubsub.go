package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelJobEvents = "tagging_job_events"
)

// 事件类型
const (
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
)

// JobEvent 任务进入终态时发布的消息
type JobEvent struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	TeamID    string    `json:"team_id"`
	AssetID   string    `json:"asset_id"`
	Status    string    `json:"status"`
	TopScore  int       `json:"top_score,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishJobEvent 发布任务事件，未设置类型时按状态推断
func (p *Publisher) PublishJobEvent(ctx context.Context, event *JobEvent) error {
	if event.Type == "" {
		switch event.Status {
		case "completed":
			event.Type = EventJobCompleted
		case "failed":
			event.Type = EventJobFailed
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	return p.client.Publish(ctx, ChannelJobEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscription 已确认的订阅，调用方负责 Close
type Subscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	C    <-chan *JobEvent
}

// Close 取消订阅
func (s *Subscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ps.Close()
}

// Listen 订阅任务事件，返回前确保订阅已在服务端生效
func (s *Subscriber) Listen(ctx context.Context) (*Subscription, error) {
	ps := s.client.Subscribe(ctx, ChannelJobEvents)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe job events: %w", err)
	}

	out := make(chan *JobEvent, 16)
	sub := &Subscription{ps: ps, done: make(chan struct{}), C: out}
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var event JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}
			select {
			case out <- &event:
			case <-sub.done:
				return
			}
		}
	}()

	return sub, nil
}

// Subscribe 阻塞消费任务事件直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*JobEvent)) error {
	sub, err := s.Listen(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.C:
			if !ok {
				return nil
			}
			handler(event)
		}
	}
}
