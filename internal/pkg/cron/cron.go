// Package cron 驱动调度循环：带抖动的定时 tick，以及收到唤醒消息时的提前 tick
package cron

import (
	"context"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/internal/pkg/queue"
)

const wakePollTimeout = 5 * time.Second

// TickFunc 执行一次调度
type TickFunc func(ctx context.Context) error

// WakeSource 唤醒消息来源
type WakeSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.WakeMessage, error)
	Drain(ctx context.Context) (int64, error)
}

type Service struct {
	tick     TickFunc
	wake     WakeSource
	interval time.Duration
	jitter   time.Duration

	tickMu   sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *zap.SugaredLogger
}

// NewService wake 为 nil 时只按固定周期 tick
func NewService(tick TickFunc, wake WakeSource, interval, jitter time.Duration) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		tick:     tick,
		wake:     wake,
		interval: interval,
		jitter:   jitter,
		stopChan: make(chan struct{}),
		log:      zap.S().Named("scheduler"),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.stopChan
		cancel()
	}()

	s.wg.Add(1)
	go s.runTicker(ctx)

	if s.wake != nil {
		s.wg.Add(1)
		go s.runWakeListener(ctx)
	}
	s.log.Infow("scheduler started", "interval", s.interval, "jitter", s.jitter, "wake", s.wake != nil)
}

// Stop 停止定时任务并等待循环退出，正在执行的 tick 会先完成
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Service) runTicker(ctx context.Context) {
	defer s.wg.Done()

	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: s.jitter, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce(ctx, "interval")
		}
	}
}

func (s *Service) runWakeListener(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		msg, err := s.wake.Pop(ctx, wakePollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warnw("wake queue pop failed", "error", err)
			select {
			case <-s.stopChan:
				return
			case <-time.After(wakePollTimeout):
			}
			continue
		}
		if msg == nil {
			continue
		}

		// 一次 tick 会领取所有待处理任务，积压的唤醒消息直接丢弃
		if dropped, err := s.wake.Drain(ctx); err != nil {
			s.log.Warnw("wake queue drain failed", "error", err)
		} else if dropped > 0 {
			s.log.Debugw("wake messages coalesced", "dropped", dropped)
		}
		s.runOnce(ctx, msg.Reason)
	}
}

func (s *Service) runOnce(ctx context.Context, trigger string) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if err := s.tick(ctx); err != nil {
		s.log.Errorw("dispatch tick failed", "trigger", trigger, "error", err)
	}
}

// RunNow 立即执行一次 tick（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.tick(ctx)
}
