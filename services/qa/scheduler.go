package qa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"washflow/services/tasks"
	"washflow/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AsynqScheduler persists each auto-approval deadline as a ProcessAt task.
// The task id is derived from order and deadline, so scheduling the same
// deadline twice is harmless.
type AsynqScheduler struct {
	Client *asynq.Client
	Logger *zap.Logger
}

func NewAsynqScheduler(client *asynq.Client, logger *zap.Logger) *AsynqScheduler {
	return &AsynqScheduler{Client: client, Logger: utils.LoggerOrNop(logger)}
}

func (s *AsynqScheduler) ScheduleAutoApproval(ctx context.Context, orderID string, at time.Time) error {
	task, opts, err := tasks.NewQAAutoApproveTask(orderID, at)
	if err != nil {
		return err
	}
	info, err := s.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue auto-approval for %s: %w", orderID, err)
	}
	s.Logger.Debug("auto-approval scheduled", zap.String("orderId", orderID), zap.Time("at", at), zap.String("taskId", info.ID))
	return nil
}

// LocalScheduler keeps wake-ups in process memory. The recovery sweep
// re-derives them after a restart.
type LocalScheduler struct {
	Clock  utils.Clock
	Fire   func(ctx context.Context, orderID string) error
	Logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewLocalScheduler(clock utils.Clock, fire func(ctx context.Context, orderID string) error, logger *zap.Logger) *LocalScheduler {
	return &LocalScheduler{Clock: clock, Fire: fire, Logger: utils.LoggerOrNop(logger), timers: map[string]*time.Timer{}}
}

func (s *LocalScheduler) ScheduleAutoApproval(_ context.Context, orderID string, at time.Time) error {
	delay := at.Sub(s.Clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[orderID]; ok {
		t.Stop()
	}
	s.timers[orderID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, orderID)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Fire(ctx, orderID); err != nil {
			s.Logger.Warn("auto-approval wake-up failed", zap.String("orderId", orderID), zap.Error(err))
		}
	})
	return nil
}

// Pending reports how many wake-ups are armed.
func (s *LocalScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer.
func (s *LocalScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
