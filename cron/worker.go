package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"washflow/config"
	"washflow/models"
	"washflow/services/dispute"
	"washflow/services/notification"
	"washflow/services/order"
	"washflow/services/qa"
	"washflow/services/rewards"
	"washflow/services/tasks"
	"washflow/utils"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker holds the services the background task handlers call into.
type Worker struct {
	QA       *qa.Service
	Orders   order.OrderService
	Disputes dispute.DisputeService
	Delivery notification.Notifier
	Alerts   notification.OperatorAlerter
	Points   rewards.PointsStore
	Logger   *zap.Logger
}

// RedisOpt is the asynq connection shared by the client, server and scheduler.
func RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// Mux routes every task type to its handler.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeQAAutoApprove, w.handleAutoApprove)
	mux.HandleFunc(tasks.TypeSettleCancellation, w.handleSettlement)
	mux.HandleFunc(tasks.TypeDeliverNotification, w.handleNotification)
	mux.HandleFunc(tasks.TypeAwardRewards, w.handleReward)
	mux.HandleFunc(tasks.TypeOperatorAlert, w.handleAlert)
	mux.HandleFunc(tasks.TypeDisputeSLACheck, w.handleSLACheck)
	mux.HandleFunc(tasks.TypeMaintenanceSweep, w.handleSweep)
	return mux
}

// Start runs the asynq server and the periodic scheduler in the background.
// The returned func stops both.
func (w *Worker) Start() func() {
	log := utils.LoggerOrNop(w.Logger)

	srv := asynq.NewServer(RedisOpt(), asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			tasks.QueueCritical:  6,
			tasks.QueueDefault:   3,
			tasks.QueueOperators: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
	mux := w.Mux()

	scheduler := asynq.NewScheduler(RedisOpt(), &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := scheduler.Register(config.AppConfig.SLACheckCron, tasks.NewDisputeSLACheckTask(), asynq.Queue(tasks.QueueOperators)); err != nil {
		log.Fatal("invalid SLA_CHECK_CRON", zap.String("cron", config.AppConfig.SLACheckCron), zap.Error(err))
	}
	sweep := fmt.Sprintf("@every %ds", config.AppConfig.QASweepSeconds)
	if _, err := scheduler.Register(sweep, tasks.NewSweepTask(), asynq.Queue(tasks.QueueCritical)); err != nil {
		log.Fatal("invalid sweep interval", zap.String("cron", sweep), zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go monitorRedisConnection(ctx, log)

	go func() {
		log.Info("starting task worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Start(mux); err != nil {
				log.Error("failed to start task worker", zap.Int("attempt", attempts), zap.Error(err))
				if attempts == maxAttempts {
					log.Fatal("max retry attempts reached for task worker")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
				continue
			}
			break
		}
	}()
	go func() {
		if err := scheduler.Run(); err != nil {
			log.Error("periodic scheduler stopped", zap.Error(err))
		}
	}()

	return func() {
		cancel()
		scheduler.Shutdown()
		srv.Shutdown()
	}
}

func (w *Worker) handleAutoApprove(ctx context.Context, task *asynq.Task) error {
	p, err := tasks.DecodeOrderPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return w.QA.HandleAutoApprove(ctx, p.OrderID)
}

func (w *Worker) handleSettlement(ctx context.Context, task *asynq.Task) error {
	p, err := tasks.DecodeOrderPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	_, err = w.Orders.SettleCancellation(ctx, p.OrderID)
	if utils.IsKind(err, utils.KindNotFound) {
		return nil
	}
	return err
}

func (w *Worker) handleNotification(ctx context.Context, task *asynq.Task) error {
	var p models.NotificationPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	return w.Delivery.Notify(ctx, p.UserID, p.Kind, p.Data)
}

func (w *Worker) handleReward(ctx context.Context, task *asynq.Task) error {
	var p models.RewardPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode reward: %v: %w", err, asynq.SkipRetry)
	}
	applied, err := w.Points.Award(ctx, p)
	if err != nil {
		return err
	}
	if !applied {
		utils.LoggerOrNop(w.Logger).Debug("reward already applied", zap.String("orderId", p.OrderID), zap.String("userId", p.UserID))
	}
	return nil
}

func (w *Worker) handleAlert(ctx context.Context, task *asynq.Task) error {
	var a models.OperatorAlert
	if err := json.Unmarshal(task.Payload(), &a); err != nil {
		return fmt.Errorf("decode alert: %v: %w", err, asynq.SkipRetry)
	}
	return w.Alerts.RaiseAlert(ctx, a)
}

func (w *Worker) handleSLACheck(ctx context.Context, _ *asynq.Task) error {
	n, err := w.Disputes.CheckSLA(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		utils.LoggerOrNop(w.Logger).Info("dispute SLA escalations", zap.Int("count", n))
	}
	return nil
}

func (w *Worker) handleSweep(ctx context.Context, _ *asynq.Task) error {
	rep, err := w.QA.Recover(ctx)
	if err != nil {
		return err
	}
	if rep != (qa.RecoveryReport{}) {
		utils.LoggerOrNop(w.Logger).Info("maintenance sweep",
			zap.Int("approved", rep.Approved),
			zap.Int("scheduled", rep.Scheduled),
			zap.Int("captured", rep.Captured),
			zap.Int("settled", rep.Settled),
			zap.Int("failed", rep.Failed))
	}
	return nil
}

// monitorRedisConnection pings the queue database periodically to detect failures at runtime.
func monitorRedisConnection(ctx context.Context, log *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil && ctx.Err() == nil {
				log.Warn("queue redis connection lost", zap.Error(err))
			}
		}
	}
}
