package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler   *asynq.Scheduler
	backfillInterval time.Duration
	log              *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, backfillInterval time.Duration, log *slog.Logger) Scheduler {
	if backfillInterval <= 0 {
		backfillInterval = time.Hour
	}

	return &scheduler{
		asynqScheduler:   asynq.NewScheduler(redisOpt, nil),
		backfillInterval: backfillInterval,
		log:              log,
	}
}

func (s *scheduler) RegisterTasks() error {
	task, err := NewNumberBackfillTask()
	if err != nil {
		return err
	}

	spec := fmt.Sprintf("@every %s", s.backfillInterval)
	if _, err := s.asynqScheduler.Register(spec, task); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered number backfill task",
			slog.Duration("interval", s.backfillInterval))
	}

	return nil
}

func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
