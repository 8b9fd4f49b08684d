// Package scheduler runs periodic maintenance tasks.
package scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"gigmarket/internal/logger"
)

// Task is a named piece of periodic work.
type Task struct {
	Name     string
	Schedule string // cron expression
	Handler  func(ctx context.Context) error
}

// Scheduler wraps a gocron scheduler with logging.
type Scheduler struct {
	cron   *gocron.Scheduler
	log    *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
	tasks  map[string]Task
}

// New creates a scheduler running in UTC.
func New(log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   gocron.NewScheduler(time.UTC),
		log:    log.Named("scheduler"),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]Task),
	}
}

// Register adds a task. It fails if the cron expression does not parse.
func (s *Scheduler) Register(task Task) error {
	job, err := s.cron.Cron(task.Schedule).Do(func() { _ = s.run(task) })
	if err != nil {
		return errors.Wrapf(err, "schedule task %s", task.Name)
	}
	job.Tag(task.Name)
	s.tasks[task.Name] = task
	s.log.Infow("registered task", "task", task.Name, "schedule", task.Schedule)
	return nil
}

// RunNow executes a registered task synchronously.
func (s *Scheduler) RunNow(name string) error {
	task, ok := s.tasks[name]
	if !ok {
		return errors.Newf("unknown task %q", name)
	}
	return s.run(task)
}

func (s *Scheduler) run(task Task) error {
	start := time.Now()
	err := task.Handler(s.ctx)
	if err != nil {
		s.log.Errorw("task failed", "task", task.Name, logger.FieldError, err)
		return err
	}
	s.log.Debugw("task completed", "task", task.Name, logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

// Start begins running tasks in the background.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

// Stop halts all tasks and cancels in-flight handlers.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.cancel()
}

// SessionPurger is the part of the auth service the cleanup task needs.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// SessionCleanupTask deletes expired login sessions.
func SessionCleanupTask(schedule string, purger SessionPurger, log *zap.SugaredLogger) Task {
	return Task{
		Name:     "purge_expired_sessions",
		Schedule: schedule,
		Handler: func(ctx context.Context) error {
			n, err := purger.PurgeExpiredSessions(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Infow("purged expired sessions", "count", n)
			}
			return nil
		},
	}
}
