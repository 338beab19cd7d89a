// Package scheduler runs the periodic health and discovery sweeps on cron
// schedules while the service is up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

// ErrUnknownTask is returned by RunNow for a task that was never added.
var ErrUnknownTask = errors.New("unknown task")

// TaskFunc is one periodic unit of work.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	schedule string
	run      TaskFunc
	mu       sync.Mutex
}

// Scheduler wraps a cron instance. Overlapping runs of the same task are
// skipped, and tasks share the scheduler's lifecycle context.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	log    logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

// New creates a stopped Scheduler.
func New(log logger.Logger) *Scheduler {
	log = log.With(logger.Component("scheduler"))
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cronLog := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLog))),
		parser: parser,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}
}

// Add registers fn under name. A schedule of Off registers nothing.
func (s *Scheduler) Add(name, schedule string, fn TaskFunc) error {
	if schedule == Off {
		s.log.Info("Task disabled", logger.String("task", name))
		return nil
	}

	sched, err := s.parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("parse schedule for %s: %w", name, err)
	}

	t := &task{name: name, schedule: schedule, run: fn}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}
	s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(s.ctx, t) }))
	s.tasks[name] = t

	s.log.Info("Task scheduled",
		logger.String("task", name),
		logger.String("schedule", schedule),
		logger.Time("next_run", sched.Next(time.Now())),
	)
	return nil
}

// Start begins firing schedules. It returns immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", logger.Int("tasks", len(s.cron.Entries())))
}

// Stop cancels running tasks and waits for them, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled tasks: %w", ctx.Err())
	}
}

// RunNow runs a registered task synchronously, outside its schedule. The
// run is canceled by ctx or by Stop, whichever comes first.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	return s.execute(runCtx, t)
}

// execute runs t unless a previous run is still going.
func (s *Scheduler) execute(ctx context.Context, t *task) error {
	if !t.mu.TryLock() {
		s.log.Warn("Task still running; skipping this run", logger.String("task", t.name))
		return nil
	}
	defer t.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	s.log.Info("Task started", logger.String("task", t.name))

	err := t.run(ctx)
	if err != nil {
		s.log.Error("Task failed",
			logger.String("task", t.name),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return err
	}

	s.log.Info("Task completed",
		logger.String("task", t.name),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(pairs(keysAndValues), logger.Error(err))...)
}

func pairs(keysAndValues []any) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields = append(fields, logger.Any(key, keysAndValues[i+1]))
	}
	return fields
}
