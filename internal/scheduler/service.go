// Package scheduler owns the named recurring jobs of the process: fixed
// interval or cron-expression fires, immediate manual runs, cancellation,
// and status introspection. Handler failures never stop a timer.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"outreachd/internal/domain"
)

// Handler is the unit of work a task runs on every fire.
type Handler func(ctx context.Context) error

// Service is an in-process scheduler owning its task map. Construct one per
// process and call StopAll at shutdown.
type Service struct {
	mu    sync.Mutex
	tasks map[string]*task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id       string
	name     string
	interval time.Duration
	cronExpr string
	cronSpec cron.Schedule
	handler  Handler
	stop     chan struct{}

	// runMu serializes handler invocations for this task: a manual RunNow
	// and a timer fire must never be in flight at the same time, or the
	// window filter can observe a stale seen-store state.
	runMu sync.Mutex

	mu      sync.Mutex
	lastRun *time.Time
	nextRun time.Time
}

func NewService() *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{tasks: make(map[string]*task), ctx: ctx, cancel: cancel}
}

// minInterval bounds how fast a task may fire. A zero or negative interval
// would spin the timer loop, so Schedule clamps to this instead.
const minInterval = time.Minute

// Schedule registers or replaces a recurring job firing every interval.
// Non-positive intervals are clamped to minInterval. Replacing cancels the
// prior timer first, so at most one live timer exists per id; an in-flight
// invocation of the old handler runs to completion.
func (s *Service) Schedule(id, name string, interval time.Duration, handler Handler) {
	if interval <= 0 {
		log.Warn().Str("task_id", id).Dur("interval", interval).
			Msgf("non-positive interval, clamping to %s", minInterval)
		interval = minInterval
	}
	t := &task{
		id:       id,
		name:     name,
		interval: interval,
		handler:  handler,
		stop:     make(chan struct{}),
		nextRun:  time.Now().Add(interval),
	}
	s.install(t)
	log.Info().Str("task_id", id).Str("task_name", name).Dur("interval", interval).Msg("task scheduled")
}

// ScheduleCron registers or replaces a job driven by a standard cron
// expression instead of a fixed interval.
func (s *Service) ScheduleCron(id, name, expr string, handler Handler) error {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return err
	}
	t := &task{
		id:       id,
		name:     name,
		cronExpr: expr,
		cronSpec: spec,
		handler:  handler,
		stop:     make(chan struct{}),
		nextRun:  spec.Next(time.Now()),
	}
	s.install(t)
	log.Info().Str("task_id", id).Str("task_name", name).Str("cron_expr", expr).Msg("cron task scheduled")
	return nil
}

func (s *Service) install(t *task) {
	s.mu.Lock()
	if old, ok := s.tasks[t.id]; ok {
		close(old.stop)
	}
	s.tasks[t.id] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(t)
}

func (s *Service) loop(t *task) {
	defer s.wg.Done()
	for {
		t.mu.Lock()
		next := t.nextRun
		t.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-t.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.fire(t)
		}
	}
}

// fire runs one timer-driven invocation: lastRun and nextRun move whether or
// not the handler succeeds.
func (s *Service) fire(t *task) {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	now := time.Now()
	t.mu.Lock()
	ts := now
	t.lastRun = &ts
	if t.cronSpec != nil {
		t.nextRun = t.cronSpec.Next(now)
	} else {
		t.nextRun = now.Add(t.interval)
	}
	t.mu.Unlock()

	s.invoke(s.ctx, t)
}

// RunNow invokes the handler for id immediately, independent of its timer.
// It blocks until any in-flight fire of the same task completes, updates
// lastRun regardless of handler outcome, and leaves nextRun untouched.
// Returns false if id is unknown.
func (s *Service) RunNow(ctx context.Context, id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return false
	}

	t.runMu.Lock()
	defer t.runMu.Unlock()

	now := time.Now()
	t.mu.Lock()
	t.lastRun = &now
	t.mu.Unlock()

	log.Info().Str("task_id", id).Msg("manual task run")
	s.invoke(ctx, t)
	return true
}

// invoke calls the handler, catching errors and panics at the job boundary
// so nothing escapes into the timer loop.
func (s *Service) invoke(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task_id", t.id).Str("task_name", t.name).Interface("panic", r).Msg("task handler panicked")
		}
	}()
	if err := t.handler(ctx); err != nil {
		log.Error().Err(err).Str("task_id", t.id).Str("task_name", t.name).Msg("task handler failed")
	}
}

// Cancel stops the timer for id and removes the task. An in-flight
// invocation runs to completion. Returns false if id is unknown.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	delete(s.tasks, id)
	close(t.stop)
	log.Info().Str("task_id", id).Msg("task cancelled")
	return true
}

// Status returns a snapshot of every registered task, sorted by id.
func (s *Service) Status() []domain.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]domain.TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		st := domain.TaskStatus{
			ID:              t.id,
			Name:            t.name,
			IntervalMinutes: int(t.interval.Minutes()),
			CronExpr:        t.cronExpr,
			LastRunAt:       t.lastRun,
			NextRunAt:       t.nextRun,
		}
		t.mu.Unlock()
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// StopAll cancels every timer and waits for loops to exit; used at process
// shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	for id, t := range s.tasks {
		close(t.stop)
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

// ValidateCronExpression validates a cron expression.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime calculates the next run time for a cron expression.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return spec.Next(from), nil
}
