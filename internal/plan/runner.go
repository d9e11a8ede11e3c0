package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/gocoro/internal/jsexpr"
	"github.com/me/gocoro/internal/logging"
	"github.com/me/gocoro/pkg/coro"
)

// ErrTimeout is returned by Wait when the plan's timeout elapses first.
var ErrTimeout = errors.New("plan timed out")

// TaskResult is the final state of one plan task.
type TaskResult struct {
	Name   string         `json:"name" yaml:"name"`
	Handle coro.Handle    `json:"handle" yaml:"handle"`
	Tag    string         `json:"tag,omitempty" yaml:"tag,omitempty"`
	State  coro.TaskState `json:"state" yaml:"state"`
	Error  string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report summarises a plan run.
type Report struct {
	RunID     string         `json:"run_id" yaml:"run_id"`
	Plan      string         `json:"plan" yaml:"plan"`
	Precision string         `json:"precision" yaml:"precision"`
	Elapsed   time.Duration  `json:"elapsed" yaml:"elapsed"`
	Stats     coro.Stats     `json:"stats" yaml:"stats"`
	Tasks     []TaskResult   `json:"tasks" yaml:"tasks"`
	Vars      map[string]any `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// Failed reports whether any task faulted.
func (r Report) Failed() bool {
	for _, t := range r.Tasks {
		if t.State == coro.TaskStateFailed {
			return true
		}
	}
	return false
}

// Execution is a plan bound to a scheduler, independent of its precision.
type Execution interface {
	ID() string
	Start(ctx context.Context) error
	Wait(ctx context.Context) error
	Stop()
	Report() Report
	Run(ctx context.Context) (Report, error)
	Controller() coro.Controller
}

// New binds p to a fresh scheduler of the plan's precision, falling back to
// precision when the plan does not set one. p must be valid.
func New(p *Plan, env *jsexpr.Env, precision string, logger *slog.Logger, opts ...coro.Option) (Execution, error) {
	if p.Precision != "" {
		precision = p.Precision
	}
	var (
		exec Execution
		err  error
	)
	switch precision {
	case "float32":
		exec, err = NewRunner[float32](p, env, logger, opts...)
	case "", "float64":
		exec, err = NewRunner[float64](p, env, logger, opts...)
	default:
		return nil, fmt.Errorf("unsupported precision %q", precision)
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// Runner starts a plan's tasks on its own scheduler and collects their
// final states.
type Runner[T coro.Float] struct {
	plan   *Plan
	env    *jsexpr.Env
	logger *slog.Logger
	runID  string
	sched  *coro.Scheduler[T]

	mu      sync.Mutex
	handles map[string]coro.Handle
	names   map[coro.Handle]string
	results map[coro.Handle]coro.TaskInfo
	started time.Time
	ended   time.Time
}

// NewRunner creates a runner. When env is nil a fresh environment is
// created. The plan's setup scripts run in env before NewRunner returns.
func NewRunner[T coro.Float](p *Plan, env *jsexpr.Env, logger *slog.Logger, opts ...coro.Option) (*Runner[T], error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if env == nil {
		var err error
		if env, err = jsexpr.New(); err != nil {
			return nil, err
		}
	}
	for i, src := range p.Setup {
		if _, err := env.Eval(src); err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	runID := "run_" + uuid.New().String()[:8]
	r := &Runner[T]{
		plan:    p,
		env:     env,
		logger:  logger.With("component", "plan", "plan", p.Name, "run_id", runID),
		runID:   runID,
		handles: make(map[string]coro.Handle, len(p.Tasks)),
		names:   make(map[coro.Handle]string, len(p.Tasks)),
		results: make(map[coro.Handle]coro.TaskInfo, len(p.Tasks)),
	}

	all := append([]coro.Option{coro.WithLogger(logger)}, opts...)
	if p.TickLength > 0 {
		all = append(all, coro.WithTickLength(p.TickLength))
	}
	all = append(all, coro.WithPurgeHandler(r.recordPurge))
	r.sched = coro.NewScheduler[T](all...)
	return r, nil
}

// ID returns the run identifier.
func (r *Runner[T]) ID() string {
	return r.runID
}

// Scheduler returns the scheduler the plan runs on.
func (r *Runner[T]) Scheduler() *coro.Scheduler[T] {
	return r.sched
}

// Controller returns the scheduler's precision-independent surface.
func (r *Runner[T]) Controller() coro.Controller {
	return r.sched
}

// Start starts every task and then the scheduler loop.
func (r *Runner[T]) Start(ctx context.Context) error {
	if err := r.startTasks(); err != nil {
		return err
	}
	return r.sched.Start(ctx)
}

func (r *Runner[T]) startTasks() error {
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()

	for _, ts := range r.plan.Tasks {
		h := r.sched.StartTask(newProgram(r, ts), ts.Tag)
		if !h.IsValid() {
			return fmt.Errorf("start task %q: %w", ts.Name, coro.ErrStopped)
		}
		if ts.Paused {
			r.sched.PauseTask(h)
		}
		r.mu.Lock()
		r.handles[ts.Name] = h
		r.names[h] = ts.Name
		r.mu.Unlock()
		r.logger.Debug("plan task started", "task", ts.Name, "handle", h)
	}
	r.logger.Info("plan started", "tasks", len(r.plan.Tasks))
	return nil
}

func (r *Runner[T]) handle(name string) (coro.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	return h, ok
}

func (r *Runner[T]) recordPurge(info coro.TaskInfo) {
	r.mu.Lock()
	r.results[info.Handle] = info
	r.mu.Unlock()
}

// Wait blocks until every task has left the live set, the plan timeout
// elapses (ErrTimeout) or ctx is done.
func (r *Runner[T]) Wait(ctx context.Context) error {
	if r.plan.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.plan.Timeout, ErrTimeout)
		defer cancel()
	}
	poll := time.NewTicker(pollInterval(r.sched))
	defer poll.Stop()
	for r.sched.HasAnyTasks() {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-poll.C:
		}
	}
	r.logger.Info("plan finished", "ticks", r.sched.Stats().Ticks)
	return nil
}

func pollInterval[T coro.Float](s *coro.Scheduler[T]) time.Duration {
	d := time.Duration(float64(s.TickLength()) * float64(time.Second) / 2)
	return max(d, time.Millisecond)
}

// Stop stops the scheduler, killing any task still live.
func (r *Runner[T]) Stop() {
	r.sched.Stop()
	r.mu.Lock()
	if r.ended.IsZero() {
		r.ended = time.Now()
	}
	r.mu.Unlock()
}

// Run starts the plan, waits for it and stops the scheduler. The report is
// returned even when err is non-nil.
func (r *Runner[T]) Run(ctx context.Context) (Report, error) {
	if err := r.Start(ctx); err != nil {
		r.Stop()
		return r.Report(), err
	}
	err := r.Wait(ctx)
	r.Stop()
	return r.Report(), err
}

// Report returns the tasks' final states, or current states for tasks that
// are still live, in plan order.
func (r *Runner[T]) Report() Report {
	live := make(map[coro.Handle]coro.TaskInfo)
	for _, info := range r.sched.Snapshot() {
		live[info.Handle] = info
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	end := r.ended
	if end.IsZero() {
		end = time.Now()
	}
	rep := Report{
		RunID:     r.runID,
		Plan:      r.plan.Name,
		Precision: precisionName[T](),
		Stats:     r.sched.Stats(),
		Vars:      r.env.Vars(),
	}
	if !r.started.IsZero() {
		rep.Elapsed = end.Sub(r.started)
	}
	for _, ts := range r.plan.Tasks {
		res := TaskResult{Name: ts.Name, Tag: ts.Tag, State: coro.TaskStatePending}
		h, ok := r.handles[ts.Name]
		if ok {
			res.Handle = h
			info, found := r.results[h]
			if !found {
				info, found = live[h]
			}
			if found {
				res.State = info.State
				res.Error = info.Err
			}
		}
		rep.Tasks = append(rep.Tasks, res)
	}
	return rep
}

func precisionName[T coro.Float]() string {
	var zero T
	if _, ok := any(zero).(float32); ok {
		return "float32"
	}
	return "float64"
}
