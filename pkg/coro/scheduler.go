// Package coro is a fixed-tick cooperative task scheduler.
//
// A task wraps a Sequence that is advanced one suspension point at a time.
// The value produced at each suspension point tells the scheduler when to
// advance it again:
//
//   - a positive value delays the task by that many seconds (+Inf never resumes)
//   - zero or a negative value advances it again on the next tick
//   - NaN asks the scheduler to splice a staged replacement sequence in
//
// The wait primitives (WaitUntilTrue, WaitUntilZero, StartAfterTask, ...)
// build on the splice request to suspend a task until a condition holds.
// Each takes the TaskContext of the task it suspends; see FromTask.
package coro

import (
	"errors"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Stats are cumulative scheduler counters.
type Stats struct {
	Ticks    uint64 `json:"ticks"`
	Advances uint64 `json:"advances"`
	Splices  uint64 `json:"splices"`
	Faults   uint64 `json:"faults"`
	Purged   uint64 `json:"purged"`
	Live     int    `json:"live"`
}

type counters struct {
	ticks    atomic.Uint64
	advances atomic.Uint64
	splices  atomic.Uint64
	faults   atomic.Uint64
	purged   atomic.Uint64
}

// Controller is the control and query surface of a Scheduler that does not
// depend on its time representation.
type Controller interface {
	ID() string
	KillTask(h Handle)
	KillTasks(hs []Handle)
	KillTasksByTag(tag string)
	PauseTask(h Handle)
	ResumeTask(h Handle)
	TaskExists(h Handle) bool
	TaskSucceeded(h Handle) bool
	TaskRunning(h Handle) bool
	TaskPaused(h Handle) bool
	HasAnyTasks() bool
	Task(h Handle) (TaskInfo, bool)
	Snapshot() []TaskInfo
	Stats() Stats
	PauseTicks()
	ResumeTicks()
	TicksPaused() bool
}

var (
	_ Controller = (*Scheduler[float32])(nil)
	_ Controller = (*Scheduler[float64])(nil)
)

// Scheduler owns a live set of tasks and advances them once per tick.
//
// All control and query methods are safe for concurrent use, including from
// inside a running sequence. Tick, Stop and the loop are not re-entrant.
type Scheduler[T Float] struct {
	id         string
	tickLength T
	opts       options
	logger     *slog.Logger

	mu      sync.Mutex
	tasks   []*task[T]
	index   map[Handle]*task[T]
	current *task[T]
	stopped bool

	// tickMu serialises Tick and the final sweep in Stop.
	tickMu sync.Mutex

	loopMu      sync.Mutex
	stopCh      chan struct{}
	doneCh      chan struct{}
	ticksPaused atomic.Bool
	accumulator T
	prev        time.Time

	stats counters
}

// NewScheduler creates a scheduler. Its loop is not running until Start or
// Run is called; Tick may be used to drive it by hand.
func NewScheduler[T Float](opts ...Option) *Scheduler[T] {
	o := buildOptions(opts)
	id := uuid.New().String()[:8]
	return &Scheduler[T]{
		id:         id,
		tickLength: Seconds[T](o.tickLength),
		opts:       o,
		logger:     o.logger.With("component", "scheduler", "scheduler_id", id),
		index:      make(map[Handle]*task[T]),
	}
}

// ID returns a short identifier used in logs.
func (s *Scheduler[T]) ID() string {
	return s.id
}

// TickLength returns the logical length of one tick.
func (s *Scheduler[T]) TickLength() T {
	return s.tickLength
}

// StartTask adds seq to the live set under tag. It is first advanced on the
// next tick. A seq implementing TaskBinder is bound to the new task first.
// A nil sequence or a stopped scheduler yields InvalidHandle.
func (s *Scheduler[T]) StartTask(seq Sequence[T], tag string) Handle {
	if seq == nil {
		s.logger.Warn("start task: nil sequence", "tag", tag)
		return InvalidHandle
	}

	t := newTask(nextHandle(), seq, tag)
	if b, ok := seq.(TaskBinder[T]); ok {
		b.BindTask(&TaskContext[T]{sched: s, t: t})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Warn("start task: scheduler stopped", "tag", tag)
		return InvalidHandle
	}
	s.tasks = append(s.tasks, t)
	s.index[t.handle] = t
	s.logger.Debug("task started", "task", t.handle, "tag", tag)
	return t.handle
}

// KillTask flags h for removal at the next sweep. Unknown handles are ignored.
func (s *Scheduler[T]) KillTask(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked(h)
}

// KillTasks flags every handle in hs for removal.
func (s *Scheduler[T]) KillTasks(hs []Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hs {
		s.killLocked(h)
	}
}

// KillTasksByTag flags every task whose tag equals tag exactly.
func (s *Scheduler[T]) KillTasksByTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.tag == tag {
			t.kill = true
		}
	}
}

func (s *Scheduler[T]) killLocked(h Handle) {
	if t, ok := s.index[h]; ok {
		t.kill = true
	}
}

// PauseTask stops h from being advanced until ResumeTask is called.
func (s *Scheduler[T]) PauseTask(h Handle) {
	s.setPaused(h, true)
}

// ResumeTask clears a pause set by PauseTask.
func (s *Scheduler[T]) ResumeTask(h Handle) {
	s.setPaused(h, false)
}

func (s *Scheduler[T]) setPaused(h Handle, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.index[h]; ok {
		t.paused = paused
	}
}

// TaskExists reports whether h is in the live set.
func (s *Scheduler[T]) TaskExists(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[h]
	return ok
}

// TaskSucceeded reports whether h is live and its sequence has finished.
func (s *Scheduler[T]) TaskSucceeded(h Handle) bool {
	return s.query(h, func(t *task[T]) bool { return t.succeeded })
}

// TaskRunning reports whether h is live, has been advanced at least once
// and has not finished. It is false until the task's first tick.
func (s *Scheduler[T]) TaskRunning(h Handle) bool {
	return s.query(h, func(t *task[T]) bool { return t.running })
}

// TaskPaused reports whether h is live and paused.
func (s *Scheduler[T]) TaskPaused(h Handle) bool {
	return s.query(h, func(t *task[T]) bool { return t.paused })
}

func (s *Scheduler[T]) query(h Handle, fn func(*task[T]) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[h]
	return ok && fn(t)
}

// HasAnyTasks reports whether the live set is non-empty.
func (s *Scheduler[T]) HasAnyTasks() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks) > 0
}

// Task returns a copy of h's current state.
func (s *Scheduler[T]) Task(h Handle) (TaskInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[h]
	if !ok {
		return TaskInfo{}, false
	}
	return t.info(), true
}

// Snapshot returns the state of every live task in creation order.
func (s *Scheduler[T]) Snapshot() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.info())
	}
	return out
}

// Stats returns the scheduler's counters.
func (s *Scheduler[T]) Stats() Stats {
	s.mu.Lock()
	live := len(s.tasks)
	s.mu.Unlock()
	return Stats{
		Ticks:    s.stats.ticks.Load(),
		Advances: s.stats.advances.Load(),
		Splices:  s.stats.splices.Load(),
		Faults:   s.stats.faults.Load(),
		Purged:   s.stats.purged.Load(),
		Live:     live,
	}
}

// taskDone reports whether h has left the live set, or has succeeded and
// is being kept there.
func (s *Scheduler[T]) taskDone(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[h]
	return !ok || (t.succeeded && !t.kill)
}

// stage attaches sp to t. It reports false unless t is the task being
// advanced, so a wait evaluated anywhere else never lands on another task.
func (s *Scheduler[T]) stage(t *task[T], sp *splice[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != t {
		return false
	}
	t.pending = sp
	return true
}

// Tick runs one fixed logical tick: sweep, advance every eligible task,
// sweep again.
func (s *Scheduler[T]) Tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.sweep()
	for _, t := range s.snapshot() {
		s.update(t)
	}
	s.sweep()
	s.stats.ticks.Add(1)
}

func (s *Scheduler[T]) snapshot() []*task[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task[T], 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.kill {
			out = append(out, t)
		}
	}
	return out
}

// update applies the per-task steps of a tick to t.
func (s *Scheduler[T]) update(t *task[T]) {
	s.mu.Lock()
	if !t.active() {
		s.mu.Unlock()
		return
	}
	prime := !t.primed
	t.primed = true
	s.mu.Unlock()

	// A fresh sequence obtains its first suspension value straight away.
	if prime {
		s.advance(t)
	}

	// A value produced in this tick starts counting down on the next one.
	s.mu.Lock()
	if !prime && t.delay > 0 {
		t.delay -= s.tickLength
	}
	due := t.delay <= 0
	s.mu.Unlock()

	if due {
		s.advance(t)
	}

	s.mu.Lock()
	if !t.active() || !IsUndefined(t.delay) {
		s.mu.Unlock()
		return
	}
	sp := t.pending
	t.pending = nil
	if sp == nil {
		t.delay = PollAgain[T]()
	}
	s.mu.Unlock()

	if sp == nil {
		s.logger.Warn("splice requested with nothing staged", "task", t.handle, "tag", t.tag)
		return
	}

	t.seq = sp.wrap(t.seq)
	s.stats.splices.Add(1)
	s.logger.Debug("splice applied", "task", t.handle, "tag", t.tag, "reason", sp.reason)
	s.advance(t)
}

// advance moves t's sequence to its next suspension point and records the
// result.
func (s *Scheduler[T]) advance(t *task[T]) {
	s.mu.Lock()
	if !t.active() {
		s.mu.Unlock()
		return
	}
	t.running = true
	s.current = t
	s.mu.Unlock()

	v, err := step(t.seq)
	s.stats.advances.Add(1)

	s.mu.Lock()
	s.current = nil
	var fault error
	switch {
	case err == nil:
		t.delay = v
	case errors.Is(err, ErrDone):
		t.running = false
		// A task killed while it was finishing never reports success.
		if !t.kill {
			t.succeeded = true
			t.kill = s.opts.killOnSuccess
		}
	default:
		t.running = false
		t.kill = true
		t.pending = nil
		t.err = err
		fault = err
	}
	s.mu.Unlock()

	if fault != nil {
		s.stats.faults.Add(1)
		s.logger.Error("task faulted", "task", t.handle, "tag", t.tag, "error", fault)
		if s.opts.onFault != nil {
			s.opts.onFault(t.handle, t.tag, fault)
		}
	}
}

func step[T Float](seq Sequence[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return seq.Advance()
}

// sweep purges every task flagged for removal.
func (s *Scheduler[T]) sweep() {
	s.mu.Lock()
	var purged []*task[T]
	var infos []TaskInfo
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.kill {
			kept = append(kept, t)
			continue
		}
		delete(s.index, t.handle)
		purged = append(purged, t)
		infos = append(infos, t.info())
	}
	clear(s.tasks[len(kept):])
	s.tasks = kept
	s.mu.Unlock()

	for i, t := range purged {
		s.release(t)
		s.stats.purged.Add(1)
		s.logger.Debug("task purged", "task", t.handle, "tag", t.tag, "state", infos[i].State)
		if s.opts.onPurge != nil {
			s.opts.onPurge(infos[i])
		}
	}
}

// release closes t's sequence if it holds resources.
func (s *Scheduler[T]) release(t *task[T]) {
	c, ok := t.seq.(io.Closer)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("close sequence panicked", "task", t.handle, "panic", r)
		}
	}()
	if err := c.Close(); err != nil {
		s.logger.Warn("close sequence", "task", t.handle, "error", err)
	}
}
