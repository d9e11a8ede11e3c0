package coro

import (
	"context"
	"sync"
	"time"
)

// Manager owns at most one running Scheduler and recreates it on demand.
// Every operation other than Stop starts a scheduler if none is active, so
// callers never need to check lifecycle state.
type Manager[T Float] struct {
	opts []Option

	mu    sync.Mutex
	sched *Scheduler[T]
}

// FloatManager runs tasks on single-precision time.
type FloatManager = Manager[float32]

// DoubleManager runs tasks on double-precision time.
type DoubleManager = Manager[float64]

// NewManager creates a manager. opts are applied to every scheduler it
// starts, so the tick length is read each time a scheduler starts.
func NewManager[T Float](opts ...Option) *Manager[T] {
	return &Manager[T]{opts: opts}
}

// NewFloatManager creates a single-precision manager.
func NewFloatManager(opts ...Option) *FloatManager {
	return NewManager[float32](opts...)
}

// NewDoubleManager creates a double-precision manager.
func NewDoubleManager(opts ...Option) *DoubleManager {
	return NewManager[float64](opts...)
}

// Start starts a scheduler if none is active.
func (m *Manager[T]) Start() {
	m.Scheduler()
}

// Stop stops the active scheduler, killing its tasks, and forgets it.
func (m *Manager[T]) Stop() {
	m.mu.Lock()
	s := m.sched
	m.sched = nil
	m.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Active reports whether a scheduler is running.
func (m *Manager[T]) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sched != nil
}

// Scheduler returns the active scheduler, starting one if needed.
func (m *Manager[T]) Scheduler() *Scheduler[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sched == nil {
		s := NewScheduler[T](m.opts...)
		if err := s.Start(context.Background()); err != nil {
			s.logger.Error("start scheduler", "error", err)
		}
		m.sched = s
	}
	return m.sched
}

// StartTask adds seq under tag.
func (m *Manager[T]) StartTask(seq Sequence[T], tag string) Handle {
	return m.Scheduler().StartTask(seq, tag)
}

// CallDelayed runs action once, d after the next tick.
func (m *Manager[T]) CallDelayed(d time.Duration, action func(), tag string) Handle {
	return m.StartTask(DelayedCall[T](d, action), tag)
}

// CallContinuously runs action once every tick until killed.
func (m *Manager[T]) CallContinuously(action func(), tag string) Handle {
	return m.StartTask(Repeat[T](0, action), tag)
}

// CallPeriodically runs action every period until killed.
func (m *Manager[T]) CallPeriodically(period time.Duration, action func(), tag string) Handle {
	return m.StartTask(Repeat[T](period, action), tag)
}

func (m *Manager[T]) KillTask(h Handle) { m.Scheduler().KillTask(h) }
func (m *Manager[T]) KillTasks(hs []Handle) { m.Scheduler().KillTasks(hs) }
func (m *Manager[T]) KillTasksByTag(tag string) { m.Scheduler().KillTasksByTag(tag) }
func (m *Manager[T]) PauseTask(h Handle) { m.Scheduler().PauseTask(h) }
func (m *Manager[T]) ResumeTask(h Handle) { m.Scheduler().ResumeTask(h) }
func (m *Manager[T]) TaskExists(h Handle) bool { return m.Scheduler().TaskExists(h) }
func (m *Manager[T]) TaskSucceeded(h Handle) bool { return m.Scheduler().TaskSucceeded(h) }
func (m *Manager[T]) TaskRunning(h Handle) bool { return m.Scheduler().TaskRunning(h) }
func (m *Manager[T]) TaskPaused(h Handle) bool { return m.Scheduler().TaskPaused(h) }
func (m *Manager[T]) HasAnyTasks() bool { return m.Scheduler().HasAnyTasks() }

func (m *Manager[T]) Task(h Handle) (TaskInfo, bool) { return m.Scheduler().Task(h) }
func (m *Manager[T]) Snapshot() []TaskInfo { return m.Scheduler().Snapshot() }
func (m *Manager[T]) Stats() Stats { return m.Scheduler().Stats() }

// DelayedCall yields d seconds once, then runs action.
func DelayedCall[T Float](d time.Duration, action func()) Sequence[T] {
	return FromSeq[T](func(yield func(T) bool) {
		if !yield(Seconds[T](d)) {
			return
		}
		if action != nil {
			action()
		}
	})
}

// Repeat yields period seconds and runs action, forever.
func Repeat[T Float](period time.Duration, action func()) Sequence[T] {
	return FromSeq[T](func(yield func(T) bool) {
		for yield(Seconds[T](period)) {
			if action != nil {
				action()
			}
		}
	})
}
