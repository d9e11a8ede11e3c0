package coro

import (
	"io"
	"log/slog"
)

// TaskContext names the task a sequence runs as. The wait primitives stage
// their splice on it, so only the task's own sequence should use it. A
// sequence obtains its context through FromTask or by implementing
// TaskBinder.
type TaskContext[T Float] struct {
	sched *Scheduler[T]
	t     *task[T]
}

// TaskBinder is implemented by sequences that need their task's context.
// StartTask calls BindTask once, before the task is first advanced.
type TaskBinder[T Float] interface {
	BindTask(tc *TaskContext[T])
}

// Handle returns the task's handle.
func (tc *TaskContext[T]) Handle() Handle {
	return tc.t.handle
}

// Tag returns the task's tag.
func (tc *TaskContext[T]) Tag() string {
	return tc.t.tag
}

// Scheduler returns the scheduler the task belongs to.
func (tc *TaskContext[T]) Scheduler() *Scheduler[T] {
	return tc.sched
}

// stage attaches sp to tc's task. It reports false unless that task is the
// one being advanced right now.
func (tc *TaskContext[T]) stage(sp *splice[T]) bool {
	if tc == nil || tc.t == nil {
		return false
	}
	return tc.sched.stage(tc.t, sp)
}

func (tc *TaskContext[T]) logger() *slog.Logger {
	if tc == nil || tc.sched == nil {
		return slog.Default()
	}
	return tc.sched.logger
}

// WaitUntilTrue suspends tc's task until pred returns true. It must be
// evaluated inside the task's sequence; yield its result.
func WaitUntilTrue[T Float](tc *TaskContext[T], pred func() bool) T {
	if pred == nil || pred() {
		return Now[T]()
	}
	return waitFor(tc, "wait_until_true", pred)
}

// WaitUntilFalse suspends tc's task until pred returns false.
func WaitUntilFalse[T Float](tc *TaskContext[T], pred func() bool) T {
	if pred == nil || !pred() {
		return Now[T]()
	}
	return waitFor(tc, "wait_until_false", func() bool { return !pred() })
}

// WaitUntilZero suspends tc's task until eval returns zero. eval is called
// once now and once per tick while waiting.
func WaitUntilZero[T Float, N Number](tc *TaskContext[T], eval func() N) T {
	if eval == nil || eval() == 0 {
		return Now[T]()
	}
	return waitFor(tc, "wait_until_zero", func() bool { return eval() == 0 })
}

// StartAfterTask suspends tc's task until target has left the live set, or
// has succeeded and is being kept there.
func StartAfterTask[T Float](tc *TaskContext[T], target Handle) T {
	if tc == nil || tc.sched == nil {
		return PollAgain[T]()
	}
	s := tc.sched
	if s.taskDone(target) {
		return Now[T]()
	}
	return waitFor(tc, "start_after_task", func() bool { return s.taskDone(target) })
}

// waitFor stages a splice that parks the task's continuation behind cond,
// and returns the splice request. Outside the task's own advance there is
// nothing to stage on, and the caller is told to poll again.
func waitFor[T Float](tc *TaskContext[T], reason string, cond func() bool) T {
	sp := &splice[T]{
		reason: reason,
		wrap: func(rest Sequence[T]) Sequence[T] {
			return &waitSequence[T]{tc: tc, cond: cond, rest: rest}
		},
	}
	if !tc.stage(sp) {
		tc.logger().Warn("wait primitive evaluated outside its task", "reason", reason)
		return PollAgain[T]()
	}
	return Undefined[T]()
}

// waitSequence polls cond once per tick and splices rest back in once it
// holds.
type waitSequence[T Float] struct {
	tc      *TaskContext[T]
	cond    func() bool
	rest    Sequence[T]
	resumed bool
}

func (w *waitSequence[T]) Advance() (T, error) {
	if w.resumed {
		return w.rest.Advance()
	}
	if !w.cond() {
		return PollAgain[T](), nil
	}
	rest := w.rest
	resume := &splice[T]{
		reason: "resume",
		wrap:   func(Sequence[T]) Sequence[T] { return rest },
	}
	if w.tc.stage(resume) {
		return Undefined[T](), nil
	}
	// Driven outside a scheduler: continue inline.
	w.resumed = true
	return w.rest.Advance()
}

func (w *waitSequence[T]) Close() error {
	if c, ok := w.rest.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WaitUntilTrue is the method form of the package-level WaitUntilTrue.
func (tc *TaskContext[T]) WaitUntilTrue(pred func() bool) T {
	return WaitUntilTrue(tc, pred)
}

// WaitUntilFalse is the method form of the package-level WaitUntilFalse.
func (tc *TaskContext[T]) WaitUntilFalse(pred func() bool) T {
	return WaitUntilFalse(tc, pred)
}

// StartAfterTask is the method form of the package-level StartAfterTask.
func (tc *TaskContext[T]) StartAfterTask(target Handle) T {
	return StartAfterTask(tc, target)
}
