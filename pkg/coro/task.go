package coro

// splice is a staged replacement for a task's sequence. wrap receives the
// task's current sequence (its remaining continuation) and returns the
// sequence to install in its place.
type splice[T Float] struct {
	reason string
	wrap   func(rest Sequence[T]) Sequence[T]
}

// task is one scheduled computation. Everything except seq is guarded by
// the owning scheduler's mutex; seq is touched only by the tick goroutine.
type task[T Float] struct {
	handle Handle
	tag    string

	seq    Sequence[T]
	primed bool

	delay   T
	pending *splice[T]

	running   bool
	paused    bool
	kill      bool
	succeeded bool
	err       error
}

func newTask[T Float](h Handle, seq Sequence[T], tag string) *task[T] {
	return &task[T]{
		handle: h,
		tag:    tag,
		seq:    seq,
	}
}

// active reports whether the task may still be advanced.
func (t *task[T]) active() bool {
	return !t.paused && !t.kill && !t.succeeded
}

func (t *task[T]) info() TaskInfo {
	info := TaskInfo{
		Handle:    t.handle,
		Tag:       t.tag,
		Delay:     float64(t.delay),
		Running:   t.running,
		Paused:    t.paused,
		Killed:    t.kill,
		Succeeded: t.succeeded,
		Splicing:  t.pending != nil,
	}
	if t.err != nil {
		info.Err = t.err.Error()
	}
	info.State = info.derivedState()
	if !t.primed && info.State == TaskStateRunning {
		info.State = TaskStatePending
	}
	return info
}
