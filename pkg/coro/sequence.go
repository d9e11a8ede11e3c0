package coro

import (
	"errors"
	"iter"
)

// ErrDone is returned by Advance when a sequence has no more steps.
var ErrDone = errors.New("sequence done")

// Sequence is the resumable body of a task. Each call to Advance runs the
// computation up to its next suspension point and returns the suspension
// value produced there, or ErrDone once the computation has finished.
// Any other error (or a panic) faults the task.
//
// The scheduler calls Advance from its tick goroutine only. If a sequence
// also implements io.Closer, Close is called once the task leaves the
// live set.
type Sequence[T Float] interface {
	Advance() (T, error)
}

// SequenceFunc adapts a function to a Sequence.
type SequenceFunc[T Float] func() (T, error)

// Advance calls f.
func (f SequenceFunc[T]) Advance() (T, error) {
	return f()
}

// pullSequence drives an iter.Seq as a generator.
type pullSequence[T Float] struct {
	next func() (T, bool)
	stop func()
}

// FromSeq turns a range-over-func generator into a Sequence. Each value
// the generator yields is one suspension value. The generator is released
// when the task is purged.
func FromSeq[T Float](seq iter.Seq[T]) Sequence[T] {
	next, stop := iter.Pull(seq)
	return &pullSequence[T]{next: next, stop: stop}
}

func (p *pullSequence[T]) Advance() (T, error) {
	v, ok := p.next()
	if !ok {
		return 0, ErrDone
	}
	return v, nil
}

func (p *pullSequence[T]) Close() error {
	p.stop()
	return nil
}

// taskSequence is a generator that receives its task's context. The
// generator is not started until the first Advance, by which time the
// scheduler has bound the context.
type taskSequence[T Float] struct {
	fn   func(tc *TaskContext[T], yield func(T) bool)
	tc   *TaskContext[T]
	pull *pullSequence[T]
}

// FromTask is FromSeq for generators that use the wait primitives. fn is
// handed the context of the task it runs as; it is nil if the sequence is
// advanced without being started on a scheduler.
func FromTask[T Float](fn func(tc *TaskContext[T], yield func(T) bool)) Sequence[T] {
	return &taskSequence[T]{fn: fn}
}

// BindTask records tc for the generator.
func (s *taskSequence[T]) BindTask(tc *TaskContext[T]) {
	s.tc = tc
}

func (s *taskSequence[T]) Advance() (T, error) {
	if s.pull == nil {
		tc, fn := s.tc, s.fn
		next, stop := iter.Pull(func(yield func(T) bool) { fn(tc, yield) })
		s.pull = &pullSequence[T]{next: next, stop: stop}
	}
	return s.pull.Advance()
}

func (s *taskSequence[T]) Close() error {
	if s.pull == nil {
		return nil
	}
	return s.pull.Close()
}

// Values returns a sequence yielding vs in order.
func Values[T Float](vs ...T) Sequence[T] {
	i := 0
	return SequenceFunc[T](func() (T, error) {
		if i >= len(vs) {
			return 0, ErrDone
		}
		v := vs[i]
		i++
		return v, nil
	})
}

// Empty returns a sequence that yields once and finishes.
func Empty[T Float]() Sequence[T] {
	return Values[T](0)
}
