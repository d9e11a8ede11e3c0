package plan

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/gocoro/internal/jsexpr"
	"github.com/me/gocoro/pkg/coro"
)

// frame is one level of a program's step stack. left counts the repeats
// still owed after the current pass; a negative left repeats forever.
type frame struct {
	steps []Step
	pc    int
	left  int
}

// program runs a task's step list as a coro.Sequence. It keeps its position
// explicitly so it can be advanced one suspension point at a time.
type program[T coro.Float] struct {
	task   string
	tc     *coro.TaskContext[T]
	env    *jsexpr.Env
	lookup func(name string) (coro.Handle, bool)
	logger *slog.Logger

	stack []frame
	err   error // set by a wait predicate that failed to evaluate
}

func newProgram[T coro.Float](r *Runner[T], ts TaskSpec) *program[T] {
	return &program[T]{
		task:   ts.Name,
		env:    r.env,
		lookup: r.handle,
		logger: r.logger.With("task", ts.Name),
		stack:  []frame{{steps: ts.Steps}},
	}
}

// BindTask records the context the wait steps stage on.
func (p *program[T]) BindTask(tc *coro.TaskContext[T]) {
	p.tc = tc
}

// Advance runs steps until one produces a suspension value.
func (p *program[T]) Advance() (T, error) {
	for {
		if p.err != nil {
			return 0, p.err
		}
		if len(p.stack) == 0 {
			return 0, coro.ErrDone
		}
		f := &p.stack[len(p.stack)-1]
		if f.pc >= len(f.steps) {
			if f.left == 0 {
				p.stack = p.stack[:len(p.stack)-1]
				continue
			}
			if f.left > 0 {
				f.left--
			}
			f.pc = 0
			continue
		}
		st := f.steps[f.pc]
		f.pc++

		v, suspend, err := p.exec(st)
		if err != nil {
			return 0, err
		}
		if suspend {
			return v, nil
		}
	}
}

// exec runs one step. suspend reports whether v is a suspension value.
func (p *program[T]) exec(st Step) (v T, suspend bool, err error) {
	switch st.Kind() {
	case KindDelay:
		v, err = coro.FromSeconds[T](float64(*st.Delay))
		return v, err == nil, err
	case KindYield:
		v, err = coro.FromSeconds[T](*st.Yield)
		return v, err == nil, err
	case KindEval:
		if _, err := p.env.Eval(st.Eval); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	case KindLog:
		p.logger.Info(st.Log)
		return 0, false, nil
	case KindFail:
		return 0, false, errors.New(st.Fail)
	case KindWaitTrue:
		return coro.WaitUntilTrue(p.tc, p.predicate(st.WaitTrue, true)), true, nil
	case KindWaitFalse:
		return coro.WaitUntilFalse(p.tc, p.predicate(st.WaitFalse, false)), true, nil
	case KindWaitZero:
		return coro.WaitUntilZero(p.tc, p.counter(st.WaitZero)), true, nil
	case KindAfter:
		h, ok := p.lookup(st.After)
		if !ok {
			// Sibling not started yet; look again next tick.
			p.stack[len(p.stack)-1].pc--
			return coro.PollAgain[T](), true, nil
		}
		return coro.StartAfterTask(p.tc, h), true, nil
	case KindRepeat:
		p.stack = append(p.stack, frame{steps: st.Repeat.Steps, left: st.Repeat.Times - 1})
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("step has no single kind: %v", st.Kinds())
}

// predicate evaluates src for truthiness. An evaluation error returns
// release, which ends the wait, and is reported from the next Advance.
func (p *program[T]) predicate(src string, release bool) func() bool {
	return func() bool {
		ok, err := p.env.Bool(src)
		if err != nil {
			p.err = err
			return release
		}
		return ok
	}
}

func (p *program[T]) counter(src string) func() float64 {
	return func() float64 {
		n, err := p.env.Number(src)
		if err != nil {
			p.err = err
			return 0
		}
		return n
	}
}
