package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/me/gocoro/internal/jsexpr"
	"github.com/me/gocoro/internal/logging"
	"github.com/me/gocoro/pkg/coro"
)

func newTestRunner(t *testing.T, src string) *Runner[float64] {
	t.Helper()
	p := mustParse(t, src)
	if apiErr := Validate(p); apiErr != nil {
		t.Fatalf("Validate: %v", apiErr)
	}
	r, err := NewRunner[float64](p, nil, logging.Discard(), coro.WithTickLength(time.Second))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	t.Cleanup(r.Stop)
	return r
}

// drive starts r's tasks and ticks by hand until the live set drains. It
// returns the number of ticks taken.
func drive[T coro.Float](t *testing.T, r *Runner[T], maxTicks int) int {
	t.Helper()
	if err := r.startTasks(); err != nil {
		t.Fatalf("startTasks: %v", err)
	}
	for n := 0; n < maxTicks; n++ {
		if !r.sched.HasAnyTasks() {
			return n
		}
		r.sched.Tick()
	}
	t.Fatalf("plan still running after %d ticks", maxTicks)
	return 0
}

func taskState(t *testing.T, rep Report, name string) TaskResult {
	t.Helper()
	for _, tr := range rep.Tasks {
		if tr.Name == name {
			return tr
		}
	}
	t.Fatalf("no task %q in report", name)
	return TaskResult{}
}

func TestRunner_Countdown(t *testing.T) {
	r := newTestRunner(t, countdownPlan)
	drive(t, r, 20)

	rep := r.Report()
	for _, name := range []string{"worker", "watcher"} {
		if st := taskState(t, rep, name).State; st != coro.TaskStateSuccess {
			t.Errorf("%s state = %s, want SUCCESS", name, st)
		}
	}
	if rep.Vars["remaining"] != int64(0) {
		t.Errorf("remaining = %#v, want 0", rep.Vars["remaining"])
	}
	if rep.Stats.Splices != 2 {
		t.Errorf("Splices = %d, want 2", rep.Stats.Splices)
	}
	if rep.Failed() {
		t.Error("report marked failed")
	}
}

func TestRunner_AfterOrdersTasks(t *testing.T) {
	r := newTestRunner(t, `
setup: ["var order = [];"]
tasks:
  - name: second
    steps:
      - after: first
      - eval: order.push('second')
  - name: first
    steps:
      - delay: 2
      - eval: order.push('first')
`)
	drive(t, r, 20)

	got, err := r.env.Eval("order.join(',')")
	if err != nil {
		t.Fatal(err)
	}
	if got != "first,second" {
		t.Errorf("order = %v, want first,second", got)
	}
}

func TestRunner_FailStepFaultsTask(t *testing.T) {
	r := newTestRunner(t, `
tasks:
  - name: bad
    steps:
      - delay: 1
      - fail: disk on fire
  - name: good
    steps:
      - delay: 3
`)
	drive(t, r, 20)

	rep := r.Report()
	bad := taskState(t, rep, "bad")
	if bad.State != coro.TaskStateFailed || bad.Error != "disk on fire" {
		t.Errorf("bad = %+v, want FAILED with error", bad)
	}
	if st := taskState(t, rep, "good").State; st != coro.TaskStateSuccess {
		t.Errorf("good state = %s, want SUCCESS", st)
	}
	if !rep.Failed() {
		t.Error("Failed() = false")
	}
	if rep.Stats.Faults != 1 {
		t.Errorf("Faults = %d, want 1", rep.Stats.Faults)
	}
}

func TestRunner_PredicateErrorFaultsTask(t *testing.T) {
	tests := []struct {
		name string
		step string
	}{
		{"wait_true", "wait_true: missing > 0"},
		{"wait_false", "wait_false: missing > 0"},
		{"wait_zero", "wait_zero: missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t, "tasks:\n  - name: w\n    steps:\n      - "+tt.step+"\n      - delay: never\n")
			drive(t, r, 10)
			w := taskState(t, r.Report(), "w")
			if w.State != coro.TaskStateFailed || w.Error == "" {
				t.Errorf("w = %+v, want FAILED", w)
			}
		})
	}
}

func TestRunner_WaitFalseReleasedByOtherTask(t *testing.T) {
	r := newTestRunner(t, `
setup: ["var busy = true;"]
tasks:
  - name: waiter
    steps:
      - wait_false: busy
      - eval: released = true
  - name: clearer
    steps:
      - delay: 3
      - eval: busy = false
`)
	ticks := drive(t, r, 20)
	if ticks < 4 {
		t.Errorf("plan finished in %d ticks; waiter cannot pass before busy clears", ticks)
	}
	if r.Report().Vars["released"] != true {
		t.Error("waiter never ran past its wait")
	}
}

func TestRunner_RepeatForeverUntilKilled(t *testing.T) {
	r := newTestRunner(t, `
setup: ["var n = 0;"]
tasks:
  - name: spinner
    tag: spin
    steps:
      - repeat:
          steps:
            - yield: 0
            - eval: n++
`)
	if err := r.startTasks(); err != nil {
		t.Fatal(err)
	}
	for range 5 {
		r.sched.Tick()
	}
	n, err := r.env.Number("n")
	if err != nil {
		t.Fatal(err)
	}
	if n < 4 {
		t.Errorf("n = %v after 5 ticks, want at least 4", n)
	}

	r.sched.KillTasksByTag("spin")
	r.sched.Tick()
	if st := taskState(t, r.Report(), "spinner").State; st != coro.TaskStateKilled {
		t.Errorf("state = %s, want KILLED", st)
	}
}

func TestRunner_UndefinedYieldPollsAgain(t *testing.T) {
	r := newTestRunner(t, "tasks:\n  - name: a\n    steps:\n      - yield: .nan\n      - yield: 0\n")
	drive(t, r, 10)
	if st := taskState(t, r.Report(), "a").State; st != coro.TaskStateSuccess {
		t.Errorf("state = %s, want SUCCESS", st)
	}
}

func TestRunner_PausedTaskReported(t *testing.T) {
	r := newTestRunner(t, "tasks:\n  - name: p\n    paused: true\n    steps:\n      - delay: 1\n")
	if err := r.startTasks(); err != nil {
		t.Fatal(err)
	}
	r.sched.Tick()
	if st := taskState(t, r.Report(), "p").State; st != coro.TaskStatePaused {
		t.Errorf("state = %s, want PAUSED", st)
	}
}

func TestRunner_Run(t *testing.T) {
	p := mustParse(t, `
name: quick
tick_length: 2ms
setup: ["var done = false;"]
tasks:
  - name: a
    steps:
      - delay: 10ms
      - eval: done = true
  - name: b
    steps:
      - wait_true: done
`)
	exec, err := New(p, nil, "float64", logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep, err := exec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Plan != "quick" || rep.Precision != "float64" {
		t.Errorf("report header = %q/%q", rep.Plan, rep.Precision)
	}
	if rep.RunID != exec.ID() || rep.Elapsed <= 0 {
		t.Errorf("RunID = %q, Elapsed = %s", rep.RunID, rep.Elapsed)
	}
	for _, tr := range rep.Tasks {
		if tr.State != coro.TaskStateSuccess {
			t.Errorf("%s state = %s", tr.Name, tr.State)
		}
	}
}

func TestRunner_Timeout(t *testing.T) {
	p := mustParse(t, `
precision: float32
tick_length: 1ms
timeout: 20ms
tasks:
  - name: stuck
    steps:
      - delay: never
`)
	exec, err := New(p, nil, "float64", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	rep, err := exec.Run(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run = %v, want ErrTimeout", err)
	}
	if rep.Precision != "float32" {
		t.Errorf("Precision = %q, want plan override float32", rep.Precision)
	}
	if st := taskState(t, rep, "stuck").State; st != coro.TaskStateKilled {
		t.Errorf("state = %s, want KILLED", st)
	}
}

func TestNew_SharedEnv(t *testing.T) {
	env, err := jsexpr.New("var shared = 1;")
	if err != nil {
		t.Fatal(err)
	}
	p := mustParse(t, "setup: ['shared++']\ntasks:\n  - name: a\n    steps:\n      - delay: 1\n")
	if _, err := New(p, env, "", logging.Discard()); err != nil {
		t.Fatal(err)
	}
	if n, _ := env.Number("shared"); n != 2 {
		t.Errorf("shared = %v, want 2 (setup runs in the given env)", n)
	}
	if _, err := New(p, env, "float16", logging.Discard()); err == nil {
		t.Error("expected error for unsupported precision")
	}
}
