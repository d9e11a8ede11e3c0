package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/gocoro/internal/jsexpr"
	"github.com/me/gocoro/internal/logging"
	"github.com/me/gocoro/internal/server"
	"github.com/me/gocoro/pkg/coro"
)

const fastPlan = `
name: fast
tick_length: 1ms
timeout: 10s
setup:
  - var done = 0;
tasks:
  - name: first
    steps:
      - delay: 0.002
      - eval: done++
  - name: second
    steps:
      - after: first
      - eval: done++
`

const failingPlan = `
name: failing
tick_length: 1ms
timeout: 10s
tasks:
  - name: broken
    steps:
      - fail: boom
`

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"GOCORO_CONFIG", "GOCORO_SERVER", "GOCORO_TICK_LENGTH", "GOCORO_PRECISION", "GOCORO_LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writePlan(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	return path
}

// startTestServer serves a hand-driven scheduler and returns it with the URL.
func startTestServer(t *testing.T) (*coro.Scheduler[float64], *jsexpr.Env, string) {
	t.Helper()
	sched := coro.NewScheduler[float64](coro.WithTickLength(time.Second))
	t.Cleanup(func() { sched.Stop() })
	env, err := jsexpr.New("var ready = false;")
	if err != nil {
		t.Fatalf("jsexpr.New: %v", err)
	}
	srv := server.New(sched, logging.Discard(), server.WithEnv(env))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return sched, env, ts.URL
}

func parked() coro.Sequence[float64] {
	return coro.Values[float64](coro.Never[float64]())
}

func TestValidateCmd(t *testing.T) {
	good := writePlan(t, fastPlan)
	out, err := runCLI(t, "validate", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, good+": ok") {
		t.Errorf("output = %q", out)
	}

	bad := writePlan(t, "name: bad\ntasks:\n  - name: x\n    steps:\n      - after: nobody\n")
	out, err = runCLI(t, "validate", good, bad)
	if err == nil {
		t.Fatal("expected error for invalid plan")
	}
	if !strings.Contains(out, "tasks[0].steps[0].after") {
		t.Errorf("output missing field path: %q", out)
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %v", err)
	}
}

func TestRunCmd_JSONReport(t *testing.T) {
	path := writePlan(t, fastPlan)
	out, err := runCLI(t, "run", path, "--output", "json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}

	var rep struct {
		Plan  string `json:"plan"`
		Tasks []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"tasks"`
		Vars map[string]any `json:"vars"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("parse report: %v\n%s", err, out)
	}
	if rep.Plan != "fast" || len(rep.Tasks) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	for _, task := range rep.Tasks {
		if task.State != string(coro.TaskStateSuccess) {
			t.Errorf("task %s state = %s", task.Name, task.State)
		}
	}
	if got, _ := rep.Vars["done"].(float64); got != 2 {
		t.Errorf("done = %v, want 2", rep.Vars["done"])
	}
}

func TestRunCmd_FailedPlan(t *testing.T) {
	out, err := runCLI(t, "run", writePlan(t, failingPlan))
	if err != errPlanFailed {
		t.Fatalf("run error = %v, want errPlanFailed", err)
	}
	if !strings.Contains(out, "boom") || !strings.Contains(out, string(coro.TaskStateFailed)) {
		t.Errorf("YAML report missing the fault:\n%s", out)
	}
}

func TestRunCmd_BadOutput(t *testing.T) {
	if _, err := runCLI(t, "run", writePlan(t, fastPlan), "-o", "xml"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestTasksCmd(t *testing.T) {
	sched, _, url := startTestServer(t)
	a := sched.StartTask(parked(), "alpha")
	sched.StartTask(parked(), "beta")

	out, err := runCLI(t, "--server", url, "tasks")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "beta") {
		t.Errorf("list output = %q", out)
	}

	out, err = runCLI(t, "--server", url, "tasks", "--tag", "alpha")
	if err != nil {
		t.Fatalf("tasks --tag: %v", err)
	}
	if !strings.Contains(out, a.String()) || strings.Contains(out, "beta") {
		t.Errorf("filtered output = %q", out)
	}

	out, err = runCLI(t, "--server", url, "tasks", a.String())
	if err != nil {
		t.Fatalf("tasks <id>: %v", err)
	}
	if !strings.Contains(out, "alpha") {
		t.Errorf("single task output = %q", out)
	}

	if _, err := runCLI(t, "--server", url, "tasks", "task-999999"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestKillCmd(t *testing.T) {
	sched, _, url := startTestServer(t)
	a := sched.StartTask(parked(), "x")
	b := sched.StartTask(parked(), "y")
	c := sched.StartTask(parked(), "y")

	if _, err := runCLI(t, "--server", url, "kill"); err == nil {
		t.Error("expected error with neither ids nor --tag")
	}

	if _, err := runCLI(t, "--server", url, "kill", a.String()); err != nil {
		t.Fatalf("kill id: %v", err)
	}
	out, err := runCLI(t, "--server", url, "kill", "--tag", "y")
	if err != nil {
		t.Fatalf("kill --tag: %v", err)
	}
	if !strings.Contains(out, "Killed 2") {
		t.Errorf("output = %q", out)
	}

	sched.Tick()
	for _, h := range []coro.Handle{a, b, c} {
		if sched.TaskExists(h) {
			t.Errorf("%s survived kill", h)
		}
	}
}

func TestPauseResumeCmd(t *testing.T) {
	sched, _, url := startTestServer(t)
	h := sched.StartTask(parked(), "p")

	out, err := runCLI(t, "--server", url, "pause", h.String())
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !sched.TaskPaused(h) || !strings.Contains(out, "PAUSED") {
		t.Errorf("after pause: paused=%v output=%q", sched.TaskPaused(h), out)
	}
	if _, err := runCLI(t, "--server", url, "resume", h.String()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if sched.TaskPaused(h) {
		t.Error("task still paused after resume")
	}

	if _, err := runCLI(t, "--server", url, "pause", "--ticks"); err != nil {
		t.Fatalf("pause --ticks: %v", err)
	}
	if !sched.TicksPaused() {
		t.Error("ticks not paused")
	}
	if _, err := runCLI(t, "--server", url, "resume", "--ticks"); err != nil {
		t.Fatalf("resume --ticks: %v", err)
	}
	if sched.TicksPaused() {
		t.Error("ticks still paused")
	}
}

func TestVarsCmd(t *testing.T) {
	_, env, url := startTestServer(t)

	if _, err := runCLI(t, "--server", url, "vars", "set", "ready", "true"); err != nil {
		t.Fatalf("vars set: %v", err)
	}
	ok, err := env.Bool("ready")
	if err != nil || !ok {
		t.Errorf("ready = %v, %v; want true", ok, err)
	}

	out, err := runCLI(t, "--server", url, "vars")
	if err != nil {
		t.Fatalf("vars: %v", err)
	}
	if !strings.Contains(out, "ready = true") {
		t.Errorf("vars output = %q", out)
	}

	if _, err := runCLI(t, "--server", url, "vars", "set", "x", "{not json"); err == nil {
		t.Error("expected error for invalid JSON value")
	}
}
