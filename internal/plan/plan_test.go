package plan

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const countdownPlan = `
name: countdown
precision: float32
timeout: 5s
setup:
  - var remaining = 3;
tasks:
  - name: worker
    tag: workers
    steps:
      - repeat:
          times: 3
          steps:
            - delay: 1
            - eval: remaining--
  - name: watcher
    steps:
      - wait_zero: remaining
      - log: countdown finished
`

func mustParse(t *testing.T, src string) *Plan {
	t.Helper()
	p, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func TestParse(t *testing.T) {
	p := mustParse(t, countdownPlan)
	if p.Name != "countdown" || p.Precision != "float32" || p.Timeout != 5*time.Second {
		t.Errorf("header = %q/%q/%s", p.Name, p.Precision, p.Timeout)
	}
	if len(p.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(p.Tasks))
	}
	rep := p.Tasks[0].Steps[0]
	if rep.Kind() != KindRepeat || rep.Repeat.Times != 3 || len(rep.Repeat.Steps) != 2 {
		t.Errorf("repeat step = %+v", rep)
	}
	if got := *rep.Repeat.Steps[0].Delay; got != 1 {
		t.Errorf("delay = %v, want 1", got)
	}
	if p.Tasks[1].Steps[0].Kind() != KindWaitZero {
		t.Errorf("watcher first step kind = %q", p.Tasks[1].Steps[0].Kind())
	}
	if err := Validate(p); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("name: x\ntasks:\n  - name: a\n    stpes: []\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestSeconds_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"250ms", 0.25},
		{"1.5", 1.5},
		{"2", 2},
		{"1m", 60},
		{"-1", -1},
		{"never", math.Inf(1)},
		{".inf", math.Inf(1)},
	}
	for _, tt := range tests {
		p := mustParse(t, "tasks:\n  - name: a\n    steps:\n      - delay: "+tt.in+"\n")
		if got := float64(*p.Tasks[0].Steps[0].Delay); got != tt.want {
			t.Errorf("delay %s = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := Parse([]byte("tasks:\n  - name: a\n    steps:\n      - delay: soon\n")); err == nil {
		t.Error("expected error for invalid delay")
	}
}

func TestYield_SpecialValues(t *testing.T) {
	p := mustParse(t, "tasks:\n  - name: a\n    steps:\n      - yield: .nan\n      - yield: -.inf\n")
	if y := *p.Tasks[0].Steps[0].Yield; !math.IsNaN(y) {
		t.Errorf("yield .nan = %v", y)
	}
	if y := *p.Tasks[0].Steps[1].Yield; !math.IsInf(y, -1) {
		t.Errorf("yield -.inf = %v", y)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"no tasks", "name: x\n", "tasks"},
		{"bad precision", "precision: float16\ntasks:\n  - name: a\n    steps:\n      - delay: 1\n", "precision"},
		{"missing name", "tasks:\n  - steps:\n      - delay: 1\n", "tasks[0].name"},
		{"duplicate name", "tasks:\n  - name: a\n    steps:\n      - delay: 1\n  - name: a\n    steps:\n      - delay: 1\n", "tasks[1].name"},
		{"no steps", "tasks:\n  - name: a\n    steps: []\n", "tasks[0].steps"},
		{"two kinds", "tasks:\n  - name: a\n    steps:\n      - delay: 1\n        eval: x\n", "tasks[0].steps[0]"},
		{"no kind", "tasks:\n  - name: a\n    steps:\n      - {}\n", "tasks[0].steps[0]"},
		{"bad js", "tasks:\n  - name: a\n    steps:\n      - wait_true: 'a >'\n", "tasks[0].steps[0].wait_true"},
		{"bad setup", "setup: ['var = 1']\ntasks:\n  - name: a\n    steps:\n      - delay: 1\n", "setup[0]"},
		{"after self", "tasks:\n  - name: a\n    steps:\n      - after: a\n", "tasks[0].steps[0].after"},
		{"after unknown", "tasks:\n  - name: a\n    steps:\n      - after: b\n", "tasks[0].steps[0].after"},
		{"busy repeat", "tasks:\n  - name: a\n    steps:\n      - repeat:\n          steps:\n            - eval: x++\n", "tasks[0].steps[0].repeat"},
		{"nested", "tasks:\n  - name: a\n    steps:\n      - repeat:\n          times: 2\n          steps:\n            - after: zz\n", "tasks[0].steps[0].repeat.steps[0].after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := Validate(mustParse(t, tt.src))
			if apiErr == nil {
				t.Fatal("expected validation error")
			}
			var fields []string
			for _, d := range apiErr.Details {
				fields = append(fields, d.Field)
			}
			found := false
			for _, f := range fields {
				if f == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("fields = %s, want %s", strings.Join(fields, ", "), tt.field)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(countdownPlan), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "countdown" {
		t.Errorf("Name = %q", p.Name)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
