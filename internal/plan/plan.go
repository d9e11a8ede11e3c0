// Package plan loads YAML plan files that describe tasks as step lists and
// runs them on a coro scheduler.
//
// A plan file looks like:
//
//	name: countdown
//	precision: float32
//	setup:
//	  - var remaining = 3;
//	tasks:
//	  - name: worker
//	    steps:
//	      - repeat:
//	          times: 3
//	          steps:
//	            - delay: 100ms
//	            - eval: remaining--
//	  - name: watcher
//	    steps:
//	      - wait_zero: remaining
//	      - log: countdown finished
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/me/gocoro/internal/jsexpr"
	"github.com/me/gocoro/pkg/model"
	"gopkg.in/yaml.v3"
)

// Plan is a set of tasks started together on one scheduler.
type Plan struct {
	Name       string        `yaml:"name"`
	Precision  string        `yaml:"precision,omitempty"`   // float32 or float64; empty uses the configured default
	TickLength time.Duration `yaml:"tick_length,omitempty"` // overrides the configured tick length
	Timeout    time.Duration `yaml:"timeout,omitempty"`     // wall-clock limit; 0 = none
	Setup      []string      `yaml:"setup,omitempty"`       // scripts run once in the shared JS environment
	Tasks      []TaskSpec    `yaml:"tasks"`
}

// TaskSpec describes one task. Name must be unique within the plan.
type TaskSpec struct {
	Name   string `yaml:"name"`
	Tag    string `yaml:"tag,omitempty"`
	Paused bool   `yaml:"paused,omitempty"`
	Steps  []Step `yaml:"steps"`
}

// Step is one entry in a task's step list. Exactly one field is set.
type Step struct {
	Delay     *Seconds `yaml:"delay,omitempty"`
	Yield     *float64 `yaml:"yield,omitempty"`
	Eval      string   `yaml:"eval,omitempty"`
	Log       string   `yaml:"log,omitempty"`
	WaitTrue  string   `yaml:"wait_true,omitempty"`
	WaitFalse string   `yaml:"wait_false,omitempty"`
	WaitZero  string   `yaml:"wait_zero,omitempty"`
	After     string   `yaml:"after,omitempty"`
	Repeat    *Repeat  `yaml:"repeat,omitempty"`
	Fail      string   `yaml:"fail,omitempty"`
}

// Repeat runs Steps Times times, or forever when Times is 0.
type Repeat struct {
	Times int    `yaml:"times,omitempty"`
	Steps []Step `yaml:"steps"`
}

// StepKind names the field a Step sets.
type StepKind string

const (
	KindDelay     StepKind = "delay"
	KindYield     StepKind = "yield"
	KindEval      StepKind = "eval"
	KindLog       StepKind = "log"
	KindWaitTrue  StepKind = "wait_true"
	KindWaitFalse StepKind = "wait_false"
	KindWaitZero  StepKind = "wait_zero"
	KindAfter     StepKind = "after"
	KindRepeat    StepKind = "repeat"
	KindFail      StepKind = "fail"
)

// Kinds returns every kind s sets, in declaration order.
func (s Step) Kinds() []StepKind {
	var out []StepKind
	set := func(ok bool, k StepKind) {
		if ok {
			out = append(out, k)
		}
	}
	set(s.Delay != nil, KindDelay)
	set(s.Yield != nil, KindYield)
	set(s.Eval != "", KindEval)
	set(s.Log != "", KindLog)
	set(s.WaitTrue != "", KindWaitTrue)
	set(s.WaitFalse != "", KindWaitFalse)
	set(s.WaitZero != "", KindWaitZero)
	set(s.After != "", KindAfter)
	set(s.Repeat != nil, KindRepeat)
	set(s.Fail != "", KindFail)
	return out
}

// Kind returns the single kind s sets, or "" when it sets none or several.
func (s Step) Kind() StepKind {
	if ks := s.Kinds(); len(ks) == 1 {
		return ks[0]
	}
	return ""
}

// suspends reports whether running s always yields a suspension value.
func (s Step) suspends() bool {
	switch s.Kind() {
	case KindEval, KindLog, KindFail:
		return false
	case KindRepeat:
		return anySuspends(s.Repeat.Steps)
	}
	return true
}

func anySuspends(steps []Step) bool {
	for _, st := range steps {
		if st.suspends() {
			return true
		}
	}
	return false
}

// Seconds is a logical duration. In YAML it may be a Go duration ("250ms"),
// a number of seconds (1.5), or "never".
type Seconds float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: delay must be a scalar", node.Line)
	}
	v := strings.TrimSpace(node.Value)
	switch strings.ToLower(v) {
	case "never", "inf", ".inf":
		*s = Seconds(math.Inf(1))
		return nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		*s = Seconds(d.Seconds())
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid delay %q", node.Line, node.Value)
	}
	*s = Seconds(f)
	return nil
}

// Load reads and parses the plan file at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a plan document. Unknown fields are rejected. Parse does not
// validate; call Validate.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty plan")
		}
		return nil, err
	}
	return &p, nil
}

// Validate checks a plan for structural errors. Returns nil if valid, or an
// *model.APIError listing every problem found.
func Validate(p *Plan) *model.APIError {
	var errs []model.FieldError

	switch p.Precision {
	case "", "float32", "float64":
	default:
		errs = append(errs, model.FieldError{
			Field:   "precision",
			Message: fmt.Sprintf("unsupported precision %q; expected float32 or float64", p.Precision),
		})
	}
	if p.TickLength < 0 {
		errs = append(errs, model.FieldError{Field: "tick_length", Message: "must not be negative"})
	}
	if p.Timeout < 0 {
		errs = append(errs, model.FieldError{Field: "timeout", Message: "must not be negative"})
	}
	for i, src := range p.Setup {
		if err := jsexpr.Check(src); err != nil {
			errs = append(errs, model.FieldError{Field: fmt.Sprintf("setup[%d]", i), Message: err.Error()})
		}
	}
	if len(p.Tasks) == 0 {
		errs = append(errs, model.FieldError{Field: "tasks", Message: "plan must have at least one task"})
	}

	names := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		field := fmt.Sprintf("tasks[%d].name", i)
		switch {
		case t.Name == "":
			errs = append(errs, model.FieldError{Field: field, Message: "name is required"})
		case names[t.Name]:
			errs = append(errs, model.FieldError{Field: field, Message: fmt.Sprintf("duplicate task name %q", t.Name)})
		}
		names[t.Name] = true
	}

	for i, t := range p.Tasks {
		path := fmt.Sprintf("tasks[%d].steps", i)
		if len(t.Steps) == 0 {
			errs = append(errs, model.FieldError{Field: path, Message: "task must have at least one step"})
		}
		errs = append(errs, validateSteps(path, t.Name, t.Steps, names)...)
	}

	if len(errs) == 0 {
		return nil
	}
	return model.NewValidationError("plan validation failed", errs...)
}

func validateSteps(path, task string, steps []Step, names map[string]bool) []model.FieldError {
	var errs []model.FieldError
	for i, st := range steps {
		field := fmt.Sprintf("%s[%d]", path, i)
		ks := st.Kinds()
		if len(ks) != 1 {
			errs = append(errs, model.FieldError{
				Field:   field,
				Message: fmt.Sprintf("step must set exactly one kind, got %d %v", len(ks), ks),
			})
			continue
		}
		switch ks[0] {
		case KindDelay:
			if math.IsNaN(float64(*st.Delay)) {
				errs = append(errs, model.FieldError{Field: field + ".delay", Message: "delay must be a number"})
			}
		case KindEval, KindWaitTrue, KindWaitFalse, KindWaitZero:
			src := st.Eval + st.WaitTrue + st.WaitFalse + st.WaitZero
			if err := jsexpr.Check(src); err != nil {
				errs = append(errs, model.FieldError{Field: field + "." + string(ks[0]), Message: err.Error()})
			}
		case KindAfter:
			switch {
			case st.After == task:
				errs = append(errs, model.FieldError{Field: field + ".after", Message: "task cannot wait for itself"})
			case !names[st.After]:
				errs = append(errs, model.FieldError{Field: field + ".after", Message: fmt.Sprintf("unknown task %q", st.After)})
			}
		case KindRepeat:
			r := st.Repeat
			if r.Times < 0 {
				errs = append(errs, model.FieldError{Field: field + ".repeat.times", Message: "must not be negative"})
			}
			if len(r.Steps) == 0 {
				errs = append(errs, model.FieldError{Field: field + ".repeat.steps", Message: "repeat must have at least one step"})
			} else if r.Times == 0 && !anySuspends(r.Steps) {
				errs = append(errs, model.FieldError{
					Field:   field + ".repeat",
					Message: "endless repeat must contain a step that suspends (delay, yield, wait or after)",
				})
			}
			errs = append(errs, validateSteps(field+".repeat.steps", task, r.Steps, names)...)
		}
	}
	return errs
}
