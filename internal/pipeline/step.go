package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Step IDs in execution order.
const (
	StepPrepare      = "prepare"
	StepStationarity = "stationarity"
	StepModelFrame   = "model_frame"
	StepOLS          = "ols"
	StepDiagnostics  = "diagnostics"
	StepVECM         = "vecm"
	StepARDL         = "ardl"
	StepOOS          = "oos"
	StepSummary      = "summary"
)

// ErrSkipped is returned, possibly wrapped, by a step that had nothing to do.
var ErrSkipped = errors.New("step skipped")

func skipped(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

// Step is one unit of an analysis run.
type Step interface {
	ID() string
	Name() string
	Execute(ctx context.Context, run *Run) error
}

// funcStep adapts a function to Step. A fatal step aborts the run when it
// fails; the others only mark themselves failed.
type funcStep struct {
	id    string
	name  string
	fatal bool
	fn    func(ctx context.Context, run *Run) error
}

func (s *funcStep) ID() string   { return s.id }
func (s *funcStep) Name() string { return s.name }

func (s *funcStep) Execute(ctx context.Context, run *Run) error {
	return s.fn(ctx, run)
}

// Event reports a change of run or step state to an Observer.
type Event struct {
	Type      string     `json:"type"`
	RunID     string     `json:"run_id"`
	Status    RunStatus  `json:"status,omitempty"`
	Step      *StepState `json:"step,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Event types.
const (
	EventRun  = "run_update"
	EventStep = "step_update"
)

// Observer receives progress events. Notify is called from the goroutine
// running the step and must not block for long.
type Observer interface {
	Notify(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Metrics records run and step outcomes. It also counts walk-forward windows.
type Metrics interface {
	RecordRun(ctx context.Context, status string)
	RecordStep(ctx context.Context, step string, d time.Duration, failed bool)
	RecordWindow(ctx context.Context, failed bool)
}
