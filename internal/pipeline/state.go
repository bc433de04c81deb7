package pipeline

import (
	"sync"
	"time"
)

// RunStatus is the overall status of an analysis run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether a run in this status has finished.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// StepStatus is the status of one step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState is the runtime state of one step.
type StepState struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Message   string     `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Duration is the elapsed time of a finished step, zero otherwise.
func (s StepState) Duration() time.Duration {
	if s.StartTime == nil || s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(*s.StartTime)
}

// RunState tracks a run and its steps. It is safe for concurrent use; the
// analysis steps update it from several goroutines.
type RunState struct {
	mu sync.RWMutex

	id          string
	status      RunStatus
	startTime   time.Time
	endTime     *time.Time
	inputDigest string
	err         string
	steps       []*StepState
	byID        map[string]*StepState
}

// NewRunState creates a pending run with the given steps, all pending.
func NewRunState(id string, steps []Step) *RunState {
	rs := &RunState{
		id:     id,
		status: RunStatusPending,
		byID:   make(map[string]*StepState, len(steps)),
	}
	for _, s := range steps {
		st := &StepState{ID: s.ID(), Name: s.Name(), Status: StepStatusPending}
		rs.steps = append(rs.steps, st)
		rs.byID[st.ID] = st
	}
	return rs
}

// ID returns the run ID.
func (r *RunState) ID() string { return r.id }

// Status returns the current run status.
func (r *RunState) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *RunState) start(digest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = RunStatusRunning
	r.startTime = time.Now()
	r.inputDigest = digest
}

func (r *RunState) finish(status RunStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.endTime = &now
	r.status = status
	if err != nil {
		r.err = err.Error()
	}
}

// updateStep applies fn to the step and returns a copy of the new state.
func (r *RunState) updateStep(id string, fn func(*StepState)) (StepState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[id]
	if !ok {
		return StepState{}, false
	}
	fn(st)
	return *st, true
}

// Step returns a copy of one step's state.
func (r *RunState) Step(id string) (StepState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.byID[id]
	if !ok {
		return StepState{}, false
	}
	return *st, true
}

// Snapshot is a consistent, immutable copy of a run's state.
type Snapshot struct {
	ID          string      `json:"id"`
	Status      RunStatus   `json:"status"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
	InputDigest string      `json:"input_digest,omitempty"`
	Error       string      `json:"error,omitempty"`
	Steps       []StepState `json:"steps"`
}

// Snapshot copies the current state.
func (r *RunState) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		ID:          r.id,
		Status:      r.status,
		StartTime:   r.startTime,
		InputDigest: r.inputDigest,
		Error:       r.err,
		Steps:       make([]StepState, len(r.steps)),
	}
	if r.endTime != nil {
		end := *r.endTime
		s.EndTime = &end
	}
	for i, st := range r.steps {
		s.Steps[i] = *st
	}
	return s
}

// Duration returns the elapsed run time.
func (s Snapshot) Duration() time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	if s.StartTime.IsZero() {
		return 0
	}
	return time.Since(s.StartTime)
}
