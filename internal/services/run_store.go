package services

import (
	"sort"
	"sync"
	"time"

	"ethvaluation/internal/pipeline"
)

// runRecord is one submitted run. The pipeline run is set when the record is
// created; outputs are written once the run finished.
type runRecord struct {
	id          string
	createdAt   time.Time
	request     RunRequest
	monthlyPath string
	dailyPath   string
	run         *pipeline.Run
	cancel      func()
	done        chan struct{}

	mu        sync.Mutex
	outputs   []string
	exportErr string
}

func (r *runRecord) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *runRecord) setOutputs(paths []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = paths
	if err != nil {
		r.exportErr = err.Error()
	}
}

func (r *runRecord) info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunInfo{
		Snapshot:    r.run.State.Snapshot(),
		CreatedAt:   r.createdAt,
		Request:     r.request,
		MonthlyPath: r.monthlyPath,
		DailyPath:   r.dailyPath,
		Outputs:     append([]string(nil), r.outputs...),
		ExportError: r.exportErr,
	}
}

// RunStore keeps the most recent runs in memory. When full, the oldest
// finished run is evicted; running runs are never evicted.
type RunStore struct {
	mu      sync.RWMutex
	maxRuns int
	runs    map[string]*runRecord
}

// NewRunStore creates a store holding at most maxRuns runs.
func NewRunStore(maxRuns int) *RunStore {
	if maxRuns <= 0 {
		maxRuns = 100
	}
	return &RunStore{maxRuns: maxRuns, runs: make(map[string]*runRecord)}
}

func (s *RunStore) add(rec *runRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.runs) >= s.maxRuns {
		var oldest *runRecord
		for _, r := range s.runs {
			if r.finished() && (oldest == nil || r.createdAt.Before(oldest.createdAt)) {
				oldest = r
			}
		}
		if oldest == nil {
			return ErrTooManyRuns
		}
		delete(s.runs, oldest.id)
	}
	s.runs[rec.id] = rec
	return nil
}

func (s *RunStore) get(id string) (*runRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

// list returns the runs newest first.
func (s *RunStore) list() []*runRecord {
	s.mu.RLock()
	out := make([]*runRecord, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id > out[j].id
		}
		return out[i].createdAt.After(out[j].createdAt)
	})
	return out
}

// Stats counts the stored runs by status.
func (s *RunStore) Stats() map[string]int {
	stats := map[string]int{"total": 0}
	for _, r := range s.list() {
		stats["total"]++
		stats[string(r.run.State.Status())]++
	}
	return stats
}
