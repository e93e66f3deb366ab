package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"image-tagger/internal/metrics"
)

// Snapshot is a consistent copy of the reporter state.
type Snapshot struct {
	Active         bool       `json:"active"`
	Progress       int        `json:"progress"`
	CurrentTask    string     `json:"current_task"`
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	Operation      string     `json:"operation,omitempty"`
	RunID          string     `json:"run_id,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Reporter is safe for concurrent use.
type Reporter struct {
	mu        sync.Mutex
	active    bool
	operation string
	runID     string
	current   string
	total     int
	completed int
	startedAt time.Time
	err       string
	now       func() time.Time
}

// New creates an idle Reporter.
func New() *Reporter {
	return &Reporter{now: time.Now}
}

// BeginRun registers total units of work for operation and returns the run
// ID. If a run is already active its total is extended instead.
func (r *Reporter) BeginRun(operation string, total int) string {
	if total < 0 {
		total = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		r.total += total
		r.publish()
		return r.runID
	}

	r.active = true
	r.operation = operation
	r.runID = uuid.NewString()
	r.current = ""
	r.total = total
	r.completed = 0
	r.startedAt = r.now()
	r.err = ""
	r.publish()
	return r.runID
}

// SetCurrentTask records what is being worked on without counting it.
func (r *Reporter) SetCurrentTask(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.current = label
	}
}

// Advance counts one finished unit. It returns false when there is no
// active run or the run is already at its total.
func (r *Reporter) Advance(label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.completed >= r.total {
		return false
	}
	r.completed++
	r.current = label
	r.publish()
	return true
}

// Retract withdraws n registered units that will never be advanced, for
// example when a folder scan is cancelled part way.
func (r *Reporter) Retract(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || n <= 0 {
		return
	}
	r.total -= n
	if r.total < r.completed {
		r.total = r.completed
	}
	r.publish()
}

// EndRun deactivates the run if every unit has been accounted for and
// reports whether it did.
func (r *Reporter) EndRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.completed != r.total {
		return false
	}
	r.active = false
	r.current = ""
	r.publish()
	return true
}

// Abort deactivates the run immediately and records reason.
func (r *Reporter) Abort(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	r.active = false
	r.err = reason
	r.current = ""
	r.publish()
}

// Active reports whether a run is in progress.
func (r *Reporter) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Snapshot returns the current state.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Active:         r.active,
		CurrentTask:    r.current,
		TotalTasks:     r.total,
		CompletedTasks: r.completed,
		Operation:      r.operation,
		RunID:          r.runID,
		Error:          r.err,
	}
	if r.total > 0 {
		s.Progress = r.completed * 100 / r.total
	} else if r.runID != "" && !r.active {
		s.Progress = 100
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		s.StartedAt = &t
	}
	return s
}

// publish mirrors the state into gauges. Callers hold r.mu.
func (r *Reporter) publish() {
	if r.active {
		metrics.ProgressActive.Set(1)
	} else {
		metrics.ProgressActive.Set(0)
	}
	metrics.ProgressTotalTasks.Set(float64(r.total))
	metrics.ProgressCompletedTasks.Set(float64(r.completed))
}
