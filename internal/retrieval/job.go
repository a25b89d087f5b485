package retrieval

import (
	"fmt"
	"sync"
	"time"

	"uniloader/internal/media"
)

// State is a job's lifecycle position.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateExpired   State = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateExpired
}

var transitions = map[State][]State{
	StateRunning:   {StateSucceeded, StateFailed},
	StateSucceeded: {StateExpired},
}

// Job is one retrieval request. Identity fields are immutable after NewJob.
type Job struct {
	ID         string
	SourceURL  string
	VariantID  string
	Kind       media.Kind
	OutputPath string
	CreatedAt  time.Time

	mu            sync.Mutex
	state         State
	finishedAt    time.Time
	expiresAt     time.Time
	exitCode      int
	err           error
	expiryPending bool
}

// Snapshot is a point-in-time copy of a Job.
type Snapshot struct {
	ID         string     `json:"jobId"`
	SourceURL  string     `json:"sourceUrl"`
	VariantID  string     `json:"variantId,omitempty"`
	Kind       media.Kind `json:"mediaKind"`
	OutputPath string     `json:"-"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt time.Time  `json:"finishedAt,omitzero"`
	ExpiresAt  time.Time  `json:"expiresAt,omitzero"`
	ExitCode   int        `json:"exitCode,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Snapshot copies the job under its lock.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := Snapshot{
		ID:         j.ID,
		SourceURL:  j.SourceURL,
		VariantID:  j.VariantID,
		Kind:       j.Kind,
		OutputPath: j.OutputPath,
		State:      j.state,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.finishedAt,
		ExpiresAt:  j.expiresAt,
		ExitCode:   j.exitCode,
	}
	if j.err != nil {
		snap.Error = j.err.Error()
	}
	return snap
}

func (j *Job) transition(to State, at time.Time, mutate func(*Job)) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(to, at, mutate)
}

func (j *Job) transitionLocked(to State, at time.Time, mutate func(*Job)) error {
	allowed := false
	for _, next := range transitions[j.state] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, j.state, to)
	}
	j.state = to
	if to != StateExpired {
		j.finishedAt = at
	}
	if mutate != nil {
		mutate(j)
	}
	return nil
}

// succeed moves a running job to succeeded. An expiry requested while the
// job was still running is applied in the same step; expired reports it.
func (j *Job) succeed(at, expiresAt time.Time) (expired bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateSucceeded, at, func(j *Job) { j.expiresAt = expiresAt }); err != nil {
		return false, err
	}
	if !j.expiryPending {
		return false, nil
	}
	j.expiryPending = false
	return true, j.transitionLocked(StateExpired, at, nil)
}

func (j *Job) fail(at time.Time, exitCode int, err error) error {
	return j.transition(StateFailed, at, func(j *Job) {
		j.exitCode = exitCode
		j.err = err
	})
}

func (j *Job) expire(at time.Time) error {
	return j.transition(StateExpired, at, nil)
}

// requestExpiry expires a succeeded job. A running job only records the
// request and deferred is true; succeed completes it.
func (j *Job) requestExpiry(at time.Time) (deferred bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateRunning {
		j.expiryPending = true
		return true, nil
	}
	return false, j.transitionLocked(StateExpired, at, nil)
}
