package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/anarcoiris/FaceGUI/internal/clients"
)

// JobState is the lifecycle of a background training job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobAbandoned JobState = "abandoned"
)

// TrainingJob is a Train call running in the background.
type TrainingJob struct {
	ID        string
	GroupID   string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      JobState
	err        error
	finishedAt time.Time
}

// JobSnapshot is a point-in-time view of a TrainingJob.
type JobSnapshot struct {
	ID         string     `json:"id"`
	GroupID    string     `json:"groupId"`
	State      JobState   `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// StartTraining runs Train in a goroutine and returns at once. Cancelling
// the job, or ctx, stops the local wait only.
func (uc *FaceUseCase) StartTraining(ctx context.Context, cfg clients.Configuration, groupID string) *TrainingJob {
	jobCtx, cancel := context.WithCancel(ctx)
	job := &TrainingJob{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     JobRunning,
	}
	go func() {
		defer cancel()
		job.finish(uc.Train(jobCtx, cfg, groupID))
	}()
	return job
}

func (j *TrainingJob) finish(err error) {
	j.mu.Lock()
	j.err = err
	j.finishedAt = time.Now().UTC()
	switch {
	case err == nil:
		j.state = JobSucceeded
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		j.state = JobAbandoned
	default:
		j.state = JobFailed
	}
	j.mu.Unlock()
	close(j.done)
}

// Done is closed when the job stops.
func (j *TrainingJob) Done() <-chan struct{} { return j.done }

// Err returns the outcome once Done is closed.
func (j *TrainingJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Cancel abandons the wait.
func (j *TrainingJob) Cancel() { j.cancel() }

// State reports the current lifecycle state.
func (j *TrainingJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Snapshot copies the job's public state.
func (j *TrainingJob) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := JobSnapshot{
		ID:        j.ID,
		GroupID:   j.GroupID,
		State:     j.state,
		StartedAt: j.StartedAt,
	}
	if j.err != nil {
		snap.Error = j.err.Error()
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

// TrainingTracker indexes background training jobs by id.
type TrainingTracker struct {
	jobs cmap.ConcurrentMap[string, *TrainingJob]
}

// NewTrainingTracker returns an empty tracker.
func NewTrainingTracker() *TrainingTracker {
	return &TrainingTracker{jobs: cmap.New[*TrainingJob]()}
}

// Track registers job.
func (t *TrainingTracker) Track(job *TrainingJob) {
	t.jobs.Set(job.ID, job)
}

// Get looks a job up by id.
func (t *TrainingTracker) Get(id string) (*TrainingJob, bool) {
	return t.jobs.Get(id)
}

// Cancel abandons the wait of a tracked job.
func (t *TrainingTracker) Cancel(id string) bool {
	job, ok := t.jobs.Get(id)
	if !ok {
		return false
	}
	job.Cancel()
	return true
}

// List returns snapshots of every job, newest first.
func (t *TrainingTracker) List() []JobSnapshot {
	out := make([]JobSnapshot, 0, t.jobs.Count())
	for _, job := range t.jobs.Items() {
		out = append(out, job.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Prune drops finished jobs older than maxAge and returns how many it removed.
func (t *TrainingTracker) Prune(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, job := range t.jobs.Items() {
		snap := job.Snapshot()
		if snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
			t.jobs.Remove(id)
			removed++
		}
	}
	return removed
}
