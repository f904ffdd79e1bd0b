package packer

import (
	"sync"
	"time"
)

// Job stages reported by JobRegistry.
const (
	StageQueued      = "queued"
	StagePacking     = "packing"
	StageSplitting   = "splitting"
	StageRegistering = "registering"
)

// JobState is a snapshot of a running job.
type JobState struct {
	JobID        string
	UserID       string
	Stage        string
	StartedAt    time.Time
	FilesTotal   int
	FilesDone    int
	FilesSkipped int
	BytesTotal   int64
	BytesDone    int64
	Parts        int
}

// JobRegistry tracks at most one running job per user. It is shared by
// reference between the engine and whoever reports progress.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*JobState
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*JobState)}
}

// begin registers a job for userID. It fails if the user already has one.
func (r *JobRegistry) begin(userID, jobID string, files int, bytes int64) (*jobTracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.jobs[userID]; running {
		return nil, false
	}
	r.jobs[userID] = &JobState{
		JobID:      jobID,
		UserID:     userID,
		Stage:      StageQueued,
		StartedAt:  time.Now(),
		FilesTotal: files,
		BytesTotal: bytes,
	}
	return &jobTracker{r: r, userID: userID, jobID: jobID}, true
}

// Get returns the running job of userID.
func (r *JobRegistry) Get(userID string) (JobState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.jobs[userID]
	if !ok {
		return JobState{}, false
	}
	return *s, true
}

// Running returns the number of running jobs.
func (r *JobRegistry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// jobTracker updates one job's entry. It implements Observer.
type jobTracker struct {
	r      *JobRegistry
	userID string
	jobID  string
}

func (t *jobTracker) update(fn func(*JobState)) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if s, ok := t.r.jobs[t.userID]; ok && s.JobID == t.jobID {
		fn(s)
	}
}

func (t *jobTracker) stage(stage string) {
	t.update(func(s *JobState) { s.Stage = stage })
}

func (t *jobTracker) finish() {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if s, ok := t.r.jobs[t.userID]; ok && s.JobID == t.jobID {
		delete(t.r.jobs, t.userID)
	}
}

func (t *jobTracker) FileAdded(string, int64) {
	t.update(func(s *JobState) { s.FilesDone++ })
}

func (t *jobTracker) FileSkipped(string, error) {
	t.update(func(s *JobState) { s.FilesSkipped++ })
}

func (t *jobTracker) BytesCopied(n int64) {
	t.update(func(s *JobState) { s.BytesDone += n })
}

func (t *jobTracker) PartWritten(int, string, int64) {
	t.update(func(s *JobState) { s.Parts++ })
}
