package analysis

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound indicates an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobState is the lifecycle of a background build.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job is a snapshot of one background build.
type Job struct {
	ID         string        `json:"id"`
	RecordID   int64         `json:"record_id"`
	Owner      string        `json:"owner"`
	State      JobState      `json:"state"`
	Attempt    int           `json:"attempt,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns,omitempty"`
	Error      string        `json:"error,omitempty"`
	Preview    string        `json:"preview,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a final state.
func (j Job) Done() bool {
	return j.State == JobSucceeded || j.State == JobFailed
}

// jobs tracks background builds in memory. At most one unfinished job
// exists per record.
type jobs struct {
	mu       sync.Mutex
	byID     map[string]*Job
	active   map[int64]string
	now      func() time.Time
	retained int
	order    []string
}

func newJobs(now func() time.Time, retained int) *jobs {
	return &jobs{
		byID:     make(map[string]*Job),
		active:   make(map[int64]string),
		now:      now,
		retained: retained,
	}
}

// start registers a pending job for recordID. If one is already unfinished
// it is returned with started=false.
func (j *jobs) start(recordID int64, owner string) (job Job, started bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if id, ok := j.active[recordID]; ok {
		return *j.byID[id], false
	}
	nj := &Job{
		ID:        uuid.NewString(),
		RecordID:  recordID,
		Owner:     owner,
		State:     JobPending,
		CreatedAt: j.now(),
	}
	j.byID[nj.ID] = nj
	j.active[recordID] = nj.ID
	j.order = append(j.order, nj.ID)
	j.evict()
	return *nj, true
}

func (j *jobs) progress(id string, attempt int, elapsed time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if job, ok := j.byID[id]; ok && !job.Done() {
		job.State = JobRunning
		job.Attempt = attempt
		job.Elapsed = elapsed
	}
}

func (j *jobs) running(id string) {
	j.progress(id, 1, 0)
}

func (j *jobs) finish(id string, err error, preview string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.byID[id]
	if !ok {
		return
	}
	now := j.now()
	job.FinishedAt = &now
	job.Elapsed = now.Sub(job.CreatedAt)
	if err != nil {
		job.State = JobFailed
		job.Error = err.Error()
		job.Preview = preview
	} else {
		job.State = JobSucceeded
	}
	if j.active[job.RecordID] == id {
		delete(j.active, job.RecordID)
	}
}

func (j *jobs) get(id string) (Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.byID[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// evict drops the oldest finished jobs beyond the retention limit.
func (j *jobs) evict() {
	if j.retained <= 0 || len(j.order) <= j.retained {
		return
	}
	kept := j.order[:0]
	excess := len(j.order) - j.retained
	for _, id := range j.order {
		if excess > 0 && j.byID[id].Done() {
			delete(j.byID, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	j.order = kept
}

func (j *jobs) activeCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.active)
}
