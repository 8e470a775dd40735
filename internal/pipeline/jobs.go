package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/paperidx/internal/loader"
)

// JobStatus represents the state of a load job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusFailed    JobStatus = "failed"
)

// Job tracks the lazy loading of a list of documents.
type Job struct {
	mu sync.Mutex

	ID     string   `json:"job_id"`
	DocIDs []string `json:"doc_ids"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	phases  map[string]loader.Status
	results map[string]loader.Result
	errors  []string
}

// NewJob returns a queued job with a fresh random id.
func NewJob(docIDs []string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		DocIDs:    docIDs,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Progress counts documents by phase.
type Progress struct {
	Total     int      `json:"total"`
	Finished  int      `json:"finished"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of retained jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// Observe records a document phase change. It is a loader.Observer.
func (j *Job) Observe(docID string, status loader.Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.phases == nil {
		j.phases = make(map[string]loader.Status)
	}
	j.phases[docID] = status
	j.UpdatedAt = time.Now()
}

// Finish stores the per-document results and derives the final status:
// completed when every document is indexed, failed when none is, partial
// otherwise.
func (j *Job) Finish(results map[string]loader.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = results
	ok := 0
	for _, r := range results {
		if succeeded(r.Status) {
			ok++
		} else {
			j.errors = append(j.errors, r.DocID+": "+string(r.Status)+" "+r.Message)
		}
	}
	sort.Strings(j.errors)
	switch {
	case ok == len(results):
		j.Status = StatusCompleted
	case ok == 0:
		j.Status = StatusFailed
	default:
		j.Status = StatusPartial
	}
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

func succeeded(s loader.Status) bool {
	return s == loader.StatusSuccess || s == loader.StatusAlreadyIndexed
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string                   `json:"job_id"`
	DocIDs    []string                 `json:"doc_ids"`
	Status    JobStatus                `json:"status"`
	Phase     string                   `json:"phase"`
	Progress  Progress                 `json:"progress"`
	Documents map[string]loader.Status `json:"documents"`
	Results   []loader.Result          `json:"results,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	docs := make(map[string]loader.Status, len(j.DocIDs))
	for _, id := range j.DocIDs {
		docs[id] = ""
	}
	for id, s := range j.phases {
		docs[id] = s
	}

	p := Progress{Total: len(docs), Errors: append([]string{}, j.errors...)}
	for _, s := range docs {
		if s == "" || !s.Terminal() {
			continue
		}
		p.Finished++
		if succeeded(s) {
			p.Succeeded++
		} else {
			p.Failed++
		}
	}

	var results []loader.Result
	for _, r := range j.results {
		results = append(results, r)
	}
	sort.Slice(results, func(a, b int) bool { return results[a].DocID < results[b].DocID })

	return JobSnapshot{
		ID:        j.ID,
		DocIDs:    append([]string{}, j.DocIDs...),
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  p,
		Documents: docs,
		Results:   results,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
