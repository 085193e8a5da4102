package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowmatic/flowmatic/engine/core"
	"github.com/google/uuid"
)

// ErrCodeJobNotFound is returned by Update when the id is unknown. Get
// never fails; it answers with a synthetic FAILED record instead so the
// polling endpoint responds uniformly.
const ErrCodeJobNotFound = "JOB_NOT_FOUND"

// Store is the in-memory, concurrency-safe job record store. Jobs survive
// only for the process lifetime; the sweeper evicts terminal records past
// their TTL.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Create registers a new PENDING job for a workflow and returns its id.
func (s *Store) Create(workflowID string) string {
	id := uuid.New().String()
	now := time.Now()
	s.mu.Lock()
	s.jobs[id] = &Job{
		ID:         id,
		WorkflowID: workflowID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.mu.Unlock()
	return id
}

// Update transitions a job's status and result. Terminal records are
// immutable: a late writer cannot overwrite a COMPLETED or FAILED job.
func (s *Store) Update(id string, status Status, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return core.NewError(
			fmt.Errorf("job not found: %s", id),
			ErrCodeJobNotFound,
			map[string]any{"job_id": id},
		)
	}
	if j.Status.IsTerminal() {
		return core.NewError(
			fmt.Errorf("job already terminal: %s", id),
			ErrCodeJobNotFound,
			map[string]any{"job_id": id, "status": string(j.Status)},
		)
	}
	j.Status = status
	j.Result = result
	j.UpdatedAt = time.Now()
	return nil
}

// Get returns a copy of the job record. An unknown id yields a synthetic
// FAILED record rather than an error.
func (s *Store) Get(id string) Job {
	s.mu.RLock()
	j, ok := s.jobs[id]
	if ok {
		snapshot := *j
		s.mu.RUnlock()
		return snapshot
	}
	s.mu.RUnlock()
	return Job{
		ID:     id,
		Status: StatusFailed,
		Result: "Job ID not found or expired.",
	}
}

// Count returns the number of live records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// EvictTerminalBefore removes terminal jobs last updated before the cutoff
// and returns how many were removed.
func (s *Store) EvictTerminalBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			evicted++
		}
	}
	return evicted
}
