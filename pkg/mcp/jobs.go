package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
)

// JobStatus represents the current state of a crawl job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Active reports whether a job in this state may still make progress.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// Job is a snapshot of a background crawl job
type Job struct {
	ID           string              `json:"id"`
	Seed         string              `json:"seed"`
	Depth        int                 `json:"depth"`
	Status       JobStatus           `json:"status"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  time.Time           `json:"completed_at,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Report       *models.CrawlReport `json:"report,omitempty"`
}

type jobEntry struct {
	Job
	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager tracks background crawl jobs. At most one job per seed is
// active at a time.
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	bySeed map[string]string // seed -> active job ID
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*jobEntry),
		bySeed: make(map[string]string),
	}
}

// CreateJob registers a pending job for seed. If a job for seed is still
// active, that job is returned with created=false.
func (m *JobManager) CreateJob(seed string, depth int) (job Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, exists := m.bySeed[seed]; exists {
		if e := m.jobs[id]; e != nil && e.Status.Active() {
			return e.Job, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &jobEntry{
		Job: Job{
			ID:        uuid.New().String(),
			Seed:      seed,
			Depth:     depth,
			Status:    JobStatusPending,
			StartedAt: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	m.jobs[e.ID] = e
	m.bySeed[seed] = e.ID
	return e.Job, true
}

// GetJob returns a snapshot of the job with the given ID
func (m *JobManager) GetJob(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return e.Job, true
}

// Start moves a pending job to running and returns its context.
// ok is false when the job was cancelled before it started.
func (m *JobManager) Start(jobID string) (ctx context.Context, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, exists := m.jobs[jobID]
	if !exists || e.Status != JobStatusPending {
		return nil, false
	}
	e.Status = JobStatusRunning
	return e.ctx, true
}

// Finish records the outcome of a job. A job cancelled through CancelJob
// keeps its cancelled status but still receives the partial report.
func (m *JobManager) Finish(jobID string, report *models.CrawlReport, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.jobs[jobID]
	if !exists {
		return
	}
	e.Report = report
	if e.Status == JobStatusCancelled {
		return
	}

	e.Status = JobStatusCompleted
	if err != nil {
		e.Status = JobStatusFailed
		e.ErrorMessage = err.Error()
	}
	e.CompletedAt = time.Now()
	e.cancel()
	m.release(e)
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.jobs[jobID]
	if !exists || !e.Status.Active() {
		return false
	}
	m.cancelLocked(e)
	return true
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.jobs {
		if e.Status.Active() {
			m.cancelLocked(e)
		}
	}
}

// ListJobs returns snapshots of all jobs, oldest first
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		jobs = append(jobs, e.Job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].StartedAt.Before(jobs[j].StartedAt)
	})
	return jobs
}

func (m *JobManager) cancelLocked(e *jobEntry) {
	e.cancel()
	e.Status = JobStatusCancelled
	e.CompletedAt = time.Now()
	m.release(e)
}

func (m *JobManager) release(e *jobEntry) {
	if m.bySeed[e.Seed] == e.ID {
		delete(m.bySeed, e.Seed)
	}
}
