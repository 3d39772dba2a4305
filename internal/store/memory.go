package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rendis/agentflow/pkg/schema"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
// Safe for concurrent use; appends are sequenced under the store mutex.
type MemoryStore struct {
	mu    sync.Mutex
	execs map[string]*Execution
	jobs  map[string]*ScheduledJob
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		execs: make(map[string]*Execution),
		jobs:  make(map[string]*ScheduledJob),
	}
}

func (s *MemoryStore) CreateExecution(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.execs[exec.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %s already exists", exec.ID)
	}
	cp := *exec
	if cp.Status == "" {
		cp.Status = schema.ExecutionStatusRunning
	}
	if cp.StartTime.IsZero() {
		cp.StartTime = time.Now().UTC()
	}
	cp.Logs = nil
	cp.Results = nil
	s.execs[exec.ID] = &cp
	exec.Status = cp.Status
	exec.StartTime = cp.StartTime
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.execs[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	cp := *exec
	cp.Logs = append([]LogEntry(nil), exec.Logs...)
	cp.Results = append([]NodeResult(nil), exec.Results...)
	return &cp, nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var execs []*Execution
	for _, exec := range s.execs {
		if filter.AgentID != "" && exec.AgentID != filter.AgentID {
			continue
		}
		if filter.UserID != "" && exec.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && exec.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && exec.StartTime.Before(*filter.Since) {
			continue
		}
		cp := *exec
		execs = append(execs, &cp)
	}
	sort.Slice(execs, func(i, j int) bool {
		return execs[i].StartTime.After(execs[j].StartTime)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(execs) {
			return nil, nil
		}
		execs = execs[filter.Offset:]
	}
	if filter.Limit > 0 && len(execs) > filter.Limit {
		execs = execs[:filter.Limit]
	}
	return execs, nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, executionID string, entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.execs[executionID]
	if !ok {
		return storeNotFound("execution", executionID)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Seq = int64(len(exec.Logs)) + 1
	exec.Logs = append(exec.Logs, *entry)
	return nil
}

func (s *MemoryStore) AppendResult(ctx context.Context, executionID string, result *NodeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.execs[executionID]
	if !ok {
		return storeNotFound("execution", executionID)
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	result.Seq = int64(len(exec.Results)) + 1
	exec.Results = append(exec.Results, *result)
	return nil
}

func (s *MemoryStore) SetTerminal(ctx context.Context, executionID string, status schema.ExecutionStatus, errMsg string, endTime time.Time) error {
	if !status.Terminal() {
		return schema.NewErrorf(schema.ErrCodeValidation, "status %q is not terminal", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.execs[executionID]
	if !ok {
		return storeNotFound("execution", executionID)
	}
	if exec.Status != schema.ExecutionStatusRunning {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %s is not running", executionID)
	}
	if endTime.IsZero() {
		endTime = time.Now().UTC()
	}
	exec.Status = status
	exec.Error = errMsg
	exec.EndTime = &endTime
	exec.DurationMs = endTime.Sub(exec.StartTime).Milliseconds()
	return nil
}

func (s *MemoryStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled job %s already exists", job.ID)
	}
	cp := *job
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, storeNotFound("scheduled job", id)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return storeNotFound("scheduled job", id)
	}
	if update.Enabled != nil {
		job.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		job.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		job.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		job.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*ScheduledJob
	for _, job := range s.jobs {
		if filter.Enabled != nil && job.Enabled != *filter.Enabled {
			continue
		}
		if filter.AgentID != "" && job.AgentID != filter.AgentID {
			continue
		}
		cp := *job
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

func (s *MemoryStore) DeleteScheduledJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return storeNotFound("scheduled job", id)
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
