package store

import (
	"context"
	"time"

	"github.com/rendis/agentflow/pkg/schema"
)

// Store is the execution sink: the persistence contract the walker and
// handlers record progress through. All implementations must be safe for
// concurrent use; log and result appends within one execution must be
// totally ordered by the assigned sequence.
type Store interface {
	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Appends. Seq is assigned by the store and written back to the entry.
	AppendLog(ctx context.Context, executionID string, entry *LogEntry) error
	AppendResult(ctx context.Context, executionID string, result *NodeResult) error

	// SetTerminal performs the single running -> completed/failed transition.
	// A record already in a terminal state is never re-opened; attempting to
	// is a CONFLICT error.
	SetTerminal(ctx context.Context, executionID string, status schema.ExecutionStatus, errMsg string, endTime time.Time) error

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
