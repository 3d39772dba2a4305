package store

import (
	"time"

	"github.com/rendis/agentflow/pkg/schema"
)

// Execution is the durable record of one workflow run. It is created in
// status running and mutated only by appending logs/results and by the
// single terminal status transition.
type Execution struct {
	ID         string                 `json:"id"`
	AgentID    string                 `json:"agent_id"`
	UserID     string                 `json:"user_id"`
	Status     schema.ExecutionStatus `json:"status"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    *time.Time             `json:"end_time,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Logs       []LogEntry             `json:"logs"`
	Results    []NodeResult           `json:"results"`
	Error      string                 `json:"error,omitempty"`
}

// LogEntry is one progress message in an execution's ordered log.
// Seq is assigned by the sink: a per-execution monotonic sequence.
type LogEntry struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Level     schema.LogLevel `json:"level"`
	Message   string          `json:"message"`
	Data      map[string]any  `json:"data,omitempty"`
}

// NodeResult records the outcome of one node visit. A node revisited along
// a different path produces one result per visit.
type NodeResult struct {
	Seq       int64           `json:"seq"`
	NodeID    string          `json:"node_id"`
	NodeType  schema.NodeType `json:"node_type"`
	NodeLabel string          `json:"node_label,omitempty"`
	Result    any             `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

// ScheduledJob is a cron-triggered workflow execution. The graph is stored
// inline; its trigger node must be of type schedule_trigger.
type ScheduledJob struct {
	ID             string       `json:"id"`
	Name           string       `json:"name,omitempty"`
	CronExpression string       `json:"cron_expression"`
	Graph          schema.Graph `json:"graph"`
	AgentID        string       `json:"agent_id"`
	UserID         string       `json:"user_id"`
	Enabled        bool         `json:"enabled"`
	LastRunAt      *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time   `json:"next_run_at,omitempty"`
	LastRunStatus  string       `json:"last_run_status,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	AgentID string                  `json:"agent_id,omitempty"`
	UserID  string                  `json:"user_id,omitempty"`
	Status  *schema.ExecutionStatus `json:"status,omitempty"`
	Since   *time.Time              `json:"since,omitempty"`
	Limit   int                     `json:"limit,omitempty"`
	Offset  int                     `json:"offset,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled *bool  `json:"enabled,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
