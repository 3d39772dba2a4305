package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/agentflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec.Status == "" {
		exec.Status = schema.ExecutionStatusRunning
	}
	if exec.StartTime.IsZero() {
		exec.StartTime = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, agent_id, user_id, status, error, start_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.AgentID, exec.UserID, exec.Status, nullStr(exec.Error), exec.StartTime,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	exec := &Execution{}
	var errMsg sql.NullString
	var endTime sql.NullTime
	var durationMs sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, user_id, status, error, start_time, end_time, duration_ms
		 FROM executions WHERE id = ?`, id,
	).Scan(&exec.ID, &exec.AgentID, &exec.UserID, &exec.Status, &errMsg, &exec.StartTime, &endTime, &durationMs)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	exec.Error = errMsg.String
	if endTime.Valid {
		t := endTime.Time
		exec.EndTime = &t
	}
	exec.DurationMs = durationMs.Int64

	if exec.Logs, err = s.getLogs(ctx, id); err != nil {
		return nil, err
	}
	if exec.Results, err = s.getResults(ctx, id); err != nil {
		return nil, err
	}
	return exec, nil
}

func (s *LibSQLStore) getLogs(ctx context.Context, executionID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, level, message, data, timestamp
		 FROM execution_logs WHERE execution_id = ? ORDER BY seq ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var entry LogEntry
		var data sql.NullString
		if err := rows.Scan(&entry.Seq, &entry.Level, &entry.Message, &data, &entry.Timestamp); err != nil {
			return nil, err
		}
		if data.Valid && data.String != "" {
			_ = json.Unmarshal([]byte(data.String), &entry.Data)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *LibSQLStore) getResults(ctx context.Context, executionID string) ([]NodeResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, node_id, node_type, node_label, result, timestamp
		 FROM execution_results WHERE execution_id = ? ORDER BY seq ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []NodeResult
	for rows.Next() {
		var r NodeResult
		var label, result sql.NullString
		if err := rows.Scan(&r.Seq, &r.NodeID, &r.NodeType, &label, &result, &r.Timestamp); err != nil {
			return nil, err
		}
		r.NodeLabel = label.String
		if result.Valid && result.String != "" {
			_ = json.Unmarshal([]byte(result.String), &r.Result)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	query := `SELECT id, agent_id, user_id, status, error, start_time, end_time, duration_ms FROM executions`
	var conds []string
	var args []any

	if filter.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Since != nil {
		conds = append(conds, "start_time >= ?")
		args = append(args, *filter.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec := &Execution{}
		var errMsg sql.NullString
		var endTime sql.NullTime
		var durationMs sql.NullInt64
		if err := rows.Scan(&exec.ID, &exec.AgentID, &exec.UserID, &exec.Status, &errMsg,
			&exec.StartTime, &endTime, &durationMs); err != nil {
			return nil, err
		}
		exec.Error = errMsg.String
		if endTime.Valid {
			t := endTime.Time
			exec.EndTime = &t
		}
		exec.DurationMs = durationMs.Int64
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// AppendLog appends a log entry with a monotonically increasing per-execution
// sequence. The sequence read and insert happen in one transaction so
// concurrent branch appends never interleave.
func (s *LibSQLStore) AppendLog(ctx context.Context, executionID string, entry *LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	var data any
	if len(entry.Data) > 0 {
		raw, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("marshal log data: %w", err)
		}
		data = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin log tx: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "execution_logs", executionID)
	if err != nil {
		return err
	}
	entry.Seq = seq

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO execution_logs (execution_id, seq, level, message, data, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		executionID, seq, entry.Level, entry.Message, data, entry.Timestamp,
	); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit log: %w", err)
	}
	return nil
}

// AppendResult appends a node result, sequenced like AppendLog.
func (s *LibSQLStore) AppendResult(ctx context.Context, executionID string, result *NodeResult) error {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	var data any
	if result.Result != nil {
		raw, err := json.Marshal(result.Result)
		if err != nil {
			return fmt.Errorf("marshal node result: %w", err)
		}
		data = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "execution_results", executionID)
	if err != nil {
		return err
	}
	result.Seq = seq

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO execution_results (execution_id, seq, node_id, node_type, node_label, result, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		executionID, seq, result.NodeID, result.NodeType, nullStr(result.NodeLabel), data, result.Timestamp,
	); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

func nextSeq(ctx context.Context, tx *sql.Tx, table, executionID string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM `+table+` WHERE execution_id = ?`, executionID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", table, err)
	}
	return seq, nil
}

// SetTerminal transitions an execution out of running. The WHERE clause
// guards the single-transition invariant: a terminal record is never touched.
func (s *LibSQLStore) SetTerminal(ctx context.Context, executionID string, status schema.ExecutionStatus, errMsg string, endTime time.Time) error {
	if !status.Terminal() {
		return schema.NewErrorf(schema.ErrCodeValidation, "status %q is not terminal", status)
	}
	if endTime.IsZero() {
		endTime = time.Now().UTC()
	}

	var startTime time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT start_time FROM executions WHERE id = ?`, executionID,
	).Scan(&startTime)
	if err == sql.ErrNoRows {
		return storeNotFound("execution", executionID)
	}
	if err != nil {
		return err
	}
	durationMs := endTime.Sub(startTime).Milliseconds()

	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error = ?, end_time = ?, duration_ms = ?
		 WHERE id = ? AND status = ?`,
		status, nullStr(errMsg), endTime, durationMs, executionID, schema.ExecutionStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("set terminal status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %s is not running", executionID)
	}
	return nil
}

// --- Scheduled jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	graph, err := json.Marshal(job.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, name, cron_expression, graph, agent_id, user_id, enabled, next_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, nullStr(job.Name), job.CronExpression, string(graph), job.AgentID, job.UserID,
		job.Enabled, nullTime(job.NextRunAt), timeOrNow(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert scheduled job: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, cron_expression, graph, agent_id, user_id, enabled,
		        last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanScheduledJob(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled job", id)
	}
	return job, err
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *update.Enabled)
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update scheduled job: %w", err)
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	query := `SELECT id, name, cron_expression, graph, agent_id, user_id, enabled,
	                 last_run_at, next_run_at, last_run_status, created_at
	          FROM scheduled_jobs`
	var conds []string
	var args []any

	if filter.Enabled != nil {
		conds = append(conds, "enabled = ?")
		args = append(args, *filter.Enabled)
	}
	if filter.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		job, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

// scanner abstracts *sql.Row and *sql.Rows for scanScheduledJob.
type scanner interface {
	Scan(dest ...any) error
}

func scanScheduledJob(row scanner) (*ScheduledJob, error) {
	job := &ScheduledJob{}
	var name, lastRunStatus sql.NullString
	var graph string
	var lastRunAt, nextRunAt sql.NullTime
	err := row.Scan(&job.ID, &name, &job.CronExpression, &graph, &job.AgentID, &job.UserID,
		&job.Enabled, &lastRunAt, &nextRunAt, &lastRunStatus, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	job.Name = name.String
	job.LastRunStatus = lastRunStatus.String
	if lastRunAt.Valid {
		t := lastRunAt.Time
		job.LastRunAt = &t
	}
	if nextRunAt.Valid {
		t := nextRunAt.Time
		job.NextRunAt = &t
	}
	if err := json.Unmarshal([]byte(graph), &job.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal job graph: %w", err)
	}
	return job, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*LibSQLStore)(nil)
