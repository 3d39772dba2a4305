package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/agentflow/internal/logging"
	"github.com/rendis/agentflow/internal/store"
	"github.com/rendis/agentflow/internal/validation"
	"github.com/rendis/agentflow/pkg/schema"
)

// Walker executes a workflow graph: depth-first from the trigger node,
// forking the context at fan-out points and recording every node visit in
// the execution sink.
type Walker struct {
	store    store.Store
	handlers *Registry
	logger   *slog.Logger
}

// NewWalker creates a Walker over the given sink and handler registry.
func NewWalker(s store.Store, handlers *Registry, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{store: s, handlers: handlers, logger: logger}
}

// ExecuteWorkflow runs the graph and returns its execution record. The
// record is returned even when the run fails, including structural failures
// found before any node executes; callers inspect exec.Status and the error
// together. input seeds the initial context and may be nil.
func (w *Walker) ExecuteWorkflow(ctx context.Context, graph *schema.Graph, agentID, userID string, input map[string]any) (*store.Execution, error) {
	exec := &store.Execution{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		UserID:    userID,
		Status:    schema.ExecutionStatusRunning,
		StartTime: time.Now().UTC(),
	}
	ctx = logging.WithExecutionID(ctx, exec.ID)
	ctx = logging.WithAgentID(ctx, agentID)

	if err := w.store.CreateExecution(ctx, exec); err != nil {
		return exec, schema.NewError(schema.ErrCodeStore, "failed to create execution record").WithCause(err)
	}

	rl := &runLogger{store: w.store, execID: exec.ID, logger: w.logger}
	rl.Log(ctx, schema.LogLevelInfo, "Starting agent execution", map[string]any{
		"agentId": agentID,
		"nodes":   len(graph.Nodes),
		"edges":   len(graph.Edges),
	})

	err := w.run(ctx, graph, rl, input)
	if err != nil {
		rl.Log(ctx, schema.LogLevelError, "Agent execution failed", map[string]any{"error": err.Error()})
		w.finish(ctx, exec, schema.ExecutionStatusFailed, err.Error())
		return w.reload(ctx, exec), err
	}

	rl.Log(ctx, schema.LogLevelInfo, "Agent execution completed", nil)
	w.finish(ctx, exec, schema.ExecutionStatusCompleted, "")
	return w.reload(ctx, exec), nil
}

func (w *Walker) run(ctx context.Context, graph *schema.Graph, rl *runLogger, input map[string]any) error {
	if err := validation.Graph(graph); err != nil {
		return err
	}

	trigger := graph.TriggerNode()
	if trigger == nil {
		return schema.NewError(schema.ErrCodeNoTriggerFound, "graph has no trigger node")
	}

	execCtx := NewContext().Merge(input)
	return w.visit(ctx, graph, trigger, execCtx, map[string]bool{}, rl)
}

// visit executes one node and recurses into its successors. visited holds
// the node IDs along the current path only; each branch of a fan-out walks
// with its own copy, so joins are legal and only true cycles are rejected.
func (w *Walker) visit(ctx context.Context, graph *schema.Graph, node *schema.Node, execCtx Context, visited map[string]bool, rl *runLogger) error {
	if err := ctx.Err(); err != nil {
		return schema.NewErrorf(schema.ErrCodeCancelled, "execution cancelled: %v", err).WithCause(err)
	}
	if visited[node.ID] {
		return schema.NewErrorf(schema.ErrCodeCycleDetected, "node %q revisited along the same path", node.ID).WithNode(node.ID)
	}
	visited[node.ID] = true

	nodeCtx := logging.WithNodeID(ctx, node.ID)
	rl.Log(nodeCtx, schema.LogLevelInfo, "Executing node", map[string]any{
		"nodeId":   node.ID,
		"nodeType": string(node.Type),
		"label":    node.Label,
	})

	nextCtx, result, err := w.executeNode(nodeCtx, node, execCtx, rl)
	if err != nil {
		if fe, ok := err.(*schema.FlowError); ok && fe.NodeID == "" {
			fe.NodeID = node.ID
		}
		return err
	}

	w.record(nodeCtx, node, result, rl)

	edges := graph.OutgoingEdges(node.ID)
	if node.Type == schema.NodeTypeCondition {
		edges = conditionEdges(edges, nextCtx.Bool("conditionResult"))
	}
	if len(edges) == 0 {
		return nil
	}

	if len(edges) == 1 {
		next := graph.NodeByID(edges[0].Target)
		if next == nil {
			return schema.NewErrorf(schema.ErrCodeMalformedGraph, "edge %q targets unknown node %q", edges[0].ID, edges[0].Target).WithNode(node.ID)
		}
		return w.visit(ctx, graph, next, nextCtx, visited, rl)
	}

	// Fan-out: every branch gets its own context copy and path history.
	g, gctx := errgroup.WithContext(ctx)
	for _, edge := range edges {
		next := graph.NodeByID(edge.Target)
		if next == nil {
			return schema.NewErrorf(schema.ErrCodeMalformedGraph, "edge %q targets unknown node %q", edge.ID, edge.Target).WithNode(node.ID)
		}
		branchCtx := nextCtx.Clone()
		branchVisited := make(map[string]bool, len(visited))
		for id := range visited {
			branchVisited[id] = true
		}
		g.Go(func() error {
			return w.visit(gctx, graph, next, branchCtx, branchVisited, rl)
		})
	}
	return g.Wait()
}

func (w *Walker) executeNode(ctx context.Context, node *schema.Node, execCtx Context, rl *runLogger) (Context, any, error) {
	handler, ok := w.handlers.Get(node.Type)
	if !ok {
		rl.Log(ctx, schema.LogLevelWarning, "No handler for node type, passing context through", map[string]any{
			"nodeId":   node.ID,
			"nodeType": string(node.Type),
		})
		return execCtx, nil, nil
	}
	return handler.Execute(ctx, node, execCtx, rl)
}

// record appends the node result to the sink. Sink failures are logged and
// swallowed: losing one result must not abort the run.
func (w *Walker) record(ctx context.Context, node *schema.Node, result any, rl *runLogger) {
	nr := &store.NodeResult{
		NodeID:    node.ID,
		NodeType:  node.Type,
		NodeLabel: node.Label,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if err := w.store.AppendResult(ctx, rl.execID, nr); err != nil {
		w.logger.WarnContext(ctx, "failed to append node result", "nodeId", node.ID, "error", err)
	}
}

// finish performs the terminal status transition. It runs on a detached
// context so a cancelled run still gets its record closed. Failures are
// logged and swallowed; the in-memory record is updated regardless so
// callers always see the outcome.
func (w *Walker) finish(ctx context.Context, exec *store.Execution, status schema.ExecutionStatus, errMsg string) {
	ctx = context.WithoutCancel(ctx)
	end := time.Now().UTC()
	exec.Status = status
	exec.EndTime = &end
	exec.DurationMs = end.Sub(exec.StartTime).Milliseconds()
	exec.Error = errMsg
	if err := w.store.SetTerminal(ctx, exec.ID, status, errMsg, end); err != nil {
		w.logger.WarnContext(ctx, "failed to finalize execution record", "executionId", exec.ID, "error", err)
	}
}

// reload fetches the fully populated record (logs and results with their
// assigned sequences). Falls back to the in-memory record on sink failure.
func (w *Walker) reload(ctx context.Context, exec *store.Execution) *store.Execution {
	full, err := w.store.GetExecution(context.WithoutCancel(ctx), exec.ID)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to reload execution record", "executionId", exec.ID, "error", err)
		return exec
	}
	return full
}

// conditionEdges applies the positional branch convention: the first edge
// is the true branch and the second the false branch. A condition with a
// single outgoing edge follows it regardless of the outcome.
func conditionEdges(edges []schema.Edge, result bool) []schema.Edge {
	switch {
	case len(edges) == 0:
		return nil
	case result || len(edges) == 1:
		return edges[:1]
	default:
		return edges[1:2]
	}
}

// runLogger appends to the execution log through the sink and mirrors
// entries to the process logger. Sink failures are swallowed.
type runLogger struct {
	store  store.Store
	execID string
	logger *slog.Logger
}

func (l *runLogger) Log(ctx context.Context, level schema.LogLevel, message string, data map[string]any) {
	entry := &store.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Data:      data,
	}
	if err := l.store.AppendLog(ctx, l.execID, entry); err != nil {
		l.logger.WarnContext(ctx, "failed to append execution log", "message", message, "error", err)
	}

	switch level {
	case schema.LogLevelError:
		l.logger.ErrorContext(ctx, message, "data", data)
	case schema.LogLevelWarning:
		l.logger.WarnContext(ctx, message, "data", data)
	default:
		l.logger.InfoContext(ctx, message, "data", data)
	}
}

var _ RunLog = (*runLogger)(nil)
