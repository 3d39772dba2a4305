package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/agentflow/internal/capabilities"
	"github.com/rendis/agentflow/internal/conditions"
	"github.com/rendis/agentflow/pkg/schema"
)

// recordingLog captures handler log calls for assertions.
type recordingLog struct {
	mu      sync.Mutex
	entries []recordedEntry
}

type recordedEntry struct {
	Level   schema.LogLevel
	Message string
	Data    map[string]any
}

func (l *recordingLog) Log(ctx context.Context, level schema.LogLevel, message string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedEntry{Level: level, Message: message, Data: data})
}

func (l *recordingLog) levels() []schema.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]schema.LogLevel, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Level
	}
	return out
}

// --- Trigger ---

func TestTriggerHandler_StampsContext(t *testing.T) {
	h := NewTriggerHandler(schema.NodeTypeWebhookTrigger)
	n := schema.Node{ID: "t", Type: schema.NodeTypeWebhookTrigger, Data: map[string]any{"source": "github"}}

	out, result, err := h.Execute(context.Background(), &n, NewContext(), &recordingLog{})
	require.NoError(t, err)

	assert.Equal(t, "webhook_trigger", out["triggerType"])
	assert.Equal(t, map[string]any{"source": "github"}, out["triggerData"])
	assert.NotEmpty(t, out["triggeredAt"])
	assert.NotNil(t, result)
}

// --- API call ---

func TestAPICallHandler_MergesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	h := NewAPICallHandler(capabilities.NewNetHTTPClient(capabilities.HTTPConfig{}))
	n := schema.Node{ID: "api", Type: schema.NodeTypeAPICall, Data: map[string]any{"url": srv.URL}}

	out, _, err := h.Execute(context.Background(), &n, NewContext(), &recordingLog{})
	require.NoError(t, err)

	resp, ok := out["apiResponse"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 200, resp["status"])
	assert.Equal(t, map[string]any{"ok": true}, resp["data"])
}

func TestAPICallHandler_CustomResponseKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	h := NewAPICallHandler(capabilities.NewNetHTTPClient(capabilities.HTTPConfig{}))
	n := schema.Node{ID: "api", Type: schema.NodeTypeAPICall, Data: map[string]any{
		"url":         srv.URL,
		"responseKey": "userLookup",
	}}

	out, _, err := h.Execute(context.Background(), &n, NewContext(), &recordingLog{})
	require.NoError(t, err)
	assert.Contains(t, out, "userLookup")
	assert.NotContains(t, out, "apiResponse")
}

func TestAPICallHandler_HTTPErrorIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewAPICallHandler(capabilities.NewNetHTTPClient(capabilities.HTTPConfig{}))
	n := schema.Node{ID: "api", Type: schema.NodeTypeAPICall, Data: map[string]any{"url": srv.URL}}
	rl := &recordingLog{}

	before := NewContext().With("keep", "me")
	out, result, err := h.Execute(context.Background(), &n, before, rl)
	require.NoError(t, err)

	// Context passes through untouched; the failure is logged.
	assert.Equal(t, before, out)
	assert.Contains(t, rl.levels(), schema.LogLevelError)
	payload, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, payload, "error")
}

func TestAPICallHandler_FailOnErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewAPICallHandler(capabilities.NewNetHTTPClient(capabilities.HTTPConfig{}))
	n := schema.Node{ID: "api", Type: schema.NodeTypeAPICall, Data: map[string]any{
		"url":         srv.URL,
		"failOnError": true,
	}}

	_, _, err := h.Execute(context.Background(), &n, NewContext(), &recordingLog{})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeHTTP, fe.Code)
}

func TestAPICallHandler_NetworkErrorIsNonFatal(t *testing.T) {
	h := NewAPICallHandler(capabilities.NewNetHTTPClient(capabilities.HTTPConfig{}))
	n := schema.Node{ID: "api", Type: schema.NodeTypeAPICall, Data: map[string]any{
		"url":     "http://127.0.0.1:1/unreachable",
		"timeout": "500ms",
	}}
	rl := &recordingLog{}

	_, _, err := h.Execute(context.Background(), &n, NewContext(), rl)
	require.NoError(t, err)
	assert.Contains(t, rl.levels(), schema.LogLevelError)
}

// --- Condition ---

func TestConditionHandler_MergesResult(t *testing.T) {
	h := NewConditionHandler(conditions.NewEngines())
	n := schema.Node{ID: "c", Type: schema.NodeTypeCondition, Data: map[string]any{"condition": "value > 100"}}

	out, result, err := h.Execute(context.Background(), &n, NewContext().With("value", 150), &recordingLog{})
	require.NoError(t, err)
	assert.Equal(t, true, out["conditionResult"])
	assert.Equal(t, true, result)
}

func TestConditionHandler_ExprEngine(t *testing.T) {
	h := NewConditionHandler(conditions.NewEngines())
	n := schema.Node{ID: "c", Type: schema.NodeTypeCondition, Data: map[string]any{
		"condition":     "len(items) > 1",
		"conditionType": "expr",
	}}

	out, _, err := h.Execute(context.Background(), &n, NewContext().With("items", []any{"a", "b"}), &recordingLog{})
	require.NoError(t, err)
	assert.Equal(t, true, out["conditionResult"])
}

func TestConditionHandler_MissingConditionIsFalse(t *testing.T) {
	h := NewConditionHandler(conditions.NewEngines())
	n := schema.Node{ID: "c", Type: schema.NodeTypeCondition, Data: nil}
	rl := &recordingLog{}

	out, _, err := h.Execute(context.Background(), &n, NewContext(), rl)
	require.NoError(t, err)
	assert.Equal(t, false, out["conditionResult"])
	assert.Contains(t, rl.levels(), schema.LogLevelWarning)
}

func TestConditionHandler_UnknownEngineIsFalse(t *testing.T) {
	h := NewConditionHandler(conditions.NewEngines())
	n := schema.Node{ID: "c", Type: schema.NodeTypeCondition, Data: map[string]any{
		"condition":     "true",
		"conditionType": "lua",
	}}
	rl := &recordingLog{}

	out, _, err := h.Execute(context.Background(), &n, NewContext(), rl)
	require.NoError(t, err)
	assert.Equal(t, false, out["conditionResult"])
	assert.Contains(t, rl.levels(), schema.LogLevelWarning)
}

func TestConditionHandler_NonBooleanIsFalse(t *testing.T) {
	h := NewConditionHandler(conditions.NewEngines())
	n := schema.Node{ID: "c", Type: schema.NodeTypeCondition, Data: map[string]any{
		"condition":     "1 + 1",
		"conditionType": "expr",
	}}
	rl := &recordingLog{}

	out, _, err := h.Execute(context.Background(), &n, NewContext(), rl)
	require.NoError(t, err)
	assert.Equal(t, false, out["conditionResult"])
	assert.Contains(t, rl.levels(), schema.LogLevelWarning)
}

// --- Transform ---

func TestTransformHandler_CustomOutputKey(t *testing.T) {
	h := NewTransformHandler(conditions.NewGoJQEngine())
	n := schema.Node{ID: "x", Type: schema.NodeTypeTransform, Data: map[string]any{
		"expression": "{total: (.a + .b)}",
		"outputKey":  "sums",
	}}

	execCtx := NewContext().Merge(map[string]any{"a": 1, "b": 2})
	out, _, err := h.Execute(context.Background(), &n, execCtx, &recordingLog{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": float64(3)}, out["sums"])
}

func TestTransformHandler_BadExpressionIsNonFatal(t *testing.T) {
	h := NewTransformHandler(conditions.NewGoJQEngine())
	n := schema.Node{ID: "x", Type: schema.NodeTypeTransform, Data: map[string]any{
		"expression": ".[broken",
	}}
	rl := &recordingLog{}

	before := NewContext().With("keep", "me")
	out, _, err := h.Execute(context.Background(), &n, before, rl)
	require.NoError(t, err)
	assert.Equal(t, before, out)
	assert.Contains(t, rl.levels(), schema.LogLevelError)
}

// --- Delay ---

func TestDelayHandler_Waits(t *testing.T) {
	h := NewDelayHandler()
	n := schema.Node{ID: "d", Type: schema.NodeTypeDelay, Data: map[string]any{"duration": "10ms"}}

	start := time.Now()
	out, _, err := h.Execute(context.Background(), &n, NewContext(), &recordingLog{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Contains(t, out, "delayedMs")
}

func TestDelayHandler_InvalidDurationSkips(t *testing.T) {
	h := NewDelayHandler()
	n := schema.Node{ID: "d", Type: schema.NodeTypeDelay, Data: map[string]any{"duration": "soon"}}
	rl := &recordingLog{}

	out, _, err := h.Execute(context.Background(), &n, NewContext(), rl)
	require.NoError(t, err)
	assert.NotContains(t, out, "delayedMs")
	assert.Contains(t, rl.levels(), schema.LogLevelWarning)
}

func TestDelayHandler_CancelledContextAborts(t *testing.T) {
	h := NewDelayHandler()
	n := schema.Node{ID: "d", Type: schema.NodeTypeDelay, Data: map[string]any{"duration": "1m"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := h.Execute(ctx, &n, NewContext(), &recordingLog{})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeCancelled, fe.Code)
}

// --- Registry ---

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDelayHandler()))
	assert.Error(t, r.Register(NewDelayHandler()))
}

func TestRegistry_Types(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDelayHandler()))
	require.NoError(t, r.Register(NewTriggerHandler(schema.NodeTypeTrigger)))

	assert.Equal(t, []schema.NodeType{schema.NodeTypeDelay, schema.NodeTypeTrigger}, r.Types())
}
