package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/agentflow/pkg/schema"
)

func TestNodeData_APICallRequiresURL(t *testing.T) {
	v := NewNodeDataValidator()

	err := v.ValidateNode(&schema.Node{
		ID:   "api",
		Type: schema.NodeTypeAPICall,
		Data: map[string]any{"method": "GET"},
	})
	assertCode(t, err, schema.ErrCodeValidation)
}

func TestNodeData_APICallValid(t *testing.T) {
	v := NewNodeDataValidator()

	err := v.ValidateNode(&schema.Node{
		ID:   "api",
		Type: schema.NodeTypeAPICall,
		Data: map[string]any{
			"url":     "https://example.com/users",
			"method":  "POST",
			"headers": map[string]any{"Authorization": "Bearer x"},
			"timeout": "30s",
		},
	})
	assert.NoError(t, err)
}

func TestNodeData_APICallRejectsBadMethod(t *testing.T) {
	v := NewNodeDataValidator()

	err := v.ValidateNode(&schema.Node{
		ID:   "api",
		Type: schema.NodeTypeAPICall,
		Data: map[string]any{"url": "https://example.com", "method": "YEET"},
	})
	assertCode(t, err, schema.ErrCodeValidation)
}

func TestNodeData_ConditionTypeEnum(t *testing.T) {
	v := NewNodeDataValidator()

	err := v.ValidateNode(&schema.Node{
		ID:   "c",
		Type: schema.NodeTypeCondition,
		Data: map[string]any{"condition": "x > 1", "conditionType": "lua"},
	})
	assertCode(t, err, schema.ErrCodeValidation)

	err = v.ValidateNode(&schema.Node{
		ID:   "c",
		Type: schema.NodeTypeCondition,
		Data: map[string]any{"condition": "x > 1", "conditionType": "cel"},
	})
	assert.NoError(t, err)
}

func TestNodeData_DelayDurationPattern(t *testing.T) {
	v := NewNodeDataValidator()

	err := v.ValidateNode(&schema.Node{
		ID:   "d",
		Type: schema.NodeTypeDelay,
		Data: map[string]any{"duration": "soon"},
	})
	assertCode(t, err, schema.ErrCodeValidation)

	err = v.ValidateNode(&schema.Node{
		ID:   "d",
		Type: schema.NodeTypeDelay,
		Data: map[string]any{"duration": "250ms"},
	})
	assert.NoError(t, err)
}

func TestNodeData_TriggerHasNoSchema(t *testing.T) {
	v := NewNodeDataValidator()

	err := v.ValidateNode(&schema.Node{
		ID:   "t",
		Type: schema.NodeTypeTrigger,
		Data: map[string]any{"anything": []any{1, 2, 3}},
	})
	assert.NoError(t, err)
}

func TestNodeData_NilDataChecked(t *testing.T) {
	v := NewNodeDataValidator()

	// api_call requires url, so nil data must fail.
	err := v.ValidateNode(&schema.Node{ID: "api", Type: schema.NodeTypeAPICall})
	assertCode(t, err, schema.ErrCodeValidation)

	// condition has no required fields, so nil data passes.
	err = v.ValidateNode(&schema.Node{ID: "c", Type: schema.NodeTypeCondition})
	assert.NoError(t, err)
}

func TestValidateGraph_RunsStructuralChecksFirst(t *testing.T) {
	v := NewNodeDataValidator()

	err := v.ValidateGraph(&schema.Graph{})
	assertCode(t, err, schema.ErrCodeMalformedGraph)
}

func TestValidateGraph_ChecksEveryNode(t *testing.T) {
	v := NewNodeDataValidator()

	g := &schema.Graph{
		Nodes: []schema.Node{
			{ID: "t", Type: schema.NodeTypeTrigger},
			{ID: "api", Type: schema.NodeTypeAPICall, Data: map[string]any{"method": "GET"}},
		},
		Edges: []schema.Edge{{ID: "e1", Source: "t", Target: "api"}},
	}

	err := v.ValidateGraph(g)
	require.Error(t, err)
	fe, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, "api", fe.NodeID)
}
