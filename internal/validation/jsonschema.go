package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/agentflow/pkg/schema"
)

// nodeDataSchemas maps node types to the JSON Schema their data block must
// satisfy. Types absent from the map carry free-form data.
var nodeDataSchemas = map[schema.NodeType]string{
	schema.NodeTypeAPICall: `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "required": ["url"],
	  "properties": {
	    "url": { "type": "string", "minLength": 1 },
	    "method": { "type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"] },
	    "headers": { "type": "object", "additionalProperties": { "type": "string" } },
	    "body": {},
	    "timeout": { "type": "string", "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$" },
	    "responseKey": { "type": "string", "minLength": 1 },
	    "failOnError": { "type": "boolean" }
	  }
	}`,
	schema.NodeTypeCondition: `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "properties": {
	    "condition": { "type": "string" },
	    "conditionType": { "type": "string", "enum": ["simple", "expr", "cel", "jq"] }
	  }
	}`,
	schema.NodeTypeAIAction: `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "properties": {
	    "prompt": { "type": "string" },
	    "model": { "type": "string" },
	    "systemPrompt": { "type": "string" },
	    "responseKey": { "type": "string", "minLength": 1 }
	  }
	}`,
	schema.NodeTypeTransform: `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "properties": {
	    "expression": { "type": "string" },
	    "outputKey": { "type": "string", "minLength": 1 }
	  }
	}`,
	schema.NodeTypeDelay: `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "properties": {
	    "duration": { "type": "string", "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$" }
	  }
	}`,
	schema.NodeTypeScheduleTrigger: `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "properties": {
	    "cron": { "type": "string", "minLength": 1 }
	  }
	}`,
}

// NodeDataValidator checks node data blocks against the per-type schemas.
// Safe for concurrent use; compiled schemas are cached.
type NodeDataValidator struct {
	mu       sync.RWMutex
	compiled map[schema.NodeType]*jsonschema.Schema
}

// NewNodeDataValidator creates an empty validator; schemas compile lazily on
// first use per node type.
func NewNodeDataValidator() *NodeDataValidator {
	return &NodeDataValidator{
		compiled: make(map[schema.NodeType]*jsonschema.Schema),
	}
}

// ValidateNode checks one node's data block. Node types without a schema
// pass unconditionally.
func (v *NodeDataValidator) ValidateNode(node *schema.Node) error {
	raw, ok := nodeDataSchemas[node.Type]
	if !ok {
		return nil
	}

	compiled, err := v.getOrCompile(node.Type, raw)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid node data schema").WithNode(node.ID).WithCause(err)
	}

	data := node.Data
	if data == nil {
		data = map[string]any{}
	}
	doc, err := toJSONValue(data)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize node data").WithNode(node.ID).WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toFlowError(err).WithNode(node.ID)
	}
	return nil
}

// ValidateGraph checks every node's data block, after the structural checks
// of Graph.
func (v *NodeDataValidator) ValidateGraph(g *schema.Graph) error {
	if err := Graph(g); err != nil {
		return err
	}
	for i := range g.Nodes {
		if err := v.ValidateNode(&g.Nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *NodeDataValidator) getOrCompile(typ schema.NodeType, raw string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if cached, ok := v.compiled[typ]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.compiled[typ]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("agentflow://node-schema/%s", typ)
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.compiled[typ] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding so numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// leaf violation messages.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "node data failed validation with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
