package engine

import (
	"context"
	"time"

	"github.com/rendis/agentflow/internal/capabilities"
	"github.com/rendis/agentflow/pkg/schema"
)

// Param helpers used by all handler files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func headerParam(m map[string]any, key string) map[string]string {
	raw, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	headers := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	return headers
}

// defaultResponseKey is where an api_call node merges its response.
const defaultResponseKey = "apiResponse"

// APICallHandler issues the HTTP request described by node.data through the
// injected HTTP client capability. Failures are non-fatal by default: the
// error is logged and the context passes through unchanged. Setting
// node.data.failOnError makes HTTP and network failures abort the run.
type APICallHandler struct {
	client capabilities.HTTPClient
}

// NewAPICallHandler creates an api_call handler backed by the given client.
func NewAPICallHandler(client capabilities.HTTPClient) *APICallHandler {
	return &APICallHandler{client: client}
}

func (h *APICallHandler) Type() schema.NodeType { return schema.NodeTypeAPICall }

func (h *APICallHandler) Execute(ctx context.Context, node *schema.Node, execCtx Context, log RunLog) (Context, any, error) {
	req := capabilities.HTTPRequest{
		Method:  stringParam(node.Data, "method", "GET"),
		URL:     stringParam(node.Data, "url", ""),
		Headers: headerParam(node.Data, "headers"),
		Body:    node.Data["body"],
	}
	if ts := stringParam(node.Data, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			req.Timeout = d
		}
	}

	resp, err := h.client.Do(ctx, req)
	if err != nil {
		if boolParam(node.Data, "failOnError", false) {
			return nil, nil, err
		}
		log.Log(ctx, schema.LogLevelError, "API call failed, continuing", map[string]any{
			"nodeId": node.ID,
			"url":    req.URL,
			"error":  err.Error(),
		})
		return execCtx, map[string]any{"error": err.Error()}, nil
	}

	responseKey := stringParam(node.Data, "responseKey", defaultResponseKey)
	result := map[string]any{
		"status":  resp.Status,
		"data":    resp.Data,
		"headers": resp.Headers,
	}
	return execCtx.With(responseKey, result), result, nil
}

var _ Handler = (*APICallHandler)(nil)
