package capabilities

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/agentflow/pkg/schema"
)

// HTTPRequest describes an outbound HTTP call made by an api_call node.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

// HTTPResponse is the parsed result of an HTTP call.
type HTTPResponse struct {
	Status  int               `json:"status"`
	Data    any               `json:"data"`
	Headers map[string]string `json:"headers"`
}

// HTTPClient is the capability interface api_call handlers depend on.
// Transport failures return NETWORK_ERROR; responses with status >= 400
// return HTTP_ERROR alongside the parsed response.
type HTTPClient interface {
	Do(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)
}

// HTTPConfig configures the default HTTP client.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// NetHTTPClient is the net/http-backed HTTPClient implementation.
type NetHTTPClient struct {
	config HTTPConfig
	client *http.Client
}

// NewNetHTTPClient creates an HTTP client capability with bounded timeouts
// and a response size cap.
func NewNetHTTPClient(cfg HTTPConfig) *NetHTTPClient {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &NetHTTPClient{
		config: cfg,
		client: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
	}
}

// Do executes the request. The per-call timeout defaults to the configured
// one so a stalled integration cannot hang a run indefinitely.
func (c *NetHTTPClient) Do(ctx context.Context, req HTTPRequest) (*HTTPResponse, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.ParseRequestURI(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid url %q", req.URL)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	var contentType string
	if req.Body != nil {
		switch b := req.Body.(type) {
		case string:
			bodyReader = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeExecution, "marshal request body: %s", err.Error()).WithCause(err)
			}
			bodyReader = strings.NewReader(string(raw))
			contentType = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, req.URL, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "create request: %s", err.Error()).WithCause(err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNetwork, "request %s %s failed: %v", method, req.URL, err).WithCause(err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.config.MaxResponseBody)
	bodyBytes, err := io.ReadAll(limited)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNetwork, "read response body: %s", err.Error()).WithCause(err)
	}

	// Parse JSON bodies; keep everything else as a string.
	respContentType := resp.Header.Get("Content-Type")
	var parsed any
	if len(bodyBytes) == 0 {
		parsed = nil
	} else if strings.Contains(respContentType, "application/json") {
		var jsonBody any
		if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
			parsed = jsonBody
		} else {
			parsed = string(bodyBytes)
		}
	} else {
		parsed = string(bodyBytes)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	out := &HTTPResponse{
		Status:  resp.StatusCode,
		Data:    parsed,
		Headers: headers,
	}

	if resp.StatusCode >= 400 {
		return out, schema.NewErrorf(schema.ErrCodeHTTP, "server returned %d for %s %s", resp.StatusCode, method, req.URL).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
	return out, nil
}

var _ HTTPClient = (*NetHTTPClient)(nil)
