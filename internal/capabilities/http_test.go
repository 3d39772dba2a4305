package capabilities

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/agentflow/pkg/schema"
)

func TestNetHTTPClient_JSONResponseParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name": "alice", "age": 30}`))
	}))
	defer srv.Close()

	c := NewNetHTTPClient(HTTPConfig{})
	resp, err := c.Do(context.Background(), HTTPRequest{URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, map[string]any{"name": "alice", "age": float64(30)}, resp.Data)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestNetHTTPClient_NonJSONKeptAsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	c := NewNetHTTPClient(HTTPConfig{})
	resp, err := c.Do(context.Background(), HTTPRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "plain text", resp.Data)
}

func TestNetHTTPClient_JSONBodyEncoded(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewNetHTTPClient(HTTPConfig{})
	resp, err := c.Do(context.Background(), HTTPRequest{
		Method: "POST",
		URL:    srv.URL,
		Body:   map[string]any{"key": "value"},
	})
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{"key": "value"}, gotBody)
}

func TestNetHTTPClient_HeadersForwarded(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := NewNetHTTPClient(HTTPConfig{})
	_, err := c.Do(context.Background(), HTTPRequest{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", gotAuth)
}

func TestNetHTTPClient_ErrorStatusReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "no such user"}`))
	}))
	defer srv.Close()

	c := NewNetHTTPClient(HTTPConfig{})
	resp, err := c.Do(context.Background(), HTTPRequest{URL: srv.URL})
	require.Error(t, err)

	fe, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeHTTP, fe.Code)

	// The parsed response still comes back for the caller to record.
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.Status)
	assert.Equal(t, map[string]any{"message": "no such user"}, resp.Data)
}

func TestNetHTTPClient_TransportFailureIsNetworkError(t *testing.T) {
	c := NewNetHTTPClient(HTTPConfig{})
	resp, err := c.Do(context.Background(), HTTPRequest{
		URL:     "http://127.0.0.1:1/unreachable",
		Timeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Nil(t, resp)

	fe, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNetwork, fe.Code)
}

func TestNetHTTPClient_RejectsNonHTTPURL(t *testing.T) {
	c := NewNetHTTPClient(HTTPConfig{})

	for _, bad := range []string{"", "not-a-url", "ftp://example.com/file"} {
		_, err := c.Do(context.Background(), HTTPRequest{URL: bad})
		assert.Error(t, err, bad)
	}
}

func TestNetHTTPClient_ResponseBodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for i := 0; i < 100; i++ {
			w.Write([]byte("0123456789"))
		}
	}))
	defer srv.Close()

	c := NewNetHTTPClient(HTTPConfig{MaxResponseBody: 10})
	resp, err := c.Do(context.Background(), HTTPRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", resp.Data)
}
