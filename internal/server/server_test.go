package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(nil)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthDetail_GraphDisabledByDefault(t *testing.T) {
	srv := NewServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/health?detail=true", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"graph_runtime":"disabled"`)
}

func TestAuthMiddlewareRejectsMissingKey(t *testing.T) {
	srv := NewServer(map[string]string{"test-key": "default"})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/threads/t1/invoke", "application/json", bytes.NewBufferString(`{}`))
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddlewareAcceptsValidKey_ButGraphDisabled(t *testing.T) {
	srv := NewServer(map[string]string{"test-key": "default"})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/threads/t1/invoke", bytes.NewBufferString(`{"user_id":"u1","message":"hi"}`))
	assert.NoError(t, err)
	req.Header.Set("X-Phylactery-Key", "test-key")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()
	// No graph runtime configured on this server -> 501, not 401.
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestCORSMiddleware_PreflightAllowsAll(t *testing.T) {
	srv := NewServer(nil, WithCORSOrigins([]string{"*"}))
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/health", nil)
	assert.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
