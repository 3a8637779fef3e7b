package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/workflowd/pkg/api"
	"github.com/cuemby/workflowd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandReply(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(api.ReplyResponse{Status: 403, Text: "cannot be queued"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1"})
	reply, err := c.Queue(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, "/v1/processes/12/queue", gotPath)
	assert.Equal(t, 403, reply.Status)
	assert.Equal(t, "cannot be queued", reply.Text)
}

func TestReportRunningAnswer(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("answer")
		_ = json.NewEncoder(w).Encode(api.ReplyResponse{Status: 200, Text: "OK"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.ReportRunning(context.Background(), 3, true)
	require.NoError(t, err)
	assert.Equal(t, "YES", query)

	_, err = c.ReportRunning(context.Background(), 3, false)
	require.NoError(t, err)
	assert.Equal(t, "NO", query)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"manager stopped"}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).CheckQueue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manager stopped")
}

func TestCreateRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.RouteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Invoice", req.Name)
		assert.True(t, req.Singleton)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":4}`))
	}))
	defer srv.Close()

	id, err := New(Config{BaseURL: srv.URL}).CreateRoute(context.Background(), api.RouteRequest{Name: "Invoice", Singleton: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
}

func TestEngineStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"engine status not yet published"}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).EngineStatus(context.Background())
	assert.Error(t, err)
}

func TestProcessList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(api.ReplyResponse{
			Status:      200,
			Text:        "OK",
			ProcessList: []types.ProcessRecord{{ProcessID: 1, Status: types.ProcessStateRunning}},
		})
	}))
	defer srv.Close()

	list, err := New(Config{BaseURL: srv.URL}).ProcessList(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.ProcessStateRunning, list[0].Status)
}

func TestNewBareAddress(t *testing.T) {
	c := New(Config{BaseURL: "127.0.0.1:9000"})
	assert.Equal(t, "http://127.0.0.1:9000/v1", c.baseURL)
}
