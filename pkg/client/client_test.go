package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSubmitAndStatus(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/start":
			b, _ := io.ReadAll(r.Body)
			gotPath, gotBody = r.URL.Path, string(b)
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"accepted":true,"operation":"run-forge-server","task_id":"t1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/status":
			_, _ = w.Write([]byte(`{"state":"RUNNING","current":{"run_id":"r","name":"alpha","pid":9}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api", Logger: quietLogger()})
	acc, err := c.Submit(context.Background(), OpStart, json.RawMessage(`{"server":{"id":"s","name":"alpha"},"task":{"id":"t1"}}`))
	require.NoError(t, err)
	assert.True(t, acc.Accepted)
	assert.Equal(t, "t1", acc.TaskID)
	assert.Equal(t, "/api/start", gotPath)
	assert.Contains(t, gotBody, `"alpha"`)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", st.State)
	require.NotNil(t, st.Current)
	assert.Equal(t, 9, st.Current.PID)
	assert.True(t, c.IsReachable(context.Background()))
}

func TestCommandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"server is not running"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Logger: quietLogger()})
	err := c.Command(context.Background(), "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server is not running")
}

func TestSubmitUnknownOperation(t *testing.T) {
	c := New(Config{Logger: quietLogger()})
	_, err := c.Submit(context.Background(), Operation("reboot"), nil)
	require.Error(t, err)
}

func TestUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Logger: quietLogger()})
	assert.False(t, c.IsReachable(context.Background()))
}
