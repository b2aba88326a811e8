package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/loykin/forgekeeper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	body   map[string]any
}

func controller(t *testing.T, code int) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		mu.Lock()
		got = append(got, captured{method: r.Method, path: r.URL.Path, body: m})
		mu.Unlock()
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func TestNotifySendsPatch(t *testing.T) {
	srv, calls := controller(t, http.StatusOK)
	r := NewReporter(Config{APIHost: srv.URL}, nil)

	ok := r.Notify(context.Background(), Update{ServerID: "s1", TaskID: "t1", Status: model.TaskFailed, Result: "Forge server already exists"})
	require.True(t, ok)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPatch, got[0].method)
	assert.Equal(t, "/api/v1/minecraft/server/s1/tasks/t1", got[0].path)
	assert.Equal(t, "FAILED", got[0].body["status"])
	assert.Equal(t, "Forge server already exists", got[0].body["result"])
}

func TestNotifyOmitsEmptyResult(t *testing.T) {
	srv, calls := controller(t, http.StatusNoContent)
	r := NewReporter(Config{APIHost: srv.URL}, nil)
	require.True(t, r.Notify(context.Background(), Update{ServerID: "s", TaskID: "t", Status: model.TaskRunning}))
	_, has := calls()[0].body["result"]
	assert.False(t, has)
}

func TestNotifyRejectedReturnsFalse(t *testing.T) {
	srv, _ := controller(t, http.StatusBadRequest)
	r := NewReporter(Config{APIHost: srv.URL}, nil)
	assert.False(t, r.Notify(context.Background(), Update{ServerID: "s", TaskID: "t", Status: model.TaskSuccess}))
}

func TestNotifyUnreachableReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()
	r := NewReporter(Config{APIHost: host}, nil)
	assert.False(t, r.Notify(context.Background(), Update{ServerID: "s", TaskID: "t", Status: model.TaskSuccess}))
}

func TestNotifySurvivesCanceledContext(t *testing.T) {
	srv, calls := controller(t, http.StatusOK)
	r := NewReporter(Config{APIHost: srv.URL}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, r.Notify(ctx, Update{ServerID: "s", TaskID: "t", Status: model.TaskTerminated, Result: "Server stopped by process exit"}))
	assert.Len(t, calls(), 1)
}

func TestNotifierFuncAndDiscard(t *testing.T) {
	var seen Update
	n := NotifierFunc(func(_ context.Context, u Update) bool {
		seen = u
		return false
	})
	assert.False(t, n.Notify(context.Background(), Update{TaskID: "x"}))
	assert.Equal(t, "x", seen.TaskID)
	assert.True(t, Discard.Notify(context.Background(), Update{}))
}
