package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/forgekeeper/internal/config"
	"github.com/loykin/forgekeeper/internal/logger"
	"github.com/loykin/forgekeeper/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execRoot(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHelpMentionsForgekeeper(t *testing.T) {
	out, err := execRoot(t, nil, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "forgekeeper")
	assert.Contains(t, out, "serve")
}

func TestVersion(t *testing.T) {
	out, err := execRoot(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, "forgekeeper "+version+"\n", out)
}

func fakeAgent(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = append(seen, r.Method+" "+r.URL.Path+" "+string(b))
		switch r.URL.Path {
		case "/api/status":
			_, _ = w.Write([]byte(`{"state":"ABSENT","last_exit":{"cause":"exit","code":0,"message":"Server stopped with code 0"}}`))
		case "/api/command":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"server is not running"}`))
		default:
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"accepted":true,"operation":"run-forge-installer","task_id":"t9"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestStatusCommand(t *testing.T) {
	srv, _ := fakeAgent(t)
	out, err := execRoot(t, nil, "status", "--api-url", srv.URL+"/api")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "ABSENT"`)
	assert.Contains(t, out, "Server stopped with code 0")
}

func TestCommandCommandReportsConflict(t *testing.T) {
	srv, seen := fakeAgent(t)
	_, err := execRoot(t, nil, "command", "--api-url", srv.URL+"/api", "say", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server is not running")
	require.Len(t, *seen, 1)
	assert.Contains(t, (*seen)[0], `{"command":"say hi"}`)
}

func TestSubmitFromStdin(t *testing.T) {
	srv, seen := fakeAgent(t)
	body := `{"server":{"id":"s1","name":"alpha","forge":{"version":"1.20.1"}},"task":{"id":"t9"}}`
	out, err := execRoot(t, strings.NewReader(body), "submit", "install", "--api-url", srv.URL+"/api")
	require.NoError(t, err)
	assert.Contains(t, out, "accepted run-forge-installer (task t9)")
	require.Len(t, *seen, 1)
	assert.True(t, strings.HasPrefix((*seen)[0], "POST /api/install "))
}

func TestSubmitRejectsBadInput(t *testing.T) {
	flags := &RemoteFlags{APIUrl: "http://127.0.0.1:1"}
	var out bytes.Buffer
	err := runSubmit(context.Background(), strings.NewReader("{}"), &out, flags, client.Operation("reboot"))
	require.Error(t, err)
	err = runSubmit(context.Background(), strings.NewReader("not json"), &out, flags, client.OpStart)
	require.Error(t, err)
}

func TestLoadServeConfigOverrides(t *testing.T) {
	t.Setenv("API_HOST", "http://controller")
	t.Setenv("BASE_DIR", "")
	file := filepath.Join(t.TempDir(), "fk.toml")
	require.NoError(t, os.WriteFile(file, []byte("base_dir = \"/srv/mc\"\n"), 0o644))

	cfg, err := loadServeConfig(&ServeFlags{ConfigPath: file, Listen: "127.0.0.1:0"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", cfg.Server.Listen)
	assert.Equal(t, "/srv/mc", cfg.BaseDir)

	dir := t.TempDir()
	cfg, err = loadServeConfig(&ServeFlags{ConfigPath: file, BaseDir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.BaseDir)
}

func TestLoadServeConfigRequiresAPIHost(t *testing.T) {
	t.Setenv("API_HOST", "")
	t.Setenv("BASE_DIR", t.TempDir())
	_, err := loadServeConfig(&ServeFlags{})
	require.ErrorIs(t, err, config.ErrMissingAPIHost)
}

func TestAgentStartAndShutdown(t *testing.T) {
	t.Setenv("API_HOST", "http://127.0.0.1:1")
	t.Setenv("BASE_DIR", t.TempDir())
	cfg, err := loadServeConfig(&ServeFlags{Listen: "127.0.0.1:0"})
	require.NoError(t, err)
	cfg.Process.ConsoleLog = filepath.Join(t.TempDir(), "console.log")

	a, err := newAgent(cfg, logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, a.sampler)
	require.Len(t, a.closers, 1)
	require.NoError(t, a.start())
	a.shutdown()
	assert.Empty(t, a.closers)
	assert.Equal(t, "ABSENT", string(a.svc.Snapshot().State))
}
