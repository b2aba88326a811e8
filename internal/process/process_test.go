package process

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func waitDone(t *testing.T, p *Process) Exit {
	t.Helper()
	select {
	case <-p.Done():
		return p.Exit()
	case <-time.After(5 * time.Second):
		t.Fatalf("process %d did not exit", p.PID())
		return Exit{}
	}
}

func TestStartCapturesInterleavedOutput(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Name: "echo", Command: "/bin/sh", Args: []string{"-c", "echo one; echo two 1>&2; echo three"}})
	require.NoError(t, err)
	require.Positive(t, p.PID())

	b, err := io.ReadAll(p.Output())
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(b))

	ex := waitDone(t, p)
	assert.Equal(t, 0, ex.Code)
	assert.NoError(t, ex.Err)
}

func TestExitCodeReported(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Command: "/bin/sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, p.Output())
	ex := waitDone(t, p)
	assert.Equal(t, 3, ex.Code)
	assert.Contains(t, ex.Desc, "exit status 3")
}

func TestStartUnknownCommand(t *testing.T) {
	requireUnix(t)
	_, err := Start(Spec{Command: filepath.Join(t.TempDir(), "missing-binary")})
	require.Error(t, err)
}

func TestWriteLineReachesStdin(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Command: "/bin/sh", Args: []string{"-c", "read line; echo got:$line"}})
	require.NoError(t, err)
	require.NoError(t, p.WriteLine("stop"))

	sc := bufio.NewScanner(p.Output())
	require.True(t, sc.Scan())
	assert.Equal(t, "got:stop", sc.Text())
	assert.Equal(t, 0, waitDone(t, p).Code)
}

func TestKillTerminatesTree(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")
	// the child is detached from the output pipe so it survives only through the tree
	script := "sleep 30 >/dev/null 2>&1 & echo $! > " + pidFile + "; echo ready; wait"
	p, err := Start(Spec{Command: "/bin/sh", Args: []string{"-c", script}})
	require.NoError(t, err)

	sc := bufio.NewScanner(p.Output())
	require.True(t, sc.Scan())
	require.Equal(t, "ready", sc.Text())

	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	child, err := strconv.Atoi(strings.TrimSpace(string(b)))
	require.NoError(t, err)
	require.True(t, Alive(child))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Contains(t, Descendants(ctx, p.PID()), child)

	require.NoError(t, p.Kill())
	ex := waitDone(t, p)
	assert.Equal(t, -1, ex.Code)
	assert.Contains(t, ex.Desc, "killed")

	require.Eventually(t, func() bool { return !Alive(child) || isZombie(child) }, 3*time.Second, 20*time.Millisecond)
	// second kill after reaping is harmless
	assert.NoError(t, p.Kill())
}

func TestKillTreeAbsent(t *testing.T) {
	assert.NoError(t, KillTree(0))
}

// isZombie reports a process that is dead but not yet reaped by init.
func isZombie(pid int) bool {
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(b))
	return len(fields) > 2 && fields[2] == "Z"
}

func TestKillAfterExitReapsLeftoverGroup(t *testing.T) {
	requireUnix(t)
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	script := "sleep 30 >/dev/null 2>&1 & echo $! > " + pidFile
	p, err := Start(Spec{Command: "/bin/sh", Args: []string{"-c", script}})
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, p.Output())
	assert.Equal(t, 0, waitDone(t, p).Code)

	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	child, err := strconv.Atoi(strings.TrimSpace(string(b)))
	require.NoError(t, err)
	require.True(t, Alive(child))

	require.NoError(t, p.Kill())
	require.Eventually(t, func() bool { return !Alive(child) || isZombie(child) }, 3*time.Second, 20*time.Millisecond)
}
