package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestAcceptsLegacyTasksKey(t *testing.T) {
	payload := `{
		"server": {"id": "s1", "name": "foo", "forge": {"version": "1.20.1-47.3.0"}, "mods": [{"id": "alpha"}, "beta"]},
		"tasks": {"id": "t1", "serverId": "s1", "type": "install-forge", "status": "PENDING"}
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(payload), &req))
	assert.Equal(t, "t1", req.Task.ID)
	assert.Equal(t, TaskInstallForge, req.Task.Type)
	assert.Equal(t, "1.20.1-47.3.0", req.Server.Forge.Version)
	assert.Equal(t, []string{"alpha", "beta"}, req.Server.ModIDs())
	assert.NoError(t, req.Validate())
}

func TestRequestPrefersTaskKey(t *testing.T) {
	payload := `{"server": {"id": "s1", "name": "foo"}, "task": {"id": "new"}, "tasks": {"id": "old"}}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(payload), &req))
	assert.Equal(t, "new", req.Task.ID)
}

func TestForgeFromBareString(t *testing.T) {
	var s Server
	require.NoError(t, json.Unmarshal([]byte(`{"forge": "47.3.0"}`), &s))
	assert.Equal(t, "47.3.0", s.Forge.Version)
}

func TestValidateMissingFields(t *testing.T) {
	cases := []Request{
		{},
		{Server: Server{ID: "s"}},
		{Server: Server{ID: "s", Name: "n"}},
	}
	for i, c := range cases {
		err := c.Validate()
		require.Error(t, err, "case %d", i)
		assert.True(t, errors.Is(err, ErrInvalidRequest), "case %d", i)
	}
}

func TestJVMArgs(t *testing.T) {
	s := Server{MinMemory: 2, MinMemoryUnit: UnitGigabytes, MaxMemory: 4096, MaxMemoryUnit: UnitMegabytes}
	assert.Equal(t, []string{"-Xmx4096M", "-Xms2G"}, s.JVMArgs())
	assert.True(t, UnitGigabytes.Valid())
	assert.False(t, MemoryUnit("K").Valid())
}

func TestInstallerErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("install: %w", &InstallerError{Code: 1})
	assert.True(t, errors.Is(err, ErrInstallerFailed))
	var ie *InstallerError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Code)
	assert.Contains(t, err.Error(), "exited with code 1")
}
