package process

import (
	"os"
	"runtime"
	"strings"
	"testing"
)

func requireUnixSpec(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like shell")
	}
}

func TestBuildCommandPassesArgsVerbatim(t *testing.T) {
	requireUnixSpec(t)
	s := Spec{Name: "java", Command: "java", Args: []string{"-jar", "forge jar.jar", "--installServer", "/srv/x"}, WorkDir: "/srv/x"}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 5 || cmd.Args[2] != "forge jar.jar" {
		t.Fatalf("unexpected argv: %#v", cmd.Args)
	}
	if cmd.Dir != "/srv/x" {
		t.Fatalf("workdir not applied: %q", cmd.Dir)
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("Setpgid not set")
	}
	if cmd.Env != nil {
		t.Fatalf("env should be inherited when no extras are given")
	}
}

func TestBuildCommandAppendsEnv(t *testing.T) {
	requireUnixSpec(t)
	cmd := Spec{Command: "true", Env: []string{"FOO=bar"}}.BuildCommand()
	if len(cmd.Env) != len(os.Environ())+1 || cmd.Env[len(cmd.Env)-1] != "FOO=bar" {
		t.Fatalf("env not appended: %d entries", len(cmd.Env))
	}
}

func TestValidate(t *testing.T) {
	if err := (Spec{}).Validate(); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestScriptSpec(t *testing.T) {
	requireUnixSpec(t)
	s := ScriptSpec("foo", "/srv/foo", "run.sh", "nogui")
	if s.Command != "bash" || strings.Join(s.Args, " ") != "run.sh nogui" || s.WorkDir != "/srv/foo" {
		t.Fatalf("unexpected spec: %+v", s)
	}
}
