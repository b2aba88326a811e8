package process

import (
	"errors"
	"os"
	"os/exec"
)

// Spec describes an external program to launch. Arguments are passed
// verbatim; no shell is involved unless Command is one.
type Spec struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	WorkDir string   `json:"work_dir,omitempty"`
	Env     []string `json:"env,omitempty"` // appended to the agent's environment
}

var errEmptyCommand = errors.New("process: empty command")

// Validate reports whether the spec can be launched.
func (s Spec) Validate() error {
	if s.Command == "" {
		return errEmptyCommand
	}
	return nil
}

// BuildCommand constructs the *exec.Cmd for the spec with group attributes set.
func (s Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- command and args come from the agent's own launch specs
	cmd := exec.Command(s.Command, s.Args...)
	cmd.Dir = s.WorkDir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	configureSysProcAttr(cmd)
	return cmd
}
