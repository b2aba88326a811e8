package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Exit describes how a process ended. Code is -1 when the process was
// terminated by a signal; Err is set only for wait failures that are not a
// plain non-zero exit.
type Exit struct {
	Code int
	Desc string
	Err  error
}

// Process is a started external program. Its stdout and stderr share one
// pipe so lines arrive in emission order; stdin stays open for commands.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	output *os.File

	inMu  sync.Mutex
	stdin io.WriteCloser

	done chan struct{}
	exit Exit
}

// Start launches spec and begins waiting on it in the background.
func Start(spec Spec) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cmd := spec.BuildCommand()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		_ = stdin.Close()
		return nil, err
	}
	// the child holds its own copy; EOF arrives once every holder exits
	_ = pw.Close()

	p := &Process{
		spec:      spec,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		output:    pr,
		stdin:     stdin,
		done:      make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	var ee *exec.ExitError
	switch {
	case err == nil:
		p.exit = Exit{Code: 0, Desc: p.cmd.ProcessState.String()}
	case errors.As(err, &ee):
		p.exit = Exit{Code: ee.ExitCode(), Desc: ee.ProcessState.String()}
	default:
		p.exit = Exit{Code: -1, Desc: err.Error(), Err: err}
	}
	close(p.done)
}

func (p *Process) Name() string         { return p.spec.Name }
func (p *Process) PID() int             { return p.pid }
func (p *Process) StartedAt() time.Time { return p.startedAt }

// Output is the merged stdout/stderr stream. It must be drained by exactly
// one reader; it reports EOF after the process and its descendants exit.
func (p *Process) Output() io.ReadCloser { return p.output }

// Write sends raw bytes to the process's standard input.
func (p *Process) Write(b []byte) (int, error) {
	p.inMu.Lock()
	defer p.inMu.Unlock()
	return p.stdin.Write(b)
}

// WriteLine sends line followed by a newline to standard input.
func (p *Process) WriteLine(line string) error {
	_, err := p.Write([]byte(line + "\n"))
	return err
}

// Done is closed when the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exit returns the exit result. It is only meaningful after Done is closed.
func (p *Process) Exit() Exit {
	<-p.done
	return p.exit
}

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Kill forcibly terminates the process, its descendants and its process group.
// Once the process has been reaped the PID may already belong to someone else,
// so only leftovers that can still be addressed safely are killed.
func (p *Process) Kill() error {
	if p.Exited() {
		return reapGroup(p.pid)
	}
	return KillTree(p.pid)
}
