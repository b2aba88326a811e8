// Package supervisor owns the single managed server process of the agent.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/forgekeeper/internal/metrics"
	"github.com/loykin/forgekeeper/internal/model"
	"github.com/loykin/forgekeeper/internal/process"
)

// State of the supervisor's managed process slot.
type State string

const (
	StateAbsent   State = "ABSENT"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
	StateKilled   State = "KILLED"
	StateCrashed  State = "CRASHED"

	// StateMaintenance holds the empty slot while files the server reads are rewritten.
	StateMaintenance State = "MAINTENANCE"
)

var allStates = []string{
	string(StateAbsent), string(StateStarting), string(StateRunning), string(StateStopping),
	string(StateKilled), string(StateCrashed), string(StateMaintenance),
}

// Cause says why a managed process ended.
type Cause string

const (
	CauseExit     Cause = "exit"     // the process exited on its own
	CauseError    Cause = "error"    // waiting on the process failed
	CauseStop     Cause = "stop"     // graceful stop was requested
	CauseKill     Cause = "kill"     // forced kill was requested
	CauseShutdown Cause = "shutdown" // the agent is shutting down
)

// outputDrainTimeout bounds how long the exit observer waits for the
// output reader before firing OnExit.
const outputDrainTimeout = 2 * time.Second

// Exit is delivered to Hooks.OnExit once per run.
type Exit struct {
	process.Exit
	Cause Cause
}

// Hooks are optional callbacks attached to a run.
type Hooks struct {
	// OnOutput consumes the merged output stream for the life of the process.
	// stdin accepts writes to the process's standard input.
	OnOutput func(h *Handle, output io.Reader, stdin io.Writer)
	// OnExit fires once after the process has been reaped.
	OnExit func(h *Handle, ex Exit)
	// Prepare runs with the slot reserved, right before the spawn. An error
	// aborts the start.
	Prepare func() error
}

// Handle identifies one live run of the managed process.
type Handle struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`

	proc   *process.Process
	cause  Cause // guarded by Supervisor.mu
	exited chan struct{}
}

// Done is closed after the run's OnExit hook has returned.
func (h *Handle) Done() <-chan struct{} { return h.exited }

// Supervisor guarantees at most one managed process at a time.
type Supervisor struct {
	mu       sync.Mutex
	cur      *Handle
	state    State
	reserved bool // an Exclusive section holds the empty slot
	lastExit *Exit
	stopLine string
	log      *slog.Logger
}

// Options configures a Supervisor.
type Options struct {
	// StopCommand is written to stdin on graceful stop. Defaults to "stop".
	StopCommand string
	Logger      *slog.Logger
}

func New(opts Options) *Supervisor {
	if opts.StopCommand == "" {
		opts.StopCommand = "stop"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Supervisor{state: StateAbsent, stopLine: opts.StopCommand, log: opts.Logger}
	metrics.SetState(string(StateAbsent), allStates)
	return s
}

// setState must be called with mu held.
func (s *Supervisor) setState(st State) {
	s.state = st
	metrics.SetState(string(st), allStates)
}

// State reports the current slot state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the live handle, or nil.
func (s *Supervisor) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// LastExit returns how the previous run ended, or nil.
func (s *Supervisor) LastExit() *Exit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastExit == nil {
		return nil
	}
	e := *s.lastExit
	return &e
}

// Start spawns spec unless a process is already live. The lock is held
// across the check and the spawn, so concurrent callers cannot both spawn.
func (s *Supervisor) Start(ctx context.Context, spec process.Spec, hooks Hooks) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		return nil, model.ErrAlreadyRunning
	}
	if s.reserved {
		return nil, model.ErrBusy
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.setState(StateStarting)

	if hooks.Prepare != nil {
		if err := hooks.Prepare(); err != nil {
			s.setState(StateAbsent)
			return nil, err
		}
	}
	proc, err := process.Start(spec)
	if err != nil {
		s.setState(StateAbsent)
		return nil, fmt.Errorf("%w: %v", model.ErrProcessSpawn, err)
	}
	h := &Handle{
		RunID:     uuid.NewString(),
		Name:      spec.Name,
		PID:       proc.PID(),
		StartedAt: proc.StartedAt(),
		proc:      proc,
		exited:    make(chan struct{}),
	}
	s.cur = h
	s.setState(StateRunning)
	metrics.IncStart()
	s.log.Info("server process started", "server", h.Name, "run", h.RunID, "pid", h.PID)

	outDone := make(chan struct{})
	go func() {
		defer close(outDone)
		defer func() { _ = proc.Output().Close() }()
		if hooks.OnOutput != nil {
			hooks.OnOutput(h, proc.Output(), proc)
			return
		}
		_, _ = io.Copy(io.Discard, proc.Output())
	}()
	go s.observe(h, hooks, outDone)
	return h, nil
}

// Exclusive runs fn while holding the empty slot, so no process can be
// started until fn returns. It fails with ErrServerRunning when a process is
// live and with ErrBusy when another Exclusive section is active. The state
// from before the call is restored afterwards.
func (s *Supervisor) Exclusive(fn func() error) error {
	s.mu.Lock()
	switch {
	case s.cur != nil:
		s.mu.Unlock()
		return model.ErrServerRunning
	case s.reserved:
		s.mu.Unlock()
		return model.ErrBusy
	}
	prev := s.state
	s.reserved = true
	s.setState(StateMaintenance)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reserved = false
		s.setState(prev)
		s.mu.Unlock()
	}()
	return fn()
}

// observe waits for the run to end, clears the slot if it still belongs to
// this run, reaps stragglers and fires OnExit.
func (s *Supervisor) observe(h *Handle, hooks Hooks, outDone <-chan struct{}) {
	<-h.proc.Done()
	pex := h.proc.Exit()

	s.mu.Lock()
	cause := h.cause
	if cause == "" {
		cause = CauseExit
		if pex.Err != nil {
			cause = CauseError
		}
	}
	ex := Exit{Exit: pex, Cause: cause}
	if s.cur == h {
		s.cur = nil
		if cause == CauseExit || cause == CauseError {
			s.setState(StateCrashed)
		}
		s.setState(StateAbsent)
	}
	s.lastExit = &ex
	s.mu.Unlock()

	// descendants may outlive the launch script
	if err := h.proc.Kill(); err != nil {
		s.log.Debug("cleanup after exit", "run", h.RunID, "error", err)
	}
	select {
	case <-outDone:
	case <-time.After(outputDrainTimeout):
		s.log.Warn("output reader still busy after exit", "run", h.RunID)
	}

	metrics.IncStop(string(cause))
	s.log.Info("server process exited", "server", h.Name, "run", h.RunID, "pid", h.PID,
		"cause", cause, "code", pex.Code, "desc", pex.Desc)
	if hooks.OnExit != nil {
		hooks.OnExit(h, ex)
	}
	close(h.exited)
}

// Stop asks the process to shut down by writing the stop command to its
// standard input. The slot is released by the exit observer.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	h := s.cur
	if h == nil {
		s.mu.Unlock()
		return model.ErrNotRunning
	}
	if h.cause == "" {
		h.cause = CauseStop
	}
	s.setState(StateStopping)
	s.mu.Unlock()

	s.log.Info("stopping server process", "server", h.Name, "run", h.RunID)
	if err := h.proc.WriteLine(s.stopLine); err != nil {
		return fmt.Errorf("write stop command: %w", err)
	}
	return nil
}

// Kill forcibly terminates the process tree and releases the slot
// regardless of the outcome.
func (s *Supervisor) Kill() error {
	h, err := s.release(CauseKill)
	if err != nil {
		return err
	}
	s.log.Info("killing server process", "server", h.Name, "run", h.RunID, "pid", h.PID)
	return h.proc.Kill()
}

func (s *Supervisor) release(cause Cause) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.cur
	if h == nil {
		return nil, model.ErrNotRunning
	}
	if h.cause == "" || h.cause == CauseStop {
		h.cause = cause
	}
	s.cur = nil
	s.setState(StateKilled)
	s.setState(StateAbsent)
	return h, nil
}

// SendCommand writes a console command line to the running process.
func (s *Supervisor) SendCommand(line string) error {
	h := s.Current()
	if h == nil {
		return model.ErrNotRunning
	}
	if err := h.proc.WriteLine(line); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// Shutdown tears down the live process on agent exit and waits until its
// OnExit hook has run or ctx ends. Nothing running is not an error.
func (s *Supervisor) Shutdown(ctx context.Context, reason string) error {
	h, err := s.release(CauseShutdown)
	if errors.Is(err, model.ErrNotRunning) {
		return nil
	}
	s.log.Info("shutting down server process", "server", h.Name, "run", h.RunID, "reason", reason)
	killErr := h.proc.Kill()
	select {
	case <-h.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return killErr
}
