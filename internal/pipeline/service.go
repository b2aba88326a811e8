package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-set/v2"
	"github.com/loykin/forgekeeper/internal/console"
	procenv "github.com/loykin/forgekeeper/internal/env"
	"github.com/loykin/forgekeeper/internal/layout"
	"github.com/loykin/forgekeeper/internal/metrics"
	"github.com/loykin/forgekeeper/internal/model"
	"github.com/loykin/forgekeeper/internal/mods"
	"github.com/loykin/forgekeeper/internal/status"
	"github.com/loykin/forgekeeper/internal/supervisor"
)

// Operation names an inbound request kind. The values double as message
// pattern names on the NATS transport.
type Operation string

const (
	OpInstallForge Operation = "run-forge-installer"
	OpInstallMods  Operation = "run-install-mods"
	OpStartServer  Operation = "run-forge-server"
	OpStopServer   Operation = "stop-forge-server"
	OpKillServer   Operation = "kill-forge-server"
)

// Operations lists every dispatchable operation.
var Operations = []Operation{OpInstallForge, OpInstallMods, OpStartServer, OpStopServer, OpKillServer}

// Downloader fetches remote binaries.
type Downloader interface {
	Forge(ctx context.Context, version, dest string) error
	Mod(ctx context.Context, id, dest string) error
}

// Options wires a Service.
type Options struct {
	BaseDir    string
	JavaPath   string   // defaults to "java"
	Prompts    []string // console prompts answered with a key press
	Env        procenv.Vars // extra environment for the installer and launch script
	Supervisor *supervisor.Supervisor
	Notifier   status.Notifier
	Downloader Downloader
	// ModConcurrency bounds parallel mod downloads; <= 0 is unbounded.
	ModConcurrency int
	Sinks          []console.Sink
	Teardown       *Teardown
	Logger         *slog.Logger
}

// Service runs the server lifecycle pipelines. Each operation runs in its
// own goroutine; the calling transport never sees pipeline errors.
type Service struct {
	baseDir  string
	javaPath string
	prompts  []string
	env      []string
	sup      *supervisor.Supervisor
	notifier status.Notifier
	dl       Downloader
	mods     *mods.Reconciler
	sinks    []console.Sink
	teardown *Teardown
	log      *slog.Logger

	claimMu    sync.Mutex
	installing *set.Set[string] // server names with an install in flight

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.JavaPath == "" {
		opts.JavaPath = "java"
	}
	if opts.Notifier == nil {
		opts.Notifier = status.Discard
	}
	if opts.Supervisor == nil {
		opts.Supervisor = supervisor.New(supervisor.Options{Logger: opts.Logger})
	}
	if opts.Teardown == nil {
		opts.Teardown = NewTeardown(opts.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		baseDir:  opts.BaseDir,
		javaPath: opts.JavaPath,
		prompts:  opts.Prompts,
		env:      opts.Env.List(),
		sup:      opts.Supervisor,
		notifier: opts.Notifier,
		dl:       opts.Downloader,
		mods:     mods.NewReconciler(opts.Downloader, opts.ModConcurrency, opts.Logger),
		sinks:    opts.Sinks,
		teardown: opts.Teardown,
		log:      opts.Logger,

		installing: set.New[string](1),

		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Service) Supervisor() *supervisor.Supervisor { return s.sup }
func (s *Service) Teardown() *Teardown                { return s.teardown }

// Dispatch validates req and runs op in the background. Only malformed
// requests and unknown operations are reported to the caller.
func (s *Service) Dispatch(op Operation, req model.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	run, ok := s.handler(op)
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", model.ErrInvalidRequest, op)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		ok := run(s.ctx, req)
		metrics.ObservePipeline(string(op), ok, time.Since(start).Seconds())
	}()
	return nil
}

func (s *Service) handler(op Operation) (func(context.Context, model.Request) bool, bool) {
	switch op {
	case OpInstallForge:
		return s.installForge, true
	case OpInstallMods:
		return s.installMods, true
	case OpStartServer:
		return s.startServer, true
	case OpStopServer:
		return s.stopServer, true
	case OpKillServer:
		return s.killServer, true
	}
	return nil, false
}

// RunForgeInstaller installs the Forge server for req.Server.
func (s *Service) RunForgeInstaller(req model.Request) { s.dispatchLogged(OpInstallForge, req) }

// RunInstallMods converges the server's mods toward req.Server.Mods.
func (s *Service) RunInstallMods(req model.Request) { s.dispatchLogged(OpInstallMods, req) }

// RunForgeServer starts the server process.
func (s *Service) RunForgeServer(req model.Request) { s.dispatchLogged(OpStartServer, req) }

// StopForgeServer asks the running server to stop.
func (s *Service) StopForgeServer(req model.Request) { s.dispatchLogged(OpStopServer, req) }

// KillForgeServer forcibly terminates the running server.
func (s *Service) KillForgeServer(req model.Request) { s.dispatchLogged(OpKillServer, req) }

func (s *Service) dispatchLogged(op Operation, req model.Request) {
	if err := s.Dispatch(op, req); err != nil {
		s.log.Warn("request rejected", "operation", op, "error", err)
	}
}

// Wait blocks until every in-flight pipeline has returned.
func (s *Service) Wait() { s.wg.Wait() }

// Shutdown cancels running pipelines, kills helper processes, tears the
// server down and waits for in-flight pipelines, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	s.teardown.Run()
	err := s.sup.Shutdown(ctx, "agent shutdown")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Snapshot describes the supervisor for status endpoints.
type Snapshot struct {
	State    supervisor.State   `json:"state"`
	Current  *supervisor.Handle `json:"current,omitempty"`
	LastExit *ExitInfo          `json:"last_exit,omitempty"`
}

// ExitInfo is the serialisable form of a supervisor exit.
type ExitInfo struct {
	Cause   supervisor.Cause `json:"cause"`
	Code    int              `json:"code"`
	Message string           `json:"message"`
}

func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{State: s.sup.State(), Current: s.sup.Current()}
	if ex := s.sup.LastExit(); ex != nil {
		snap.LastExit = &ExitInfo{Cause: ex.Cause, Code: ex.Code, Message: exitMessage(*ex)}
	}
	return snap
}

func (s *Service) notify(ctx context.Context, req model.Request, st model.TaskStatus, result string) bool {
	return s.notifier.Notify(ctx, status.Update{
		ServerID: req.Server.ID,
		TaskID:   req.Task.ID,
		Status:   st,
		Result:   result,
	})
}

// finish runs steps and emits the terminal notification: FAILED with the
// error text, or SUCCESS when success is true.
func (s *Service) finish(ctx context.Context, log *slog.Logger, req model.Request, steps []Step, success bool) bool {
	if err := Run(ctx, log, steps); err != nil {
		log.Warn("pipeline failed", "error", err)
		s.notify(ctx, req, model.TaskFailed, err.Error())
		return false
	}
	if success {
		s.notify(ctx, req, model.TaskSuccess, "")
	}
	log.Info("pipeline finished")
	return true
}

func (s *Service) reqLog(op Operation, req model.Request) *slog.Logger {
	return s.log.With("operation", op, "server", req.Server.Name, "server_id", req.Server.ID, "task", req.Task.ID)
}

func (s *Service) layoutStep(req model.Request, l *layout.Layout) Step {
	return Step{Name: "layout", Run: func(context.Context) error {
		var err error
		*l, err = layout.New(s.baseDir, req.Server.Name)
		return err
	}}
}

func (s *Service) runningStep(req model.Request) Step {
	return Step{Name: "notify-running", Run: func(ctx context.Context) error {
		s.notify(ctx, req, model.TaskRunning, "")
		return nil
	}}
}
