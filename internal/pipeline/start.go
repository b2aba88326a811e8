package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/loykin/forgekeeper/internal/console"
	"github.com/loykin/forgekeeper/internal/layout"
	"github.com/loykin/forgekeeper/internal/model"
	"github.com/loykin/forgekeeper/internal/process"
	"github.com/loykin/forgekeeper/internal/supervisor"
)

// startServer emits no SUCCESS: the run ends with the TERMINATED report
// from the exit hook.
func (s *Service) startServer(ctx context.Context, req model.Request) bool {
	log := s.reqLog(OpStartServer, req)
	var l layout.Layout
	steps := []Step{
		s.runningStep(req),
		s.layoutStep(req, &l),
		{Name: "preconditions", Run: func(context.Context) error {
			if !l.Installed() {
				return model.ErrNotInstalled
			}
			if s.sup.Current() != nil {
				return model.ErrAlreadyRunning
			}
			if !req.Server.MinMemoryUnit.Valid() || !req.Server.MaxMemoryUnit.Valid() {
				return fmt.Errorf("%w: memory unit must be G or M", model.ErrInvalidRequest)
			}
			return nil
		}},
		{Name: "spawn", Run: func(ctx context.Context) error {
			spec := process.ScriptSpec(req.Server.Name, l.Dir(), layout.LaunchScriptName(), "nogui")
			spec.Env = s.env
			hooks := s.serverHooks(req)
			// written only once the slot is ours, never under a live server
			hooks.Prepare = func() error {
				if err := l.WriteJVMArgs(req.Server.JVMArgs()); err != nil {
					return err
				}
				return l.WriteEULA()
			}
			h, err := s.sup.Start(ctx, spec, hooks)
			if err != nil {
				return err
			}
			log.Info("server started", "run", h.RunID, "pid", h.PID)
			return nil
		}},
	}
	return s.finish(ctx, log, req, steps, false)
}

func (s *Service) serverHooks(req model.Request) supervisor.Hooks {
	return supervisor.Hooks{
		OnOutput: func(h *supervisor.Handle, out io.Reader, stdin io.Writer) {
			err := console.Observe(out, stdin, console.Options{
				ServerID: req.Server.ID,
				Server:   req.Server.Name,
				RunID:    h.RunID,
				Prompts:  s.prompts,
				Sinks:    s.sinks,
			})
			if err != nil {
				s.log.Debug("console stream ended", "run", h.RunID, "error", err)
			}
		},
		OnExit: func(h *supervisor.Handle, ex supervisor.Exit) {
			// the pipeline context is gone by now; the reporter has its own budget
			s.notify(context.Background(), req, model.TaskTerminated, exitMessage(ex))
		},
	}
}

// exitMessage renders the TERMINATED result for a finished run.
func exitMessage(ex supervisor.Exit) string {
	switch {
	case ex.Cause == supervisor.CauseShutdown:
		return "Server stopped by process exit"
	case ex.Err != nil:
		return fmt.Sprintf("Server stopped by error: %v", ex.Err)
	case ex.Code < 0:
		return fmt.Sprintf("Server stopped by %s", ex.Desc)
	default:
		return fmt.Sprintf("Server stopped with code %d", ex.Code)
	}
}
