package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/loykin/forgekeeper/internal/console"
	"github.com/loykin/forgekeeper/internal/layout"
	"github.com/loykin/forgekeeper/internal/model"
	"github.com/loykin/forgekeeper/internal/process"
)

// installForge: RUNNING, refuse existing installs, fetch the installer,
// run it, SUCCESS.
func (s *Service) installForge(ctx context.Context, req model.Request) bool {
	log := s.reqLog(OpInstallForge, req)
	var l layout.Layout
	var release func()
	defer func() {
		if release != nil {
			release()
		}
	}()
	steps := []Step{
		s.runningStep(req),
		s.layoutStep(req, &l),
		{Name: "claim", Run: func(context.Context) error {
			var err error
			release, err = s.claimInstall(l.Name())
			return err
		}},
		{Name: "prepare", Run: func(context.Context) error {
			if req.Server.Forge.Version == "" {
				return fmt.Errorf("%w: forge version is required", model.ErrInvalidRequest)
			}
			if l.Installed() {
				return model.ErrAlreadyExists
			}
			return l.Prepare()
		}},
		{Name: "download", Run: func(ctx context.Context) error {
			return s.dl.Forge(ctx, req.Server.Forge.Version, l.ForgeJar())
		}},
		{Name: "installer", Run: func(ctx context.Context) error {
			return s.runInstaller(ctx, log, l)
		}},
	}
	return s.finish(ctx, log, req, steps, true)
}

// claimInstall keeps a second install of the same server out of the
// directory while the first one runs.
func (s *Service) claimInstall(name string) (func(), error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	if !s.installing.Insert(name) {
		return nil, fmt.Errorf("%w: install of %q already in progress", model.ErrBusy, name)
	}
	return func() {
		s.claimMu.Lock()
		s.installing.Remove(name)
		s.claimMu.Unlock()
	}, nil
}

// runInstaller runs "java -jar forge.jar --installServer <dir>" and always
// leaves install.log behind, whatever the outcome.
func (s *Service) runInstaller(ctx context.Context, log *slog.Logger, l layout.Layout) error {
	spec := process.Spec{
		Name:    "forge-installer",
		Command: s.javaPath,
		Args:    []string{"-jar", l.ForgeJar(), "--installServer", l.Dir()},
		WorkDir: l.Dir(),
		Env:     s.env,
	}
	proc, err := process.Start(spec)
	if err != nil {
		if werr := l.WriteInstallLog(nil); werr != nil {
			log.Warn("write install log", "error", werr)
		}
		return fmt.Errorf("%w: %v", model.ErrProcessSpawn, err)
	}
	log.Info("forge installer started", "pid", proc.PID())

	remove := s.teardown.Add("forge installer "+l.Name(), func() {
		_ = proc.Kill()
	})
	defer remove()
	stop := context.AfterFunc(ctx, func() { _ = proc.Kill() })
	defer stop()

	var lines []string
	lr := console.NewLineReader(proc.Output(), nil)
	for {
		text, err := lr.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("installer output", "error", err)
			}
			break
		}
		lines = append(lines, text)
	}
	_ = proc.Output().Close()
	ex := proc.Exit()

	if werr := l.WriteInstallLog([]byte(strings.Join(lines, "\n"))); werr != nil {
		log.Warn("write install log", "error", werr)
	}
	switch {
	case ex.Err != nil:
		return fmt.Errorf("%w: %v", model.ErrProcessSpawn, ex.Err)
	case ctx.Err() != nil:
		return errors.Join(&model.InstallerError{Code: ex.Code}, ctx.Err())
	case ex.Code != 0:
		return &model.InstallerError{Code: ex.Code}
	}
	log.Info("forge installer finished", "lines", len(lines))
	return nil
}
