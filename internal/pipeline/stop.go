package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/forgekeeper/internal/model"
)

const (
	msgStopFailed    = "Error stopping server"
	msgKillFailed    = "Error killing server"
	msgStopRequested = "Server stop requested by operator"
)

// stopServer writes the stop command. The TERMINATED report here only
// acknowledges the request; the exit hook sends the authoritative one.
func (s *Service) stopServer(ctx context.Context, req model.Request) bool {
	log := s.reqLog(OpStopServer, req)
	if err := s.sup.Stop(); err != nil {
		log.Warn("stop failed", "error", err)
		s.notify(ctx, req, model.TaskFailed, msgStopFailed)
		return false
	}
	s.notify(ctx, req, model.TaskTerminated, msgStopRequested)
	return true
}

// killServer reports nothing on success; the exit hook carries the result.
func (s *Service) killServer(ctx context.Context, req model.Request) bool {
	log := s.reqLog(OpKillServer, req)
	err := s.sup.Kill()
	if errors.Is(err, model.ErrNotRunning) {
		log.Warn("kill failed", "error", err)
		s.notify(ctx, req, model.TaskFailed, msgKillFailed)
		return false
	}
	if err != nil {
		// the slot is already released; stragglers are reaped by the exit hook
		log.Warn("kill reported errors", "error", err)
	}
	return true
}

// RunServerCommand writes a console command to the running server.
func (s *Service) RunServerCommand(line string) error {
	if strings.TrimSpace(line) == "" {
		return fmt.Errorf("%w: empty command", model.ErrInvalidRequest)
	}
	return s.sup.SendCommand(line)
}
