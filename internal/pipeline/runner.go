// Package pipeline turns inbound server operations into ordered, fail-fast
// step lists and reports each run's outcome to the controller.
package pipeline

import (
	"context"
	"log/slog"
)

// Step is a single unit of a pipeline.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run executes steps in order and returns the first error. Later steps
// never run after a failure.
func Run(ctx context.Context, log *slog.Logger, steps []Step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Run(ctx); err != nil {
			log.Debug("pipeline step failed", "step", s.Name, "error", err)
			return err
		}
		log.Debug("pipeline step done", "step", s.Name)
	}
	return nil
}
