package pipeline

import (
	"context"

	"github.com/loykin/forgekeeper/internal/layout"
	"github.com/loykin/forgekeeper/internal/model"
)

func (s *Service) installMods(ctx context.Context, req model.Request) bool {
	log := s.reqLog(OpInstallMods, req)
	var l layout.Layout
	steps := []Step{
		s.runningStep(req),
		s.layoutStep(req, &l),
		{Name: "preconditions", Run: func(context.Context) error {
			if !l.Installed() {
				return model.ErrNotInstalled
			}
			return nil
		}},
		// the supervisor slot stays reserved until the ledger is written, so
		// the server cannot start against a half-filled mods directory
		{Name: "reconcile", Run: func(ctx context.Context) error {
			return s.sup.Exclusive(func() error {
				res, err := s.mods.Reconcile(ctx, l, req.Server.ModIDs())
				if err != nil {
					return err
				}
				log.Info("mods installed", "downloaded", len(res.Downloaded), "installed", len(res.Installed))
				return nil
			})
		}},
	}
	return s.finish(ctx, log, req, steps, true)
}
