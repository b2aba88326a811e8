// Package mods converges a server's installed mod set toward the set the
// controller requests.
package mods

import (
	"context"
	"log/slog"
	"slices"

	"github.com/hashicorp/go-set/v2"
	"github.com/loykin/forgekeeper/internal/layout"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads a single mod jar.
type Fetcher interface {
	Mod(ctx context.Context, id, dest string) error
}

// Result summarises one reconcile pass.
type Result struct {
	Downloaded []string // the delta that was fetched
	Installed  []string // ledger contents after the pass
}

// Reconciler downloads only the mods missing from the ledger.
type Reconciler struct {
	fetch       Fetcher
	concurrency int
	log         *slog.Logger
}

// NewReconciler creates a Reconciler. concurrency <= 0 means unbounded.
func NewReconciler(fetch Fetcher, concurrency int, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{fetch: fetch, concurrency: concurrency, log: log}
}

// Reconcile fetches requested minus installed concurrently. Invalid ids fail
// the pass before anything is downloaded. Only when every
// download succeeds is the mods directory rescanned and the ledger rewritten
// to match it; any failure leaves the ledger untouched.
func (r *Reconciler) Reconcile(ctx context.Context, l layout.Layout, requested []string) (Result, error) {
	for _, id := range requested {
		if err := layout.ValidateModID(id); err != nil {
			return Result{}, err
		}
	}
	ledger := NewLedger(l.ModLedger())
	installed, err := ledger.Read()
	if err != nil {
		return Result{}, err
	}

	delta := set.From(requested).Difference(set.From(installed)).Slice()
	slices.Sort(delta)

	if len(delta) > 0 {
		if err := l.PrepareMods(); err != nil {
			return Result{}, err
		}
		g, gctx := errgroup.WithContext(ctx)
		if r.concurrency > 0 {
			g.SetLimit(r.concurrency)
		}
		for _, id := range delta {
			g.Go(func() error {
				return r.fetch.Mod(gctx, id, l.ModJar(id))
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
	}

	present, err := Scan(l.ModsDir())
	if err != nil {
		return Result{}, err
	}
	if err := ledger.Write(present); err != nil {
		return Result{}, err
	}
	r.log.Info("mods reconciled", "server", l.Name(), "downloaded", delta, "installed", present)
	return Result{Downloaded: delta, Installed: present}, nil
}
