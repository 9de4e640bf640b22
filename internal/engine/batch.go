package engine

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SubmitBatch runs DiscoverAndSubmit for every site with at most limit in
// flight. limit <= 0 uses the engine default. The result has one attempt per
// input, in input order, even when ctx is cancelled part way.
func (e *Engine) SubmitBatch(ctx context.Context, sites []model.Site, limit int) []model.SubmissionAttempt {
	if len(sites) == 0 {
		zap.L().Info("engine: empty batch")
		return nil
	}
	if limit <= 0 {
		limit = e.concurrency
	}

	zap.L().Info("engine: processing batch",
		zap.Int("sites", len(sites)),
		zap.Int("concurrency", limit),
	)
	start := e.now()

	col := NewCollector(len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, site := range sites {
		g.Go(func() error {
			col.Put(i, e.DiscoverAndSubmit(gctx, site))
			return nil // one site never aborts the batch
		})
	}
	_ = g.Wait()

	// Slots left empty are reported as cancelled.
	for _, i := range col.missing() {
		col.Put(i, e.cancelled(sites[i], ctx.Err()))
	}

	zap.L().Info("engine: batch complete",
		zap.Int("succeeded", col.Count(model.OutcomeSuccess)),
		zap.Int("failed", col.Count(model.OutcomeFailed)),
		zap.Int("indeterminate", col.Count(model.OutcomeIndeterminate)),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return col.Results()
}

func (e *Engine) cancelled(site model.Site, err error) model.SubmissionAttempt {
	a := model.SubmissionAttempt{
		SiteURL:   site.URL,
		Outcome:   model.OutcomeFailed,
		Reason:    model.ReasonCancelled,
		StartedAt: e.now().UTC(),
		States:    []model.State{model.StateFailed},
	}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}
