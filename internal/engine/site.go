package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/discovery"
	"github.com/sells-group/outreach-cli/internal/fields"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/submit"
)

// run is the per-site state. It owns the site's browser session, which is
// opened on first use and released when the site finishes.
type run struct {
	e       *Engine
	site    model.Site
	log     *zap.Logger
	h       browser.Handle
	release func()
	tried   bool
	at      string
}

// open returns a session showing url, or nil in HTTP-only mode or when the
// browser cannot be started.
func (r *run) open(ctx context.Context, url string) browser.Handle {
	if r.e.sessions == nil {
		return nil
	}
	if !r.tried {
		r.tried = true
		h, release, err := r.e.sessions(ctx)
		if err != nil {
			r.log.Warn("engine: browser unavailable, continuing over http", zap.Error(err))
			return nil
		}
		r.h, r.release = h, release
	}
	if r.h == nil {
		return nil
	}
	if url != "" && r.at != url {
		if err := r.h.Navigate(ctx, url); err != nil {
			r.log.Debug("engine: browser navigation failed", zap.String("url", url), zap.Error(err))
			return nil
		}
		r.at = url
	}
	return r.h
}

func (r *run) close() {
	if r.release != nil {
		r.release()
		r.release = nil
	}
}

// DiscoverAndSubmit runs the whole pipeline for one site. It never panics or
// returns an error: every failure is carried on the returned attempt.
func (e *Engine) DiscoverAndSubmit(ctx context.Context, site model.Site) (a model.SubmissionAttempt) {
	start := e.now()
	a = model.SubmissionAttempt{
		ID:        uuid.NewString(),
		SiteURL:   site.URL,
		Outcome:   model.OutcomeFailed,
		StartedAt: start.UTC(),
	}
	if a.SiteURL == "" {
		a.SiteURL = site.EntryURL()
	}
	defer e.metrics.Start()()

	ctx, cancel := context.WithTimeout(ctx, e.siteTimeout)
	defer cancel()

	r := &run{e: e, site: site, log: zap.L().With(zap.String("site", a.SiteURL))}
	defer r.close()

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("engine: site panicked", zap.Any("panic", p))
			a.Outcome = model.OutcomeFailed
			a.Error = fmt.Sprintf("engine: panic: %v", p)
			a.States = append(a.States, model.StateFailed)
		}
		a.Elapsed = e.now().Sub(start)
		e.report(ctx, &a)
	}()

	err := e.process(ctx, r, &a)
	e.finish(ctx, &a, err)

	r.log.Info("engine: site finished",
		zap.String("outcome", string(a.Outcome)),
		zap.String("method", string(a.MethodUsed)),
		zap.String("reason", string(a.Reason)),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return a
}

func (e *Engine) process(ctx context.Context, r *run, a *model.SubmissionAttempt) error {
	site := r.site
	entry := site.EntryURL()
	if entry == "" {
		return model.Failf(model.ReasonFetchFailed, "engine: site has no url")
	}
	opts := discovery.Options{ExplicitContact: site.ExplicitContact()}

	pg, err := e.load(ctx, entry, opts)
	if err != nil {
		return model.NewAttemptError(model.ReasonFetchFailed, err)
	}
	pg = e.follow(ctx, r, pg, opts)

	cands, pageHTML := pg.Result.Candidates, pg.HTML
	if !formFound(cands) {
		if h := r.open(ctx, pg.URL); h != nil {
			live, err := e.live.Run(ctx, h, pg.URL, opts)
			switch {
			case err != nil:
				r.log.Debug("engine: live pass failed", zap.Error(err))
			case len(live) > 0:
				cands = live
				if html, err := h.HTML(ctx); err == nil {
					pageHTML = html
				}
			}
		}
	}

	best, ok := model.Best(cands)
	if !ok {
		return model.Failf(model.ReasonNoCandidateFound, "engine: no contact entry point on %s", pg.URL)
	}
	if best.PageURL == "" {
		best.PageURL = pg.URL
	}
	a.Target = &best
	a.States = append(a.States, model.StateDiscovered)
	r.log.Debug("engine: candidate promoted",
		zap.String("kind", string(best.Kind)),
		zap.Int("score", best.Score),
		zap.Int("priority", best.Priority),
		zap.String("target", best.Target),
	)

	plan := &submit.Plan{Site: site, Target: best, Emails: pg.Result.Emails, PageHTML: pageHTML}
	if best.FormHTML != "" {
		fs, err := fields.Extract(best.FormHTML)
		if err != nil {
			return model.NewAttemptError(model.ReasonRequiredFieldUnresolved, err)
		}
		plan.Fields = fs
		if err := e.mapper.Map(ctx, plan); err != nil {
			return err
		}
	}
	a.States = append(a.States, model.StateFieldsMapped)

	if det := e.detector.Detect(pageHTML, best.PageURL); det.Detected {
		sol := e.solver.Solve(ctx, det, r.open(ctx, best.PageURL))
		a.Captcha = &model.CaptchaInfo{
			Type:       string(det.Type),
			Solved:     sol.Solved,
			MethodUsed: sol.MethodUsed,
			Elapsed:    sol.Elapsed,
		}
		if !sol.Solved {
			return model.Failf(model.ReasonCaptchaUnsolved, "engine: %s challenge not solved (%s)", det.Type, sol.MethodUsed)
		}
		plan.Captcha = &sol
		a.States = append(a.States, model.StateCaptchaCleared)
	} else {
		a.States = append(a.States, model.StateCaptchaSkipped)
	}

	res, err := e.executor.Run(ctx, plan, r.open(ctx, best.PageURL))
	if len(res.Tried) > 0 {
		a.States = append(a.States, model.StateSubmitted)
	}
	a.FieldsFilled = plan.SubmittedValues()
	a.MethodUsed = res.Method
	a.Evidence = res.Verdict.Evidence
	if err != nil {
		return err
	}

	a.States = append(a.States, model.StateVerified)
	a.Outcome = res.Verdict.Outcome
	switch a.Outcome {
	case model.OutcomeSuccess:
		a.States = append(a.States, model.StateSucceeded)
	case model.OutcomeIndeterminate:
		a.Reason = model.ReasonVerificationIndeterminate
		a.States = append(a.States, model.StateFailed)
	}
	return nil
}

// follow fetches the target of a static contact link and analyses it in
// place of the entry page when it yields any candidate.
func (e *Engine) follow(ctx context.Context, r *run, pg *page, opts discovery.Options) *page {
	best, ok := pg.Result.Best()
	if !ok || best.Kind != model.KindStaticLink || best.Target == "" || best.Target == pg.URL {
		return pg
	}
	next, err := e.load(ctx, best.Target, discovery.Options{ExplicitContact: true})
	if err != nil {
		r.log.Debug("engine: contact link unreachable", zap.String("link", best.Target), zap.Error(err))
		return pg
	}
	if len(next.Result.Candidates) == 0 {
		next.Result.Candidates = pg.Result.Candidates
	}
	next.Result.Emails = mergeEmails(next.Result.Emails, pg.Result.Emails)
	return next
}

// formFound reports whether the promoted candidate is a tier 1 form.
func formFound(cands []model.Candidate) bool {
	best, ok := model.Best(cands)
	return ok && best.Priority == model.TierStatic && best.Kind.IsForm()
}

func mergeEmails(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, e := range list {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

// finish stamps the failure reason for err onto a. Deadline and cancellation
// of the site context take precedence over whatever the pipeline reported.
func (e *Engine) finish(ctx context.Context, a *model.SubmissionAttempt, err error) {
	if err == nil {
		return
	}
	a.Outcome = model.OutcomeFailed
	a.Error = err.Error()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		a.Reason = model.ReasonTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		a.Reason = model.ReasonCancelled
	default:
		if reason, ok := model.ReasonOf(err); ok {
			a.Reason = reason
		} else {
			a.Reason = model.ReasonSubmissionStrategiesExhausted
		}
	}
	a.States = append(a.States, model.StateFailed)
}

// report hands the finished attempt to the metrics and the recorder. It
// outlives the site context so timeouts are still persisted.
func (e *Engine) report(ctx context.Context, a *model.SubmissionAttempt) {
	e.metrics.Observe(*a)
	if e.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.recorder.SaveAttempt(rctx, a); err != nil {
		zap.L().Warn("engine: record attempt failed", zap.String("site", a.SiteURL), zap.Error(err))
	}
}
