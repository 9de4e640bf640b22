package submit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/verify"
)

// Strategy is one way of delivering a plan.
type Strategy interface {
	Method() model.Method
	// Applicable reports whether the strategy can run. h is nil in HTTP-only mode.
	Applicable(p *Plan, h browser.Handle) bool
	Execute(ctx context.Context, p *Plan, h browser.Handle) (verify.Verdict, error)
}

// Result is the outcome of running the strategies.
type Result struct {
	Method  model.Method
	Verdict verify.Verdict
	// Tried lists the strategies that ran, in order.
	Tried []model.Method
}

// Executor runs strategies in order until one produces a non-failed verdict.
type Executor struct {
	strategies []Strategy
	timeout    time.Duration
}

// NewExecutor creates an Executor. Each strategy gets at most timeout.
func NewExecutor(timeout time.Duration, strategies ...Strategy) *Executor {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Executor{strategies: strategies, timeout: timeout}
}

// Strategies returns the configured strategy order.
func (e *Executor) Strategies() []model.Method {
	out := make([]model.Method, len(e.strategies))
	for i, s := range e.strategies {
		out[i] = s.Method()
	}
	return out
}

// Run tries each applicable strategy once. Success and indeterminate
// verdicts stop the run; failures and errors accumulate into a
// SubmissionStrategiesExhausted error.
func (e *Executor) Run(ctx context.Context, p *Plan, h browser.Handle) (Result, error) {
	log := zap.L().With(zap.String("site", p.Site.URL), zap.String("target", p.Target.Target))

	var res Result
	var failures []string
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "submit: cancelled")
		}
		if !s.Applicable(p, h) {
			continue
		}
		res.Tried = append(res.Tried, s.Method())

		sctx, cancel := context.WithTimeout(ctx, e.timeout)
		verdict, err := s.Execute(sctx, p, h)
		timedOut := errors.Is(sctx.Err(), context.DeadlineExceeded)
		cancel()

		switch {
		case err != nil:
			if timedOut && ctx.Err() == nil {
				err = eris.Wrapf(err, "timed out after %s", e.timeout)
			}
			log.Info("submit: strategy errored", zap.String("method", string(s.Method())), zap.Error(err))
			failures = append(failures, string(s.Method())+": "+err.Error())
			if ctx.Err() != nil {
				return res, eris.Wrap(ctx.Err(), "submit: cancelled")
			}
			continue
		case verdict.Outcome == model.OutcomeFailed:
			log.Info("submit: strategy rejected", zap.String("method", string(s.Method())), zap.String("evidence", verdict.Evidence))
			failures = append(failures, string(s.Method())+": "+verdict.Evidence)
			res.Method, res.Verdict = s.Method(), verdict
			continue
		}

		res.Method, res.Verdict = s.Method(), verdict
		log.Info("submit: strategy finished",
			zap.String("method", string(s.Method())),
			zap.String("outcome", string(verdict.Outcome)),
		)
		return res, nil
	}

	if len(res.Tried) == 0 {
		failures = append(failures, "no applicable strategy")
	}
	return res, model.Failf(model.ReasonSubmissionStrategiesExhausted, "submit: %s", strings.Join(failures, "; "))
}

// Options wires the default strategies.
type Options struct {
	Client   Sender
	Verifier *verify.Verifier
	Finder   EmailFinder
	// Mapper maps forms that only appear once a modal is opened.
	Mapper    FieldMapper
	ModalWait time.Duration
}

// DefaultStrategies returns browser fill, form post, AJAX post, modal and
// alternative channel, in that order.
func DefaultStrategies(o Options) []Strategy {
	return []Strategy{
		BrowserFillClick{Verifier: o.Verifier},
		FormPost{Client: o.Client, Verifier: o.Verifier},
		AjaxPost{Client: o.Client, Verifier: o.Verifier},
		Modal{Verifier: o.Verifier, Mapper: o.Mapper, Wait: o.ModalWait},
		AlternativeChannel{Finder: o.Finder},
	}
}
