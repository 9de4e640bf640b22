// Package engine runs the per-site discover, map, clear, submit and verify
// pipeline and fans it out over a batch of sites.
package engine

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/captcha"
	"github.com/sells-group/outreach-cli/internal/discovery"
	"github.com/sells-group/outreach-cli/internal/fetch"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/submit"
)

// SessionOpener starts an isolated browser session and returns it with its
// release func. A nil SessionOpener means HTTP-only mode.
type SessionOpener func(ctx context.Context) (browser.Handle, func(), error)

// FromLauncher adapts a browser launcher to a SessionOpener.
func FromLauncher(l *browser.Launcher) SessionOpener {
	return func(ctx context.Context) (browser.Handle, func(), error) {
		s, err := l.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Release, nil
	}
}

// CaptchaDetector finds challenges in page markup. captcha.Detector implements it.
type CaptchaDetector interface {
	Detect(html, pageURL string) captcha.Detection
}

// Recorder persists finished attempts. store.Store implements it.
type Recorder interface {
	SaveAttempt(ctx context.Context, a *model.SubmissionAttempt) error
}

// Deps are the collaborators an Engine runs with. Fetcher, Mapper and Executor
// are required; everything else has a usable zero value.
type Deps struct {
	Fetcher  fetch.Fetcher
	Sessions SessionOpener
	Live     discovery.LivePass
	Detector CaptchaDetector
	Solver   captcha.Solver
	Mapper   submit.Mapper
	Executor *submit.Executor
	Cache    cache.Cache
	Limiter  *HostLimiter
	Recorder Recorder
	Metrics  *monitoring.Metrics

	// SiteTimeout bounds one site's whole pipeline.
	SiteTimeout time.Duration
	// Concurrency is the default batch width.
	Concurrency int
}

// Engine submits messages to sites.
type Engine struct {
	fetcher     fetch.Fetcher
	sessions    SessionOpener
	live        discovery.LivePass
	detector    CaptchaDetector
	solver      captcha.Solver
	mapper      submit.Mapper
	executor    *submit.Executor
	cache       cache.Cache
	limiter     *HostLimiter
	recorder    Recorder
	metrics     *monitoring.Metrics
	siteTimeout time.Duration
	concurrency int

	now func() time.Time
}

// New creates an Engine from its dependencies.
func New(d Deps) *Engine {
	e := &Engine{
		fetcher:     d.Fetcher,
		sessions:    d.Sessions,
		live:        d.Live,
		detector:    d.Detector,
		solver:      d.Solver,
		mapper:      d.Mapper,
		executor:    d.Executor,
		cache:       d.Cache,
		limiter:     d.Limiter,
		recorder:    d.Recorder,
		metrics:     d.Metrics,
		siteTimeout: d.SiteTimeout,
		concurrency: d.Concurrency,
		now:         time.Now,
	}
	if e.detector == nil {
		e.detector = captcha.Detector{}
	}
	if e.solver == nil {
		e.solver = captcha.Disabled{}
	}
	if e.cache == nil {
		e.cache = cache.Nop{}
	}
	if e.live.Settle <= 0 {
		e.live = discovery.NewLivePass(0)
	}
	if e.siteTimeout <= 0 {
		e.siteTimeout = 3 * time.Minute
	}
	if e.concurrency <= 0 {
		e.concurrency = 10
	}
	return e
}

// BrowserEnabled reports whether strategies get a live page.
func (e *Engine) BrowserEnabled() bool { return e.sessions != nil }
