package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/captcha"
	"github.com/sells-group/outreach-cli/internal/discovery"
	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/fetch"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/resolve"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/internal/submit"
	"github.com/sells-group/outreach-cli/internal/verify"
	anthropicpkg "github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/gemini"
	"github.com/sells-group/outreach-cli/pkg/jina"
)

// engineEnv holds the engine and everything it was built from, for the
// submit, batch and serve commands.
type engineEnv struct {
	Store    store.Store
	Engine   *engine.Engine
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry
	Breakers *resilience.Breakers

	cache cache.Cache
}

// Close releases the cache and store.
func (ee *engineEnv) Close() {
	if ee.cache != nil {
		_ = ee.cache.Close()
	}
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// initEngine validates config for mode, opens the store and builds the engine.
// Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &engineEnv{Store: st, Breakers: resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())}

	env.cache, err = cache.New(cfg.Cache)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Registry = prometheus.NewRegistry()
	env.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env.Metrics = monitoring.NewMetrics(env.Registry)

	httpFetcher := fetch.NewHTTPFetcher(fetch.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Retry:      resilience.FromConfig(cfg.Retry),
		PerHostRPS: cfg.RateLimit.PerHostRPS,
	})
	chain := fetch.NewChain(httpFetcher, fetch.ChainOptions{
		Ceiling:      time.Duration(cfg.Fetch.CeilingSecs) * time.Second,
		MinBodyBytes: cfg.Fetch.MinBodyBytes,
	})

	var sessions engine.SessionOpener
	if cfg.Browser.Enabled {
		launcher := browser.NewLauncher(browser.OptionsFromConfig(cfg.Browser, httpFetcher.UserAgent()))
		chain.WithBrowser(launcher)
		sessions = engine.FromLauncher(launcher)
	} else {
		zap.L().Info("browser disabled, running HTTP-only")
	}

	if cfg.Jina.Key != "" {
		chain.WithReader(fetch.NewReader(jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))))
	} else {
		zap.L().Debug("OUTREACH_JINA_KEY not set, reader fallback disabled")
	}

	var solver captcha.Solver = captcha.Disabled{}
	if cfg.Captcha.Enabled {
		solver = captcha.Chain{captcha.NewAutoPass(time.Duration(cfg.Captcha.AutoPassWaitSecs) * time.Second)}
	}

	sender := model.Sender(cfg.Sender)
	resolver, err := initResolver(ctx, sender, env.Breakers)
	if err != nil {
		env.Close()
		return nil, err
	}

	mapper := submit.Mapper{Sender: sender, Resolver: resolver}
	verifier := verify.New(millis(cfg.Verify.SettleMs))
	executor := submit.NewExecutor(cfg.Submit.StrategyTimeout(), submit.DefaultStrategies(submit.Options{
		Client:    httpFetcher,
		Verifier:  verifier,
		Finder:    discovery.NewEmailCrawler(httpFetcher.UserAgent()),
		Mapper:    mapper,
		ModalWait: millis(cfg.Browser.SettleMs),
	})...)

	env.Engine = engine.New(engine.Deps{
		Fetcher:     chain,
		Sessions:    sessions,
		Live:        discovery.NewLivePass(millis(cfg.Browser.SettleMs)),
		Detector:    captcha.Detector{},
		Solver:      solver,
		Mapper:      mapper,
		Executor:    executor,
		Cache:       env.cache,
		Limiter:     engine.NewHostLimiter(cfg.RateLimit.PerHostRPS, millis(cfg.RateLimit.JitterMs)),
		Recorder:    st,
		Metrics:     env.Metrics,
		SiteTimeout: cfg.Batch.SiteTimeout(),
		Concurrency: cfg.Batch.Concurrency,
	})

	zap.L().Info("engine ready",
		zap.String("mode", mode),
		zap.Bool("browser", env.Engine.BrowserEnabled()),
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("generator", cfg.Generator.Provider),
	)
	return env, nil
}

// initResolver builds the field resolver with the configured rules and, when
// a provider is set, a breaker-guarded generator.
func initResolver(ctx context.Context, sender model.Sender, breakers *resilience.Breakers) (*resolve.Resolver, error) {
	rules := resolve.DefaultRules()
	if cfg.Resolver.DictionaryPath != "" {
		loaded, err := resolve.LoadRules(cfg.Resolver.DictionaryPath)
		if err != nil {
			return nil, eris.Wrap(err, "load field dictionary")
		}
		rules = loaded
	}

	opts := []resolve.Option{
		resolve.WithRules(rules),
		resolve.WithSender(sender),
		resolve.WithMinConfidence(cfg.Resolver.MinConfidence),
	}

	var gen resolve.Generator
	switch cfg.Generator.Provider {
	case "anthropic":
		gen = anthropicpkg.NewGenerator(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Generator.MaxTokens)
	case "gemini":
		g, err := gemini.NewGenerator(ctx, cfg.Gemini.Key, cfg.Gemini.Model, int(cfg.Generator.MaxTokens))
		if err != nil {
			return nil, err
		}
		gen = g
	}
	if gen != nil {
		opts = append(opts, resolve.WithGenerator(resolve.Guarded(gen, breakers.For("generator:"+cfg.Generator.Provider))))
	}

	return resolve.New(opts...), nil
}
