package fetch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ChainOptions configures escalation.
type ChainOptions struct {
	// Ceiling bounds the whole escalation for one URL.
	Ceiling time.Duration
	// MinBodyBytes marks smaller bodies as insufficient.
	MinBodyBytes int
}

// Chain escalates a fetch: plain GET, URL variants, browser render, reader proxy.
// The first sufficient result wins.
type Chain struct {
	http    *HTTPFetcher
	browser Renderer
	reader  Renderer
	opts    ChainOptions

	variants func(string) []string
}

// NewChain creates a Chain over an HTTP fetcher. Browser and reader steps are optional.
func NewChain(h *HTTPFetcher, opts ChainOptions) *Chain {
	if opts.Ceiling <= 0 {
		opts.Ceiling = 60 * time.Second
	}
	if opts.MinBodyBytes <= 0 {
		opts.MinBodyBytes = 100
	}
	return &Chain{http: h, opts: opts, variants: Variants}
}

// WithBrowser enables the rendered-DOM step.
func (c *Chain) WithBrowser(r Renderer) *Chain {
	c.browser = r
	return c
}

// WithReader enables the reader-proxy step after the browser.
func (c *Chain) WithReader(r Renderer) *Chain {
	c.reader = r
	return c
}

// Fetch returns the first sufficient page for url or a *FetchError listing every attempt.
func (c *Chain) Fetch(ctx context.Context, url string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Ceiling)
	defer cancel()

	fe := &FetchError{URL: url}

	if res, ok := c.tryHTTP(ctx, url, MethodHTTP, fe); ok {
		return res, nil
	}
	for _, v := range c.variants(url) {
		if ctx.Err() != nil {
			break
		}
		if res, ok := c.tryHTTP(ctx, v, MethodHTTPVariant, fe); ok {
			return res, nil
		}
	}

	for _, step := range []struct {
		r Renderer
		m Method
	}{{c.browser, MethodBrowser}, {c.reader, MethodReader}} {
		if step.r == nil || ctx.Err() != nil {
			continue
		}
		if res, ok := c.tryRender(ctx, step.r, url, step.m, fe); ok {
			return res, nil
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		fe.add(url, "", "ceiling of "+c.opts.Ceiling.String()+" exceeded")
	}
	return nil, fe
}

func (c *Chain) tryHTTP(ctx context.Context, url string, m Method, fe *FetchError) (*Result, bool) {
	resp, err := c.http.Get(ctx, url)
	if err != nil {
		fe.add(url, m, err.Error())
		zap.L().Debug("fetch: http step failed", zap.String("url", url), zap.String("method", string(m)), zap.Error(err))
		return nil, false
	}
	if blocked, kind := DetectBlock(resp.StatusCode, resp.Header, resp.Body); blocked {
		fe.add(url, m, "blocked ("+string(kind)+")")
		return nil, false
	}
	if len(resp.Body) < c.opts.MinBodyBytes {
		fe.add(url, m, "insufficient body")
		return nil, false
	}
	return &Result{
		Success:    true,
		HTML:       string(resp.Body),
		FinalURL:   resp.FinalURL,
		Method:     m,
		StatusCode: resp.StatusCode,
	}, true
}

func (c *Chain) tryRender(ctx context.Context, r Renderer, url string, m Method, fe *FetchError) (*Result, bool) {
	html, final, err := r.Render(ctx, url)
	if err != nil {
		fe.add(url, m, err.Error())
		zap.L().Debug("fetch: render step failed", zap.String("url", url), zap.String("method", string(m)), zap.Error(err))
		return nil, false
	}
	if len(html) < c.opts.MinBodyBytes {
		fe.add(url, m, "insufficient body")
		return nil, false
	}
	if blocked, kind := DetectBlock(200, nil, []byte(html)); blocked && kind != BlockJSShell {
		fe.add(url, m, "blocked ("+string(kind)+")")
		return nil, false
	}
	return &Result{Success: true, HTML: html, FinalURL: final, Method: m, StatusCode: 200}, true
}
