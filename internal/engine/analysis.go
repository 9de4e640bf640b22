package engine

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/discovery"
	"github.com/sells-group/outreach-cli/internal/fetch"
	"github.com/sells-group/outreach-cli/internal/model"
)

// page is a fetched page together with its static analysis.
type page struct {
	URL    string
	HTML   string
	Method fetch.Method
	Result discovery.Result
}

// cachedCandidate keeps the form markup that Candidate leaves out of its JSON.
type cachedCandidate struct {
	model.Candidate
	FormHTML string `json:"form_html,omitempty"`
	Order    int    `json:"order"`
}

type cachedPage struct {
	URL        string            `json:"url"`
	HTML       string            `json:"html"`
	Method     fetch.Method      `json:"method"`
	Candidates []cachedCandidate `json:"candidates"`
	Emails     []string          `json:"emails,omitempty"`
}

func encodePage(p *page) ([]byte, error) {
	c := cachedPage{URL: p.URL, HTML: p.HTML, Method: p.Method, Emails: p.Result.Emails}
	for _, cand := range p.Result.Candidates {
		c.Candidates = append(c.Candidates, cachedCandidate{Candidate: cand, FormHTML: cand.FormHTML, Order: cand.Order})
	}
	return json.Marshal(c)
}

func decodePage(data []byte) (*page, error) {
	var c cachedPage
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	p := &page{URL: c.URL, HTML: c.HTML, Method: c.Method}
	p.Result = discovery.Result{PageURL: c.URL, Emails: c.Emails}
	for _, cc := range c.Candidates {
		cand := cc.Candidate
		cand.FormHTML = cc.FormHTML
		cand.Order = cc.Order
		p.Result.Candidates = append(p.Result.Candidates, cand)
	}
	return p, nil
}

func cacheKey(url string, explicit bool) string {
	if explicit {
		return "explicit:" + url
	}
	return "page:" + url
}

// load fetches and analyses url, consulting the analysis cache first.
func (e *Engine) load(ctx context.Context, url string, opts discovery.Options) (*page, error) {
	key := cacheKey(url, opts.ExplicitContact)
	if data, ok, err := e.cache.Get(ctx, key); err != nil {
		zap.L().Warn("engine: cache get failed", zap.String("url", url), zap.Error(err))
	} else if ok {
		if p, err := decodePage(data); err == nil {
			zap.L().Debug("engine: analysis cache hit", zap.String("url", url))
			return p, nil
		}
	}

	if err := e.limiter.Wait(ctx, fetch.Host(url)); err != nil {
		return nil, err
	}
	res, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	final := res.FinalURL
	if final == "" {
		final = url
	}
	result, err := discovery.Page(res.HTML, final, opts)
	if err != nil {
		return nil, err
	}
	p := &page{URL: final, HTML: res.HTML, Method: res.Method, Result: result}

	if data, err := encodePage(p); err == nil {
		if err := e.cache.Set(ctx, key, data); err != nil {
			zap.L().Warn("engine: cache set failed", zap.String("url", url), zap.Error(err))
		}
	}
	return p, nil
}
