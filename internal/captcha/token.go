package captcha

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
)

// TokenProvider obtains a response token from an external solving service.
type TokenProvider interface {
	Token(ctx context.Context, t Type, siteKey, pageURL string) (string, error)
}

// TokenSolver asks a provider for a token and injects it into the page.
// Without a browser the token is returned for the HTTP strategies to submit.
type TokenSolver struct {
	Provider TokenProvider
}

// Solve implements Solver.
func (s TokenSolver) Solve(ctx context.Context, d Detection, h browser.Handle) Solution {
	start := time.Now()
	sol := Solution{MethodUsed: "token", ResponseField: d.Type.ResponseField()}
	if s.Provider == nil || d.Type == TypeImage || d.SiteKey == "" {
		return sol
	}

	token, err := s.Provider.Token(ctx, d.Type, d.SiteKey, d.PageURL)
	if err != nil || token == "" {
		zap.L().Warn("captcha: token provider failed",
			zap.String("type", string(d.Type)),
			zap.String("page", d.PageURL),
			zap.Error(err),
		)
		sol.Elapsed = time.Since(start)
		return sol
	}

	sol.Token = token
	if h != nil {
		var injected bool
		if err := h.Eval(ctx, injectScript(token), &injected); err != nil || !injected {
			zap.L().Warn("captcha: token injection failed", zap.String("page", d.PageURL), zap.Error(err))
			sol.Elapsed = time.Since(start)
			return sol
		}
	}
	sol.Solved = true
	sol.Elapsed = time.Since(start)
	return sol
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// injectScript writes token into every known response field and fires the
// widget callback named by data-callback, if any.
func injectScript(token string) string {
	return `((token) => {
	const selectors = [
		'textarea[name="g-recaptcha-response"]',
		'textarea[id^="g-recaptcha-response"]',
		'textarea[name="h-captcha-response"]',
		'input[name="g-recaptcha-response"]',
		'input[name="h-captcha-response"]',
		'input[name="cf-turnstile-response"]'
	];
	let ok = false;
	for (const s of selectors) {
		document.querySelectorAll(s).forEach(el => {
			el.value = token;
			el.dispatchEvent(new Event('input', {bubbles: true}));
			el.dispatchEvent(new Event('change', {bubbles: true}));
			ok = true;
		});
	}
	const widget = document.querySelector('[data-callback]');
	if (widget) {
		const cb = window[widget.getAttribute('data-callback')];
		if (typeof cb === 'function') { try { cb(token); } catch (e) {} }
	}
	return ok;
})(` + jsString(token) + `)`
}
