package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/jina"
)

// Reader renders pages through the Jina Reader proxy in HTML mode. A circuit
// breaker skips the proxy after repeated failures.
type Reader struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewReader wraps a Jina client. Three consecutive failures open the circuit for a minute.
func NewReader(client jina.Client) *Reader {
	return &Reader{
		client: client,
		breaker: resilience.NewCircuitBreaker("jina", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			Cooldown:         time.Minute,
		}),
	}
}

// Render implements Renderer.
func (r *Reader) Render(ctx context.Context, url string) (string, string, error) {
	resp, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := r.client.Read(ctx, url, jina.WithFormat(jina.FormatHTML), jina.WithReadTimeout(20))
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.New("jina: response needs fallback")
		}
		return resp, nil
	})
	if err != nil {
		return "", "", err
	}

	final := resp.Data.URL
	if final == "" {
		final = url
	}
	return resp.Data.Body(), final, nil
}

// needsFallback reports whether a reader response is empty or a challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Body())
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range []string{
		"checking your browser",
		"enable javascript",
		"please enable cookies",
		"access denied",
		"403 forbidden",
		"just a moment",
		"attention required",
	} {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
