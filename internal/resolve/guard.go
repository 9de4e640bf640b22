package resolve

import (
	"context"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

type guarded struct {
	gen Generator
	cb  *resilience.CircuitBreaker
}

// Guarded wraps g so that calls stop reaching the provider while cb is open.
// A rejected call is an ordinary generator error and the resolver falls
// through to the static tier.
func Guarded(g Generator, cb *resilience.CircuitBreaker) Generator {
	if g == nil || cb == nil {
		return g
	}
	return guarded{gen: g, cb: cb}
}

func (g guarded) Generate(ctx context.Context, prompt string) (string, error) {
	return resilience.ExecuteVal(ctx, g.cb, func(ctx context.Context) (string, error) {
		return g.gen.Generate(ctx, prompt)
	})
}
