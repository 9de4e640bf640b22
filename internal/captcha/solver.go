package captcha

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
)

// Solution is the outcome of a solve attempt.
type Solution struct {
	Solved     bool
	MethodUsed string
	Elapsed    time.Duration
	// Token is the response token, when one was obtained. HTTP strategies
	// submit it under ResponseField.
	Token         string
	ResponseField string
}

// Solver clears a detected challenge. h is nil in HTTP-only mode.
type Solver interface {
	Solve(ctx context.Context, d Detection, h browser.Handle) Solution
}

// Disabled never solves anything.
type Disabled struct{}

// Solve implements Solver.
func (Disabled) Solve(context.Context, Detection, browser.Handle) Solution {
	return Solution{MethodUsed: "disabled"}
}

// Chain tries solvers in order and returns the first solved result.
type Chain []Solver

// Solve implements Solver.
func (c Chain) Solve(ctx context.Context, d Detection, h browser.Handle) Solution {
	start := time.Now()
	last := Solution{MethodUsed: "none"}
	for _, s := range c {
		if ctx.Err() != nil {
			break
		}
		sol := s.Solve(ctx, d, h)
		if sol.Solved {
			sol.Elapsed = time.Since(start)
			return sol
		}
		last = sol
		zap.L().Debug("captcha: solver did not clear challenge",
			zap.String("type", string(d.Type)),
			zap.String("solver", sol.MethodUsed),
		)
	}
	last.Elapsed = time.Since(start)
	return last
}

// readToken returns the current value of the widget's response field.
func readToken(ctx context.Context, h browser.Handle, t Type) string {
	field := t.ResponseField()
	if field == "" {
		return ""
	}
	var token string
	script := `(() => { const el = document.querySelector('[name="` + field + `"]'); return el ? (el.value || '') : ''; })()`
	if err := h.Eval(ctx, script, &token); err != nil {
		return ""
	}
	return token
}
