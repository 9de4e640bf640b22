// Package resolve supplies values for required fields the classifier could not name.
package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/structured"
)

// Tier is the resolution source.
type Tier string

const (
	TierPattern    Tier = "pattern"
	TierGenerative Tier = "generative"
	TierStatic     Tier = "static"
)

// Confidence per tier.
const (
	ConfidencePattern    = 0.9
	ConfidenceGenerative = 0.6
	ConfidenceStatic     = 0.3
)

// StaticFallback is the free-text answer of last resort.
const StaticFallback = "Not specified"

// Generator produces a short text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Resolution is a value chosen for a field.
type Resolution struct {
	Value      string
	Confidence float64
	Tier       Tier
}

// Resolver walks the dictionary, generator and static tiers in order.
type Resolver struct {
	rules         []Rule
	gen           Generator
	minConfidence float64
	sender        model.Sender
	now           func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRules replaces the dictionary.
func WithRules(rules []Rule) Option {
	return func(r *Resolver) { r.rules = rules }
}

// WithGenerator enables the generative tier.
func WithGenerator(g Generator) Option {
	return func(r *Resolver) { r.gen = g }
}

// WithMinConfidence rejects resolutions below c.
func WithMinConfidence(c float64) Option {
	return func(r *Resolver) { r.minConfidence = c }
}

// WithSender lets the dictionary answer identity-adjacent fields such as website.
func WithSender(s model.Sender) Option {
	return func(r *Resolver) { r.sender = s }
}

// New creates a Resolver with the built-in dictionary.
func New(opts ...Option) *Resolver {
	r := &Resolver{rules: DefaultRules(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve picks a value for f. ok is false when the best available value is
// below the configured minimum confidence.
func (r *Resolver) Resolve(ctx context.Context, f model.FormField, businessContext string) (Resolution, bool) {
	res := r.resolve(ctx, f, businessContext)
	if res.Confidence < r.minConfidence {
		zap.L().Debug("resolve: below minimum confidence",
			zap.String("field", f.Key()),
			zap.String("tier", string(res.Tier)),
			zap.Float64("confidence", res.Confidence),
			zap.Float64("min", r.minConfidence),
		)
		return res, false
	}
	return res, true
}

func (r *Resolver) resolve(ctx context.Context, f model.FormField, businessContext string) Resolution {
	if rule, ok := match(r.rules, f); ok {
		if v, ok := dictionaryValue(rule, f, r.sender, r.now()); ok {
			return Resolution{Value: v, Confidence: ConfidencePattern, Tier: TierPattern}
		}
	}

	if r.gen != nil && f.ElementType != model.ElementCheckbox {
		if v, ok := r.generate(ctx, f, businessContext); ok {
			return Resolution{Value: v, Confidence: ConfidenceGenerative, Tier: TierGenerative}
		}
	}

	return Resolution{Value: staticValue(f), Confidence: ConfidenceStatic, Tier: TierStatic}
}

const maxGeneratedRunes = 200

// generate asks the generator for a value. Any failure means no value.
func (r *Resolver) generate(ctx context.Context, f model.FormField, businessContext string) (string, bool) {
	raw, err := r.gen.Generate(ctx, Prompt(f, businessContext))
	if err != nil {
		zap.L().Debug("resolve: generator failed", zap.String("field", f.Key()), zap.Error(err))
		return "", false
	}

	data, _, method := structured.Parse(raw)
	if method == structured.MethodNone {
		return "", false
	}
	v, ok := structured.String(data, "value")
	if !ok && len(data) == 1 {
		for k := range data {
			v, ok = structured.String(data, k)
		}
	}
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}

	if f.ElementType.HasOptions() {
		return matchOption(f, v)
	}
	if runes := []rune(v); len(runes) > maxGeneratedRunes {
		v = string(runes[:maxGeneratedRunes])
	}
	return v, true
}

// matchOption maps a generated answer onto one of f's options.
func matchOption(f model.FormField, v string) (string, bool) {
	for i, o := range f.Options {
		if o == "" {
			continue
		}
		if strings.EqualFold(o, v) || (i < len(f.OptionLabels) && strings.EqualFold(f.OptionLabels[i], v)) {
			return o, true
		}
	}
	return "", false
}

func staticValue(f model.FormField) string {
	switch {
	case f.ElementType == model.ElementCheckbox:
		return checkedValue(f)
	case f.ElementType.HasOptions():
		if opts := f.NonEmptyOptions(); len(opts) > 0 {
			return opts[0]
		}
		for _, o := range f.Options {
			if o != "" {
				return o
			}
		}
	}
	return StaticFallback
}

// Prompt builds the generator prompt for a field.
func Prompt(f model.FormField, businessContext string) string {
	var b strings.Builder
	b.WriteString("You are filling in a website contact form on behalf of a business owner.\n")
	b.WriteString("Give a short, plausible value for the required field below.\n\n")
	fmt.Fprintf(&b, "Field name: %s\n", f.Key())
	fmt.Fprintf(&b, "Field type: %s\n", f.ElementType)
	if f.Label != "" {
		fmt.Fprintf(&b, "Label: %s\n", f.Label)
	}
	if f.RawPlaceholder != "" {
		fmt.Fprintf(&b, "Placeholder: %s\n", f.RawPlaceholder)
	}
	if opts := f.NonEmptyOptions(); len(opts) > 0 {
		fmt.Fprintf(&b, "Options (answer with one exactly): %s\n", strings.Join(opts, " | "))
	}
	if businessContext != "" {
		fmt.Fprintf(&b, "\nBusiness context:\n%s\n", businessContext)
	}
	b.WriteString("\nRespond with JSON only: {\"value\": \"...\"}")
	return b.String()
}
