package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/model"
)

// dialogSelectors locate the container a trigger reveals.
var dialogSelectors = []string{
	`dialog[open]`,
	`[role="dialog"]`,
	`[aria-modal="true"]`,
	`.modal.show`,
	`.modal.in`,
	`.elementor-popup-modal`,
	`.mfp-content`,
	`.fancybox-content`,
	`.popup`,
	`.modal`,
}

// LivePass re-runs discovery against a rendered page and probes interactive
// triggers by clicking them.
type LivePass struct {
	// Settle is the wait after each click before the DOM is inspected.
	Settle time.Duration
	// MaxTriggers caps how many triggers are clicked per page.
	MaxTriggers int
}

// NewLivePass creates a LivePass with defaults.
func NewLivePass(settle time.Duration) LivePass {
	if settle <= 0 {
		settle = 750 * time.Millisecond
	}
	return LivePass{Settle: settle, MaxTriggers: 5}
}

// Run analyses the page currently loaded in h. Static results from the live
// DOM are returned as-is when they include a tier 1 candidate; otherwise
// each trigger is clicked and any revealed form is scored onto it.
func (p LivePass) Run(ctx context.Context, h browser.Handle, pageURL string, opts Options) ([]model.Candidate, error) {
	html, err := h.HTML(ctx)
	if err != nil {
		return nil, err
	}
	cands, err := Analyze(html, pageURL, opts)
	if err != nil {
		return nil, err
	}
	if best, ok := model.Best(cands); ok && best.Priority == model.TierStatic {
		return cands, nil
	}

	log := zap.L().With(zap.String("page", pageURL))
	var out []model.Candidate
	probed := 0
	for _, c := range cands {
		if !c.Kind.IsInteractive() || probed >= p.MaxTriggers || ctx.Err() != nil {
			out = append(out, c)
			continue
		}
		probed++

		revealed, ok := p.probe(ctx, h, c, pageURL, opts)
		if !ok {
			log.Debug("discovery: trigger revealed nothing", zap.String("selector", c.Selector))
			out = append(out, c)
			continue
		}
		c.Score += revealed.Score
		c.FormHTML = revealed.FormHTML
		c.Method = revealed.Method
		c.Target = revealed.Target
		out = append(out, c)
	}
	model.SortCandidates(out)
	return out, nil
}

// probe clicks a trigger and scores the first form inside whatever became visible.
func (p LivePass) probe(ctx context.Context, h browser.Handle, c model.Candidate, pageURL string, opts Options) (model.Candidate, bool) {
	if c.Selector == "" {
		return model.Candidate{}, false
	}
	if err := h.Click(ctx, c.Selector); err != nil {
		return model.Candidate{}, false
	}
	defer func() { _ = h.PressEscape(ctx) }()

	select {
	case <-ctx.Done():
		return model.Candidate{}, false
	case <-time.After(p.Settle):
	}

	html, err := h.HTML(ctx)
	if err != nil {
		return model.Candidate{}, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.Candidate{}, false
	}

	for _, sel := range dialogSelectors {
		visible, err := h.Visible(ctx, sel)
		if err != nil || !visible {
			continue
		}
		if f, ok := bestFormIn(doc.Find(sel), pageURL, opts); ok {
			return f, true
		}
	}
	// Inline reveals without a dialog wrapper.
	if visible, _ := h.Visible(ctx, "form"); visible {
		return bestFormIn(doc.Selection, pageURL, opts)
	}
	return model.Candidate{}, false
}

func bestFormIn(root *goquery.Selection, pageURL string, opts Options) (model.Candidate, bool) {
	html, err := goquery.OuterHtml(root)
	if err != nil || root.Find("form").Length() == 0 {
		return model.Candidate{}, false
	}
	cands, err := Analyze(html, pageURL, opts)
	if err != nil {
		return model.Candidate{}, false
	}
	var forms []model.Candidate
	for _, c := range cands {
		if c.Kind.IsForm() {
			forms = append(forms, c)
		}
	}
	// Revealed forms sit in containers that were hidden at load, so tier is ignored here.
	var best model.Candidate
	found := false
	for _, f := range forms {
		if !found || f.Score > best.Score {
			best, found = f, true
		}
	}
	return best, found
}
