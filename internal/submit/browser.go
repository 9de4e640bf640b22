package submit

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/fields"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/verify"
)

// submitSelectors find the submit control inside a form, most specific first.
var submitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button:not([type])`,
	`input[type="image"]`,
	`[role="button"][class*="submit"]`,
}

// dialogSelectors locate an opened modal, most specific first.
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

// jsClickByText clicks the first control in scope whose text reads like a send button.
const jsClickByText = `((scope) => {
	const root = document.querySelector(scope);
	if (!root) return false;
	const re = /(send|submit|contact|enquire|inquire|get in touch|request|go)/i;
	const els = root.querySelectorAll('button, input[type="button"], a, [role="button"]');
	for (const el of els) {
		const text = (el.innerText || el.value || '').trim();
		if (text && re.test(text)) { el.click(); return true; }
	}
	return false;
})`

// jsRequestSubmit submits the form in scope without a visible control.
const jsRequestSubmit = `((scope) => {
	const root = document.querySelector(scope);
	if (!root) return false;
	const form = root.tagName === 'FORM' ? root : root.querySelector('form');
	if (!form) return false;
	if (typeof form.requestSubmit === 'function') { form.requestSubmit(); } else { form.submit(); }
	return true;
})`

// fill writes every mapped value into the form rooted at scope.
func fill(ctx context.Context, h browser.Handle, scope string, p *Plan) (int, error) {
	filled := 0
	for _, f := range p.Fields {
		if f.ElementType == model.ElementHidden {
			continue
		}
		v, ok := p.Values[f.Key()]
		if !ok || f.Selector() == "" {
			continue
		}
		if err := h.Fill(ctx, scope+" "+f.Selector(), v); err != nil {
			if f.Required {
				return filled, eris.Wrapf(err, "submit: fill %s", f.Key())
			}
			zap.L().Debug("submit: optional field not filled", zap.String("field", f.Key()), zap.Error(err))
			continue
		}
		filled++
	}
	if filled == 0 {
		return 0, eris.New("submit: no field could be filled")
	}
	return filled, nil
}

// clickSubmit presses the form's submit control, falling back to a text
// match and then to requestSubmit.
func clickSubmit(ctx context.Context, h browser.Handle, scope string) error {
	for _, sel := range submitSelectors {
		if err := h.Click(ctx, scope+" "+sel); err == nil {
			return nil
		}
	}
	var ok bool
	if err := h.Eval(ctx, browser.Call(jsClickByText, scope), &ok); err == nil && ok {
		return nil
	}
	if err := h.Eval(ctx, browser.Call(jsRequestSubmit, scope), &ok); err != nil {
		return eris.Wrap(err, "submit: requestSubmit")
	}
	if !ok {
		return eris.Errorf("submit: no form under %s", scope)
	}
	return nil
}

// ensurePage loads url unless the handle is already on it.
func ensurePage(ctx context.Context, h browser.Handle, url string) error {
	if url == "" {
		return nil
	}
	if loc, err := h.Location(ctx); err == nil && loc == url {
		return nil
	}
	return h.Navigate(ctx, url)
}

// BrowserFillClick fills the form in a live page and clicks its submit control.
type BrowserFillClick struct {
	Verifier *verify.Verifier
}

// Method implements Strategy.
func (BrowserFillClick) Method() model.Method { return model.MethodBrowserFillClick }

// Applicable implements Strategy.
func (BrowserFillClick) Applicable(p *Plan, h browser.Handle) bool {
	return h != nil && p.Target.Kind.IsForm() && p.Target.Selector != ""
}

// Execute implements Strategy.
func (s BrowserFillClick) Execute(ctx context.Context, p *Plan, h browser.Handle) (verify.Verdict, error) {
	if err := ensurePage(ctx, h, p.Target.PageURL); err != nil {
		return verify.Verdict{}, err
	}
	baseline, _ := h.HTML(ctx)
	before, _ := h.Location(ctx)

	filled, err := fill(ctx, h, p.Target.Selector, p)
	if err != nil {
		return verify.Verdict{}, err
	}
	if err := clickSubmit(ctx, h, p.Target.Selector); err != nil {
		return verify.Verdict{}, err
	}
	p.Sent = true
	return s.Verifier.Page(ctx, h, before, baseline, filled), nil
}

// Modal clicks an interactive trigger, waits for the dialog, then fills and
// submits the form inside it. A dialog whose form was not seen during
// discovery is mapped once it opens.
type Modal struct {
	Verifier *verify.Verifier
	Mapper   FieldMapper
	// Wait bounds how long the dialog may take to appear.
	Wait time.Duration
	Poll time.Duration
}

// Method implements Strategy.
func (Modal) Method() model.Method { return model.MethodModal }

// Applicable implements Strategy.
func (Modal) Applicable(p *Plan, h browser.Handle) bool {
	return h != nil && p.Target.Kind.IsInteractive() && p.Target.Selector != ""
}

// Execute implements Strategy.
func (s Modal) Execute(ctx context.Context, p *Plan, h browser.Handle) (verify.Verdict, error) {
	if err := ensurePage(ctx, h, p.Target.PageURL); err != nil {
		return verify.Verdict{}, err
	}
	before, _ := h.Location(ctx)
	if err := h.Click(ctx, p.Target.Selector); err != nil {
		return verify.Verdict{}, eris.Wrap(err, "submit: click trigger")
	}

	dialog, err := s.waitDialog(ctx, h)
	if err != nil {
		return verify.Verdict{}, err
	}
	baseline, _ := h.HTML(ctx)

	if len(p.Fields) == 0 {
		if err := s.mapDialog(ctx, p, baseline, dialog); err != nil {
			return verify.Verdict{}, err
		}
	}

	filled, err := fill(ctx, h, dialog, p)
	if err != nil {
		return verify.Verdict{}, err
	}
	if err := clickSubmit(ctx, h, dialog); err != nil {
		return verify.Verdict{}, err
	}
	p.Sent = true
	return s.Verifier.Page(ctx, h, before, baseline, filled), nil
}

// mapDialog extracts the fields of the form shown in dialog and maps them.
func (s Modal) mapDialog(ctx context.Context, p *Plan, html, dialog string) error {
	if s.Mapper == nil {
		return eris.New("submit: dialog form was not mapped")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return eris.Wrap(err, "submit: parse dialog")
	}
	root := doc.Find(dialog).First()
	if root.Length() == 0 {
		return eris.Errorf("submit: dialog %s not in page", dialog)
	}
	if form := root.Find("form").First(); form.Length() > 0 {
		root = form
	}
	p.Fields = fields.FromSelection(root)
	if len(p.Fields) == 0 {
		return eris.New("submit: dialog has no form fields")
	}
	zap.L().Debug("submit: mapped dialog form", zap.String("dialog", dialog), zap.Int("fields", len(p.Fields)))
	return s.Mapper.Map(ctx, p)
}

func (s Modal) waitDialog(ctx context.Context, h browser.Handle) (string, error) {
	wait, poll := s.Wait, s.Poll
	if wait <= 0 {
		wait = 5 * time.Second
	}
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	deadline := time.Now().Add(wait)
	for {
		for _, sel := range dialogSelectors {
			if ok, err := h.Visible(ctx, sel); err == nil && ok {
				return sel, nil
			}
		}
		if ok, err := h.Visible(ctx, "form"); err == nil && ok {
			return "body", nil
		}
		if time.Now().After(deadline) {
			return "", eris.New("submit: dialog never appeared")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(poll):
		}
	}
}
