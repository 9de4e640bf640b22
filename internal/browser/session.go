package browser

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Session is one browser process with its own profile directory.
type Session struct {
	ctx        context.Context
	cancel     func()
	profileDir string
	settle     time.Duration

	once sync.Once
}

var _ Handle = (*Session)(nil)

// ProfileDir returns the session's profile directory.
func (s *Session) ProfileDir() string { return s.profileDir }

// Release closes the browser and deletes the profile directory. Safe to call more than once.
func (s *Session) Release() {
	s.once.Do(func() {
		s.cancel()
		if err := os.RemoveAll(s.profileDir); err != nil {
			zap.L().Warn("browser: remove profile dir", zap.String("dir", s.profileDir), zap.Error(err))
		}
	})
}

// run executes actions on the session's tab, bounded by the caller's ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the settle delay.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.settle),
	)
	if err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	return nil
}

// HTML returns the current document's outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "browser: outer html")
	}
	return html, nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", eris.Wrap(err, "browser: location")
	}
	return loc, nil
}

// Eval runs a script and decodes its result into res (nil discards it).
func (s *Session) Eval(ctx context.Context, script string, res any) error {
	if err := s.run(ctx, chromedp.Evaluate(script, res)); err != nil {
		return eris.Wrap(err, "browser: evaluate")
	}
	return nil
}

// Click clicks the first element matching selector, falling back to a
// scripted click for elements that are present but not interactable.
func (s *Session) Click(ctx context.Context, selector string) error {
	clickCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := s.run(clickCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	cancel()
	if err == nil {
		return nil
	}

	var clicked bool
	if jsErr := s.Eval(ctx, Call(jsClick, selector), &clicked); jsErr != nil {
		return eris.Wrapf(jsErr, "browser: click %s", selector)
	}
	if !clicked {
		return eris.Errorf("browser: click %s: element not found", selector)
	}
	return nil
}

// Fill sets a control's value and dispatches input and change events.
// Radios pick the option whose value matches; checkboxes are ticked for any non-empty value.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	var ok bool
	if err := s.Eval(ctx, Call(jsFill, selector, value), &ok); err != nil {
		return eris.Wrapf(err, "browser: fill %s", selector)
	}
	if !ok {
		return eris.Errorf("browser: fill %s: element not found", selector)
	}
	return nil
}

// Visible reports whether any element matching selector is rendered and visible.
func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	if err := s.Eval(ctx, Call(jsVisible, selector), &visible); err != nil {
		return false, eris.Wrapf(err, "browser: visible %s", selector)
	}
	return visible, nil
}

// PressEscape sends an Escape key to the page.
func (s *Session) PressEscape(ctx context.Context) error {
	if err := s.run(ctx, chromedp.KeyEvent(kb.Escape)); err != nil {
		return eris.Wrap(err, "browser: escape")
	}
	return nil
}

// Call renders an IIFE invocation of fn with JSON-encoded args.
func Call(fn string, args ...string) string {
	encoded := make([]byte, 0, 64)
	for i, a := range args {
		if i > 0 {
			encoded = append(encoded, ',')
		}
		b, _ := json.Marshal(a)
		encoded = append(encoded, b...)
	}
	return "(" + fn + ")(" + string(encoded) + ")"
}

const jsClick = `function(sel) {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.click();
	return true;
}`

const jsFill = `function(sel, val) {
	const els = Array.from(document.querySelectorAll(sel));
	if (els.length === 0) return false;
	let el = els[0];
	const type = (el.getAttribute('type') || '').toLowerCase();
	if (type === 'radio') {
		el = els.find(e => e.value === val) || els[0];
		el.checked = true;
	} else if (type === 'checkbox') {
		el.checked = val !== '';
	} else if (el.tagName === 'SELECT') {
		const opt = Array.from(el.options).find(o => o.value === val || o.text.trim() === val);
		if (opt) el.value = opt.value;
	} else {
		const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
		setter.call(el, val);
	}
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

const jsVisible = `function(sel) {
	return Array.from(document.querySelectorAll(sel)).some(el => {
		const st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden' || parseFloat(st.opacity) === 0) return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	});
}`
