// Package browsertest provides a scripted browser.Handle for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Fake is an in-memory browser.Handle. Pages maps URLs to markup; clicking a
// selector listed in Reveal swaps the current markup, the way a modal opens.
type Fake struct {
	mu sync.Mutex

	Pages map[string]string
	// Reveal maps a clicked selector to the markup shown afterwards.
	Reveal map[string]string
	// Redirect maps a clicked selector to the URL loaded afterwards.
	Redirect map[string]string
	// VisibleSet lists selectors reported visible.
	VisibleSet map[string]bool
	// EvalFunc answers Eval calls. Its result is JSON-copied into res.
	EvalFunc func(script string) (any, error)
	// ClickErr fails clicks on the given selectors.
	ClickErr map[string]error

	url  string
	html string

	Navigated []string
	Clicks    []string
	Filled    map[string]string
	Evals     []string
	Escapes   int
}

// New creates a Fake serving pages.
func New(pages map[string]string) *Fake {
	return &Fake{
		Pages:      pages,
		Reveal:     map[string]string{},
		Redirect:   map[string]string{},
		VisibleSet: map[string]bool{},
		ClickErr:   map[string]error{},
		Filled:     map[string]string{},
	}
}

// Navigate implements browser.Handle.
func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	html, ok := f.Pages[url]
	if !ok {
		return eris.Errorf("browsertest: no page for %s", url)
	}
	f.url = url
	f.html = html
	f.Navigated = append(f.Navigated, url)
	return nil
}

// HTML implements browser.Handle.
func (f *Fake) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html, nil
}

// Location implements browser.Handle.
func (f *Fake) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

// Eval implements browser.Handle.
func (f *Fake) Eval(_ context.Context, script string, res any) error {
	f.mu.Lock()
	f.Evals = append(f.Evals, script)
	fn := f.EvalFunc
	f.mu.Unlock()

	if fn == nil {
		return nil
	}
	v, err := fn(script)
	if err != nil || res == nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "browsertest: marshal eval result")
	}
	return json.Unmarshal(b, res)
}

// Click implements browser.Handle.
func (f *Fake) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ClickErr[selector]; err != nil {
		return err
	}
	f.Clicks = append(f.Clicks, selector)
	if html, ok := f.Reveal[selector]; ok {
		f.html = html
	}
	if to, ok := f.Redirect[selector]; ok {
		f.url = to
		if html, ok := f.Pages[to]; ok {
			f.html = html
		}
	}
	return nil
}

// Fill implements browser.Handle.
func (f *Fake) Fill(_ context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Filled[selector] = value
	return nil
}

// Visible implements browser.Handle.
func (f *Fake) Visible(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.VisibleSet[selector], nil
}

// PressEscape implements browser.Handle.
func (f *Fake) PressEscape(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Escapes++
	return nil
}

// Clicked reports whether selector was clicked.
func (f *Fake) Clicked(selector string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Clicks {
		if c == selector {
			return true
		}
	}
	return false
}

// EvalContains reports whether any evaluated script contained sub.
func (f *Fake) EvalContains(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Evals {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
