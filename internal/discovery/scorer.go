// Package discovery finds and ranks contact entry points on a page.
package discovery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/textnorm"
)

// Options adjusts scoring for a single page.
type Options struct {
	// ExplicitContact relaxes the About-page exclusion for caller-supplied contact URLs.
	ExplicitContact bool
}

// minTriggerScore drops elements that only brush against a generic keyword in an attribute.
const minTriggerScore = 5

// candidateSelector matches every element the scorer considers, in document order.
const candidateSelector = "form, a, button, [role=button], [onclick], [data-toggle], [data-bs-toggle], [data-modal], [data-popup], [aria-haspopup], div, span, li"

// Analyze runs the static pass over html and returns candidates sorted best first.
func Analyze(html, pageURL string, opts Options) ([]model.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "discovery: parse html")
	}
	return AnalyzeDocument(doc, pageURL, opts), nil
}

// AnalyzeDocument runs the static pass over a parsed document.
func AnalyzeDocument(doc *goquery.Document, pageURL string, opts Options) []model.Candidate {
	base, _ := url.Parse(pageURL)
	a := &analyzer{base: base, opts: opts, byTarget: map[string]int{}}

	doc.Find(candidateSelector).Each(func(i int, s *goquery.Selection) {
		a.order = i
		a.visit(s)
	})

	model.SortCandidates(a.out)
	return a.out
}

type analyzer struct {
	base  *url.URL
	opts  Options
	order int
	out   []model.Candidate
	// byTarget dedupes static links; the highest score wins.
	byTarget map[string]int
}

func (a *analyzer) visit(s *goquery.Selection) {
	node := goquery.NodeName(s)
	if node == "form" {
		if c, ok := a.scoreForm(s); ok {
			a.out = append(a.out, c)
		}
		return
	}
	// Controls inside a form submit it; they are not entry points.
	if s.Closest("form").Length() > 0 {
		return
	}

	switch node {
	case "a":
		a.visitAnchor(s)
	case "button":
		a.visitTrigger(s, model.KindPopupButton)
	default:
		a.visitTrigger(s, model.KindPopupElement)
	}
}

func (a *analyzer) excluded(t textnorm.Text) bool {
	if t.HasAny(neverTerms...) {
		return true
	}
	return !a.opts.ExplicitContact && t.HasAny(aboutTerms...) && !t.Has("contact")
}

func (a *analyzer) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if a.base == nil {
		return ref
	}
	u, err := a.base.Parse(ref)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func (a *analyzer) visitAnchor(s *goquery.Selection) {
	href := strings.TrimSpace(s.AttrOr("href", ""))
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return
	}
	if !realAction(href) || hasModalAttr(s) || s.AttrOr("onclick", "") != "" {
		a.visitTrigger(s, model.KindModalTrigger)
		return
	}

	target := a.resolve(href)
	if target == "" || isWidgetURL(target) {
		return
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}

	text := textnorm.NewText(s.Text(), s.AttrOr("title", ""), s.AttrOr("aria-label", ""))
	attrs := textnorm.NewText(s.AttrOr("class", ""), s.AttrOr("id", ""))
	path := textnorm.NewText(u.Path)
	if a.excluded(textnorm.NewText(text.String(), path.String())) {
		return
	}

	score := 0
	if w, ok := bestBand(path); ok {
		score += w.href
	}
	if w, ok := bestBand(text); ok {
		score += w.text
	}
	if w, ok := bestBand(attrs); ok {
		score += w.attr
	}
	if score < minTriggerScore {
		return
	}

	c := model.Candidate{
		Kind:      model.KindStaticLink,
		Target:    target,
		LabelText: clip(s.Text()),
		Score:     score,
		Priority:  model.TierStatic,
		Selector:  cssPath(s),
		PageURL:   a.pageURL(),
		Order:     a.order,
	}
	if i, ok := a.byTarget[target]; ok {
		if a.out[i].Score < score {
			c.Order = a.out[i].Order
			a.out[i] = c
		}
		return
	}
	a.byTarget[target] = len(a.out)
	a.out = append(a.out, c)
}

// visitTrigger scores an element that has to be clicked in a live page.
func (a *analyzer) visitTrigger(s *goquery.Selection, kind model.CandidateKind) {
	node := goquery.NodeName(s)
	onclick := s.AttrOr("onclick", "")
	modal := hasModalAttr(s)

	switch {
	case modal:
		kind = model.KindModalTrigger
	case onclick != "":
		if !containsAny(onclick, onclickKeywords) {
			return
		}
		kind = model.KindOnclickTrigger
	case node == "div" || node == "span" || node == "li":
		// Plain containers only count when they look clickable and hold no links.
		if s.Find("a, button, form").Length() > 0 || s.ParentsFiltered("a, button").Length() > 0 || !looksClickable(s) {
			return
		}
	}

	ownText := strings.TrimSpace(s.Text())
	if len(ownText) > 80 {
		return
	}
	text := textnorm.NewText(ownText, s.AttrOr("title", ""), s.AttrOr("aria-label", ""))
	attrs := textnorm.NewText(s.AttrOr("class", ""), s.AttrOr("id", ""), modalTarget(s))
	if a.excluded(text) {
		return
	}

	score := 0
	if w, ok := bestBand(text); ok {
		score += w.text
	}
	if w, ok := bestBand(attrs); ok {
		score += w.attr
	}
	if kind == model.KindOnclickTrigger && containsAny(onclick, []string{"contact", "enquir", "inquir"}) {
		score += strong.attr
	}
	if score < minTriggerScore {
		return
	}

	a.out = append(a.out, model.Candidate{
		Kind:      kind,
		LabelText: clip(ownText),
		Score:     score,
		Priority:  model.TierInteractive,
		Selector:  cssPath(s),
		PageURL:   a.pageURL(),
		Order:     a.order,
	})
}

// scoreForm ranks a form. Search, newsletter, login and comment forms are dropped.
func (a *analyzer) scoreForm(s *goquery.Selection) (model.Candidate, bool) {
	action := strings.TrimSpace(s.AttrOr("action", ""))
	ident := strings.ToLower(strings.Join([]string{s.AttrOr("id", ""), s.AttrOr("class", ""), s.AttrOr("name", ""), action}, " "))

	if excludedForm(s, ident) {
		return model.Candidate{}, false
	}
	target := a.pageURL()
	if realAction(action) {
		target = a.resolve(action)
		if isWidgetURL(target) {
			return model.Candidate{}, false
		}
	}

	textareas := s.Find("textarea").Length()
	emails := s.Find(`input[type=email], input[name*=mail], input[id*=mail]`).Length()
	inputs := s.Find("input:not([type=hidden]):not([type=submit]):not([type=button]), textarea, select").Length()
	if inputs == 0 {
		return model.Candidate{}, false
	}

	score := 0
	if textareas > 0 {
		score += 4
	}
	if emails > 0 {
		score += 3
	}
	if containsAny(ident, builderMarkers) {
		score += builderBonus
	}
	if w, ok := bestBand(textnorm.NewText(action)); ok {
		score += w.href
	}
	contactIdent := false
	if w, ok := bestBand(textnorm.NewText(s.AttrOr("id", ""), s.AttrOr("class", ""), s.AttrOr("name", ""))); ok {
		score += w.attr
		contactIdent = w == strong
	}
	if w, ok := bestBand(textnorm.NewText(formHeading(s), submitText(s))); ok {
		score += w.text
	}

	contactAction := realAction(action) && containsAny(action, contactActionTokens)
	// A form with neither a message box nor an email input is only kept when
	// its action, id, class or markers say otherwise.
	if textareas == 0 && emails == 0 && !contactAction && !contactIdent && !containsAny(ident, builderMarkers) {
		return model.Candidate{}, false
	}

	html, _ := goquery.OuterHtml(s)
	c := model.Candidate{
		Kind:      model.KindVisibleForm,
		Target:    target,
		LabelText: clip(formHeading(s)),
		Score:     score,
		Priority:  model.TierStatic,
		Selector:  cssPath(s),
		Method:    formMethod(s),
		FormHTML:  html,
		PageURL:   a.pageURL(),
		Order:     a.order,
	}
	if hiddenElement(s) {
		c.Kind = model.KindHiddenForm
		// Without a real action the form needs its trigger to be usable.
		if !realAction(action) {
			c.Priority = model.TierInteractive
		} else if !contactAction && score < 7 {
			return model.Candidate{}, false
		}
	}
	return c, true
}

func (a *analyzer) pageURL() string {
	if a.base == nil {
		return ""
	}
	return a.base.String()
}

func excludedForm(s *goquery.Selection, ident string) bool {
	if s.AttrOr("role", "") == "search" || s.Find("input[type=search]").Length() > 0 {
		return true
	}
	if s.Find("input[type=password]").Length() > 0 || containsAny(ident, loginMarkers) {
		return true
	}
	if containsAny(ident, commentMarkers) {
		return true
	}
	hasMessage := s.Find("textarea").Length() > 0
	if !hasMessage && containsAny(ident, newsletterMarkers) {
		return true
	}
	if !hasMessage && containsAny(ident, searchMarkers) {
		return true
	}
	// A lone query box is a search form whatever it is called.
	named := s.Find("input[name]:not([type=hidden]):not([type=submit])")
	if !hasMessage && named.Length() == 1 {
		switch strings.ToLower(named.AttrOr("name", "")) {
		case "s", "q", "query", "search", "keyword", "keywords":
			return true
		}
	}
	return false
}

func formMethod(s *goquery.Selection) string {
	m := strings.ToUpper(strings.TrimSpace(s.AttrOr("method", "")))
	if m == "" {
		return "GET"
	}
	return m
}

// formHeading returns the nearest heading text before or inside the form.
func formHeading(s *goquery.Selection) string {
	if h := s.Find("h1, h2, h3, h4, legend").First(); h.Length() > 0 {
		return strings.TrimSpace(h.Text())
	}
	prev := s.PrevAllFiltered("h1, h2, h3, h4, p").First()
	if prev.Length() == 0 {
		prev = s.Parent().PrevAllFiltered("h1, h2, h3, h4").First()
	}
	return strings.TrimSpace(prev.Text())
}

func submitText(s *goquery.Selection) string {
	sub := s.Find("button[type=submit], input[type=submit], button:not([type])").First()
	if sub.Length() == 0 {
		return ""
	}
	if v, ok := sub.Attr("value"); ok && goquery.NodeName(sub) == "input" {
		return v
	}
	return strings.TrimSpace(sub.Text())
}

func hasModalAttr(s *goquery.Selection) bool {
	for _, attr := range modalAttrs {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		v = strings.ToLower(v)
		switch attr {
		case "data-toggle", "data-bs-toggle":
			if v == "modal" || v == "popup" || v == "lightbox" {
				return true
			}
		case "aria-haspopup":
			if v == "dialog" || v == "true" {
				return true
			}
		default:
			return true
		}
	}
	return false
}

func modalTarget(s *goquery.Selection) string {
	for _, attr := range []string{"data-target", "data-bs-target", "data-modal", "data-popup", "href"} {
		if v := s.AttrOr(attr, ""); strings.HasPrefix(v, "#") && len(v) > 1 {
			return v[1:]
		}
	}
	return ""
}

func looksClickable(s *goquery.Selection) bool {
	if s.AttrOr("role", "") == "button" || s.AttrOr("tabindex", "") != "" {
		return true
	}
	return containsAny(s.AttrOr("class", ""), []string{"btn", "button", "popup", "trigger", "toggle", "cta"})
}

// hiddenElement reports whether s or an ancestor is hidden by markup.
func hiddenElement(s *goquery.Selection) bool {
	for n := s; n.Length() > 0 && goquery.NodeName(n) != "body"; n = n.Parent() {
		if _, ok := n.Attr("hidden"); ok {
			return true
		}
		if n.AttrOr("aria-hidden", "") == "true" {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
		class := " " + strings.ToLower(n.AttrOr("class", "")) + " "
		for _, c := range []string{" hidden ", " d-none ", " modal ", " popup ", " mfp-hide ", " is-hidden ", " elementor-popup-modal "} {
			if strings.Contains(class, c) {
				return true
			}
		}
	}
	return false
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 120 {
		return string(r[:120])
	}
	return s
}
