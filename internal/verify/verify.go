// Package verify decides whether a submission went through.
package verify

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/structured"
	"github.com/sells-group/outreach-cli/internal/textnorm"
)

// DefaultSuccessPhrases confirm that a message was accepted.
var DefaultSuccessPhrases = []string{
	"thank you for", "thanks for contacting", "thanks for reaching out", "thanks for your message",
	"message has been sent", "message was sent", "message sent", "sent successfully", "successfully sent",
	"successfully submitted", "submission received", "we have received", "we've received",
	"received your message", "we will get back", "we'll get back", "we will be in touch",
	"we'll be in touch", "we will contact you", "your enquiry has been", "your inquiry has been",
	"form submitted", "thank you!",
}

// DefaultErrorPhrases indicate the submission was rejected.
var DefaultErrorPhrases = []string{
	"there was an error", "an error occurred", "error occurred", "failed to send", "could not be sent",
	"couldn't be sent", "was not sent", "please try again", "this field is required", "field is required",
	"is required", "please fill", "please correct", "please enter a valid", "invalid email",
	"one or more fields have an error", "validation error", "captcha verification failed",
	"incorrect captcha", "flagged as spam", "submission failed", "something went wrong",
}

// Signals are the observations made after submitting.
type Signals struct {
	// Before is the URL the submission was made from (or posted to).
	Before string
	// After is the URL observed once the submission settled.
	After string
	// Body is the page or response body after submission.
	Body string
	// Baseline is the page before submission. Phrases already present there are ignored.
	Baseline   string
	StatusCode int
	Filled     int
}

// Verdict is a classified outcome with the evidence behind it.
type Verdict struct {
	Outcome  model.Outcome
	Evidence string
}

// Verifier classifies post-submission signals.
type Verifier struct {
	Settle  time.Duration
	Success []string
	Errors  []string
}

// New creates a Verifier with the default phrase lists.
func New(settle time.Duration) *Verifier {
	return &Verifier{Settle: settle, Success: DefaultSuccessPhrases, Errors: DefaultErrorPhrases}
}

// Classify applies, in order: conflicting phrases give indeterminate; a
// success phrase gives success; an error phrase gives failed; a URL change
// gives success; any filled field gives indeterminate; otherwise failed.
func (v *Verifier) Classify(s Signals) Verdict {
	text := visibleText(s.Body)
	base := visibleText(s.Baseline)

	okPhrase := firstNew(text, base, v.Success)
	errPhrase := firstNew(text, base, v.Errors)

	if js, ok := jsonVerdict(s.Body); ok {
		switch js {
		case model.OutcomeSuccess:
			if okPhrase == "" {
				okPhrase = "json: success"
			}
		case model.OutcomeFailed:
			if errPhrase == "" {
				errPhrase = "json: failure"
			}
		}
	}
	if errPhrase == "" && s.StatusCode >= 400 {
		errPhrase = "http status " + strconv.Itoa(s.StatusCode)
	}

	switch {
	case okPhrase != "" && errPhrase != "":
		return Verdict{model.OutcomeIndeterminate, "conflicting signals: " + okPhrase + " / " + errPhrase}
	case okPhrase != "":
		return Verdict{model.OutcomeSuccess, excerptAround(text, okPhrase)}
	case errPhrase != "":
		return Verdict{model.OutcomeFailed, excerptAround(text, errPhrase)}
	case urlChanged(s.Before, s.After):
		return Verdict{model.OutcomeSuccess, "redirected to " + s.After}
	case s.Filled > 0:
		return Verdict{model.OutcomeIndeterminate, "no confirmation signal"}
	}
	return Verdict{model.OutcomeFailed, "nothing submitted"}
}

// Page waits for the settle period, then classifies the live page in h.
func (v *Verifier) Page(ctx context.Context, h browser.Handle, before, baseline string, filled int) Verdict {
	select {
	case <-ctx.Done():
		return Verdict{model.OutcomeIndeterminate, "cancelled before verification"}
	case <-time.After(v.Settle):
	}
	html, err := h.HTML(ctx)
	if err != nil {
		return Verdict{model.OutcomeIndeterminate, "page unreadable: " + err.Error()}
	}
	after, err := h.Location(ctx)
	if err != nil {
		after = before
	}
	return v.Classify(Signals{Before: before, After: after, Body: html, Baseline: baseline, Filled: filled})
}

// firstNew returns the first phrase in text that the baseline does not already contain.
func firstNew(text, baseline string, phrases []string) string {
	for _, p := range phrases {
		fp := textnorm.Fold(p)
		if strings.Contains(text, fp) && !strings.Contains(baseline, fp) {
			return p
		}
	}
	return ""
}

// jsonVerdict reads common AJAX endpoint responses (Contact Form 7,
// WPForms, Gravity Forms, generic {"success": bool}).
func jsonVerdict(body string) (model.Outcome, bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	data, conf, _ := structured.Parse(trimmed)
	if conf < 0.7 {
		return "", false
	}
	if st, ok := structured.String(data, "status"); ok {
		switch strings.ToLower(st) {
		case "mail_sent", "success", "ok", "sent":
			return model.OutcomeSuccess, true
		case "mail_failed", "validation_failed", "spam", "aborted", "error", "failed", "acceptance_missing":
			return model.OutcomeFailed, true
		}
	}
	for _, key := range []string{"success", "ok", "is_valid"} {
		if b, ok := data[key].(bool); ok {
			if b {
				return model.OutcomeSuccess, true
			}
			return model.OutcomeFailed, true
		}
	}
	if _, ok := data["errors"]; ok {
		return model.OutcomeFailed, true
	}
	return "", false
}

// visibleText returns folded body text without scripts, styles and hidden elements.
func visibleText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return textnorm.Fold(html)
	}
	doc.Find("script, style, noscript, template, [hidden], [aria-hidden=true]").Remove()
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			s.Remove()
		}
	})
	return strings.Join(strings.Fields(textnorm.Fold(doc.Text())), " ")
}

func excerptAround(text, phrase string) string {
	fp := textnorm.Fold(phrase)
	i := strings.Index(text, fp)
	if i < 0 {
		return phrase
	}
	start := max(0, i-60)
	end := min(len(text), i+len(fp)+120)
	return model.Excerpt(strings.ToValidUTF8(strings.TrimSpace(text[start:end]), ""))
}

func urlChanged(before, after string) bool {
	if before == "" || after == "" {
		return false
	}
	return canonical(before) != canonical(after)
}

func canonical(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Scheme = ""
	return u.String()
}
