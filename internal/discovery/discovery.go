package discovery

import (
	"github.com/sells-group/outreach-cli/internal/model"
)

// Result is the outcome of analysing one page.
type Result struct {
	PageURL    string            `json:"page_url"`
	Candidates []model.Candidate `json:"candidates"`
	// Emails are fallback contact addresses for the alternative channel.
	Emails []string `json:"emails,omitempty"`
	// Live is set when the candidates came from a rendered page.
	Live bool `json:"live,omitempty"`
}

// Best returns the promoted candidate.
func (r Result) Best() (model.Candidate, bool) {
	return model.Best(r.Candidates)
}

// HasStatic reports whether a tier 1 candidate was found.
func (r Result) HasStatic() bool {
	best, ok := r.Best()
	return ok && best.Priority == model.TierStatic
}

// Page runs the static pass and email extraction over one page.
func Page(html, pageURL string, opts Options) (Result, error) {
	cands, err := Analyze(html, pageURL, opts)
	if err != nil {
		return Result{}, err
	}
	return Result{
		PageURL:    pageURL,
		Candidates: cands,
		Emails:     Emails(html, pageURL),
	}, nil
}
