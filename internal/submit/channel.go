package submit

import (
	"context"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/verify"
)

// EmailFinder looks up contact addresses for a site. *discovery.EmailCrawler implements it.
type EmailFinder interface {
	Crawl(ctx context.Context, startURL string) ([]string, error)
}

// AlternativeChannel reports a contact address in place of a form
// submission. Its success is a substitute: nothing is sent.
type AlternativeChannel struct {
	// Finder is consulted when discovery found no address on the page.
	Finder EmailFinder
}

// Method implements Strategy.
func (AlternativeChannel) Method() model.Method { return model.MethodAlternativeChannel }

// Applicable implements Strategy.
func (s AlternativeChannel) Applicable(p *Plan, _ browser.Handle) bool {
	return len(p.Emails) > 0 || (s.Finder != nil && p.Site.URL != "")
}

// Execute implements Strategy.
func (s AlternativeChannel) Execute(ctx context.Context, p *Plan, _ browser.Handle) (verify.Verdict, error) {
	if len(p.Emails) == 0 && s.Finder != nil {
		found, err := s.Finder.Crawl(ctx, p.Site.URL)
		if err != nil && len(found) == 0 {
			return verify.Verdict{}, err
		}
		p.Emails = found
	}
	if len(p.Emails) == 0 {
		return verify.Verdict{Outcome: model.OutcomeFailed, Evidence: "no contact address found"}, nil
	}
	return verify.Verdict{Outcome: model.OutcomeSuccess, Evidence: "contact address: " + p.Emails[0]}, nil
}
