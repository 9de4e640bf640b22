package resolve

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/textnorm"
)

// Rule maps field keywords to a default answer.
type Rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	// Value is the free-text answer. Empty means the rule only applies to option lists.
	Value string `yaml:"value"`
	// Prefer lists option keywords to pick from a select or radio group, in order.
	// Without a match the middle option is used.
	Prefer []string `yaml:"prefer"`
	// Check marks the rule as applying to checkboxes (consent, newsletter).
	Check bool `yaml:"check"`
}

// DefaultRules is the built-in vocabulary for fields the classifier leaves unknown.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "consent", Keywords: []string{"consent", "agree", "terms", "privacy", "gdpr", "accept", "acknowledge", "policy"}, Check: true},
		{Name: "newsletter", Keywords: []string{"newsletter", "subscribe", "updates", "marketing", "opt in"}, Check: true},
		{Name: "budget", Keywords: []string{"budget", "price range", "investment", "spend"}, Value: "Flexible"},
		{Name: "timeline", Keywords: []string{"timeline", "timeframe", "time frame", "deadline", "urgency", "start date", "when"}, Value: "Flexible"},
		{Name: "referral", Keywords: []string{"hear about", "hear", "referral", "referred", "source", "find us", "found us"}, Value: "Web search", Prefer: []string{"google", "search", "internet", "online", "web", "other"}},
		{Name: "industry", Keywords: []string{"industry", "sector", "vertical"}, Value: "Professional services"},
		{Name: "company_size", Keywords: []string{"company size", "employees", "team size", "staff", "headcount"}, Value: "11-50", Prefer: []string{"11", "10"}},
		{Name: "contact_method", Keywords: []string{"preferred contact", "contact method", "best way", "contact preference", "pref"}, Value: "Email", Prefer: []string{"email", "e mail"}},
		{Name: "website", Keywords: []string{"website", "url", "site", "domain", "web address"}, Value: "N/A"},
		{Name: "job_title", Keywords: []string{"job title", "title", "position", "role", "occupation"}, Value: "Owner"},
		{Name: "country", Keywords: []string{"country", "nation"}, Value: "United States", Prefer: []string{"united states", "usa", "us"}},
		{Name: "state", Keywords: []string{"state", "province", "region", "county"}, Value: "N/A"},
		{Name: "city", Keywords: []string{"city", "town", "locality"}, Value: "N/A"},
		{Name: "zip", Keywords: []string{"zip", "postal", "postcode", "post code"}, Value: "00000"},
		{Name: "address", Keywords: []string{"address", "street"}, Value: "N/A"},
		{Name: "date", Keywords: []string{"date", "day"}},
		{Name: "number", Keywords: []string{"number", "quantity", "qty", "amount", "count", "how many"}, Value: "1"},
		{Name: "service", Keywords: []string{"service", "interest", "interested", "product", "inquiry type", "enquiry type", "department", "category"}, Value: "General inquiry"},
	}
}

// LoadRules reads YAML rules from path. They are placed before the defaults,
// so a file rule overrides a built-in one with overlapping keywords.
func LoadRules(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve: read dictionary %s", path)
	}
	var file struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, eris.Wrapf(err, "resolve: parse dictionary %s", path)
	}
	return append(file.Rules, DefaultRules()...), nil
}

// match returns the first rule with a keyword that is a word, or the start
// of a word, in the field text.
func match(rules []Rule, f model.FormField) (Rule, bool) {
	txt := textnorm.NewText(f.RawName, f.RawID, f.RawPlaceholder, f.Label)
	for _, r := range rules {
		if f.ElementType == model.ElementCheckbox && !r.Check {
			continue
		}
		if f.ElementType != model.ElementCheckbox && r.Check {
			continue
		}
		if txt.HasAnyWord(r.Keywords...) {
			return r, true
		}
	}
	return Rule{}, false
}

// dictionaryValue answers f from rule r. ok is false when the rule has no
// usable answer for this control type.
func dictionaryValue(r Rule, f model.FormField, sender model.Sender, now time.Time) (string, bool) {
	switch {
	case f.ElementType == model.ElementCheckbox:
		return checkedValue(f), true
	case f.ElementType.HasOptions():
		opts := f.NonEmptyOptions()
		if len(opts) == 0 {
			return "", false
		}
		if v, ok := preferredOption(f, r.Prefer); ok {
			return v, true
		}
		return opts[len(opts)/2], true
	}

	switch r.Name {
	case "website":
		if sender.Website != "" {
			return sender.Website, true
		}
	case "date":
		return now.AddDate(0, 0, 7).Format("2006-01-02"), true
	}
	if r.Value == "" {
		return "", false
	}
	return r.Value, true
}

// preferredOption returns the first option (by preference order) whose value
// or visible label contains a preferred keyword.
func preferredOption(f model.FormField, prefer []string) (string, bool) {
	for _, p := range prefer {
		for i, o := range f.Options {
			if o == "" || !nonPlaceholder(f, o) {
				continue
			}
			label := o
			if i < len(f.OptionLabels) {
				label = f.OptionLabels[i]
			}
			if textnorm.NewText(o, label).Has(p) {
				return o, true
			}
		}
	}
	return "", false
}

func nonPlaceholder(f model.FormField, o string) bool {
	for _, v := range f.NonEmptyOptions() {
		if v == o {
			return true
		}
	}
	return false
}

func checkedValue(f model.FormField) string {
	if f.Value != "" {
		return f.Value
	}
	return "on"
}
