// Package submit maps form fields to values and delivers a message through
// the first strategy that works.
package submit

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/captcha"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resolve"
)

// DefaultSubject is used when the site carries no subject and the form asks for one.
const DefaultSubject = "Business inquiry"

// Plan is everything a strategy needs to deliver one message.
type Plan struct {
	Site   model.Site
	Target model.Candidate
	Fields []model.FormField
	// Values holds the submitted value per field key, hidden pass-through included.
	Values map[string]string
	// Filled lists the keys the mapper chose a value for (hidden fields excluded).
	Filled []string
	// Captcha is set when a challenge was cleared; HTTP strategies submit its token.
	Captcha *captcha.Solution
	// Emails are fallback addresses for the alternative channel.
	Emails []string
	// PageHTML is the page the target was found on. Confirmation phrases it
	// already shows are not taken as evidence.
	PageHTML string
	// Sent is set once a strategy has typed or posted the mapped values.
	Sent bool
}

// FieldMapper assigns values to a plan's fields. Mapper implements it.
type FieldMapper interface {
	Map(ctx context.Context, p *Plan) error
}

// FilledValues returns the mapped values, hidden pass-through excluded.
func (p *Plan) FilledValues() map[string]string {
	out := make(map[string]string, len(p.Filled))
	for _, k := range p.Filled {
		out[k] = p.Values[k]
	}
	return out
}

// SubmittedValues returns FilledValues once a strategy has sent them, nil before.
func (p *Plan) SubmittedValues() map[string]string {
	if !p.Sent {
		return nil
	}
	return p.FilledValues()
}

// Payload returns the form body: raw field names to unchanged values.
func (p *Plan) Payload() url.Values {
	form := url.Values{}
	for _, f := range p.Fields {
		v, ok := p.Values[f.Key()]
		if !ok {
			continue
		}
		form.Set(f.Key(), v)
	}
	if p.Captcha != nil && p.Captcha.Token != "" && p.Captcha.ResponseField != "" {
		form.Set(p.Captcha.ResponseField, p.Captcha.Token)
	}
	return form
}

// Mapper assigns a value to every field the message needs.
type Mapper struct {
	Sender   model.Sender
	Resolver *resolve.Resolver
}

// Map fills p.Values from p.Fields. A required field that nothing can answer
// fails the plan before anything is submitted.
func (m Mapper) Map(ctx context.Context, p *Plan) error {
	p.Values = make(map[string]string, len(p.Fields))
	p.Filled = p.Filled[:0]

	for _, f := range p.Fields {
		key := f.Key()
		if key == "" {
			continue
		}
		if f.ElementType == model.ElementHidden {
			p.Values[key] = f.Value
			continue
		}

		v, ok := m.known(f, p.Site)
		if !ok && f.Category == model.CategoryUnknown {
			v, ok = m.resolve(ctx, f, p.Site)
		}
		if !ok || v == "" {
			if f.Required {
				return model.Failf(model.ReasonRequiredFieldUnresolved,
					"submit: no value for required field %q (%s)", key, f.Category)
			}
			continue
		}
		p.Values[key] = v
		p.Filled = append(p.Filled, key)
	}
	if len(p.Filled) == 0 {
		return model.Failf(model.ReasonRequiredFieldUnresolved, "submit: form has no fillable fields")
	}
	return nil
}

// known answers the classified categories from the sender and the site.
func (m Mapper) known(f model.FormField, site model.Site) (string, bool) {
	s := m.Sender
	var v string
	switch f.Category {
	case model.CategoryName:
		switch f.NamePart {
		case model.NameFirst:
			v = s.FirstName()
		case model.NameLast:
			v = s.LastName()
		default:
			v = s.Name
		}
	case model.CategoryEmail:
		v = s.Email
	case model.CategoryPhone:
		v = s.Phone
	case model.CategoryCompany:
		v = s.Company
	case model.CategoryMessage:
		v = site.Message
	case model.CategorySubject:
		v = site.Subject
		if v == "" {
			v = DefaultSubject
		}
		if f.ElementType.HasOptions() {
			return subjectOption(f, v)
		}
	default:
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// subjectOption picks the option that best fits a general enquiry.
func subjectOption(f model.FormField, subject string) (string, bool) {
	opts := f.NonEmptyOptions()
	if len(opts) == 0 {
		return "", false
	}
	want := []string{strings.ToLower(subject), "general", "inquiry", "enquiry", "question", "other", "contact"}
	for _, w := range want {
		for _, o := range opts {
			if strings.Contains(strings.ToLower(o), w) {
				return o, true
			}
		}
	}
	return opts[0], true
}

func (m Mapper) resolve(ctx context.Context, f model.FormField, site model.Site) (string, bool) {
	if m.Resolver == nil || !f.Required {
		return "", false
	}
	res, ok := m.Resolver.Resolve(ctx, f, site.BusinessContext)
	if !ok {
		return "", false
	}
	zap.L().Debug("submit: resolved field",
		zap.String("site", site.URL),
		zap.String("field", f.Key()),
		zap.String("tier", string(res.Tier)),
		zap.Float64("confidence", res.Confidence),
	)
	return res.Value, true
}
