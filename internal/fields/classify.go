// Package fields enumerates form controls and assigns each a canonical category.
package fields

import (
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/textnorm"
)

type keywordGroup struct {
	category model.FieldCategory
	include  []string
	exclude  []string
}

// groups are checked in order; the first match wins.
var groups = []keywordGroup{
	{
		category: model.CategoryName,
		include:  []string{"name", "fullname", "full name", "your name", "fname", "lname", "first", "last", "surname", "given", "family name", "nombre", "nom", "vorname", "nachname", "contact person"},
		exclude:  []string{"company", "business", "organization", "organisation", "firm", "username", "user", "domain", "file", "project", "website", "email", "event", "hear", "time", "date"},
	},
	{
		category: model.CategoryEmail,
		include:  []string{"email", "e mail", "mail", "correo", "courriel"},
	},
	{
		category: model.CategoryPhone,
		include:  []string{"phone", "telephone", "tel", "mobile", "cell", "telefono", "telefon", "whatsapp", "phone number"},
	},
	{
		category: model.CategorySubject,
		include:  []string{"subject", "topic", "regarding", "asunto", "betreff", "objet", "reason for contact"},
	},
	{
		category: model.CategoryMessage,
		include:  []string{"message", "msg", "comment", "comments", "inquiry", "enquiry", "question", "details", "description", "how can we help", "mensaje", "nachricht", "your message", "body", "project details"},
	},
	{
		category: model.CategoryCompany,
		include:  []string{"company", "business", "organization", "organisation", "firm", "employer", "empresa", "agency", "company name"},
	},
}

// acceptsCategory reports whether a control of type et can hold a value of
// category c. Option lists only ever carry a subject; checkboxes carry none.
func acceptsCategory(et model.ElementType, c model.FieldCategory) bool {
	switch {
	case et == model.ElementCheckbox:
		return false
	case et.HasOptions():
		return c == model.CategorySubject
	}
	return true
}

var (
	firstNameKeywords = []string{"first", "fname", "given", "vorname", "first name"}
	lastNameKeywords  = []string{"last", "lname", "surname", "family", "nachname", "last name"}
)

// Classify assigns Category and NamePart to f from its name, id, placeholder and label.
// email and tel input types win outright; an unmatched textarea is the message body.
func Classify(f *model.FormField) {
	f.Category = model.CategoryUnknown
	f.NamePart = model.NameFull

	switch f.ElementType {
	case model.ElementHidden:
		return
	case model.ElementEmail:
		f.Category = model.CategoryEmail
		return
	case model.ElementTel:
		f.Category = model.CategoryPhone
		return
	}

	txt := textnorm.NewText(f.RawName, f.RawID, f.RawPlaceholder, f.Label)
	if txt.Empty() {
		if f.ElementType == model.ElementTextarea {
			f.Category = model.CategoryMessage
		}
		return
	}

	for _, g := range groups {
		if !txt.HasAny(g.include...) || txt.HasAny(g.exclude...) {
			continue
		}
		if acceptsCategory(f.ElementType, g.category) {
			f.Category = g.category
		}
		break
	}

	if f.Category == model.CategoryUnknown && f.ElementType == model.ElementTextarea {
		f.Category = model.CategoryMessage
	}
	if f.Category == model.CategoryName {
		switch {
		case txt.HasAny(firstNameKeywords...):
			f.NamePart = model.NameFirst
		case txt.HasAny(lastNameKeywords...):
			f.NamePart = model.NameLast
		}
	}
}

// requiredMarkers are class or data-attribute fragments that validation
// plugins use instead of the required attribute.
var requiredMarkers = []string{
	"required",
	"wpcf7-validates-as-required",
	"gfield_contains_required",
	"is-required",
}

func hasRequiredMarker(s string) bool {
	s = strings.ToLower(s)
	for _, m := range requiredMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// labelMarksRequired reports whether visible label text flags the field as mandatory.
func labelMarksRequired(label string) bool {
	l := strings.ToLower(label)
	return strings.Contains(l, "*") || strings.Contains(l, "(required)") || strings.Contains(l, "required")
}
