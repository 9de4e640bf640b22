package fields

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// captchaResponseNames are hidden inputs populated by challenge widgets, never by us.
var captchaResponseNames = map[string]bool{
	"g-recaptcha-response":        true,
	"h-captcha-response":          true,
	"cf-turnstile-response":       true,
	"g-recaptcha-response-100000": true,
	"frc-captcha-solution":        true,
	"wpcf7_recaptcha_response":    true,
	"_wpcf7_recaptcha_response":   true,
}

// Extract parses form markup and returns its classified fields in document order.
func Extract(formHTML string) ([]model.FormField, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(formHTML))
	if err != nil {
		return nil, eris.Wrap(err, "fields: parse form html")
	}
	root := doc.Find("form").First()
	if root.Length() == 0 {
		root = doc.Selection
	}
	return FromSelection(root), nil
}

// FromSelection enumerates the input, textarea and select controls under root.
// Radio buttons sharing a name collapse into one field whose options are their values.
func FromSelection(root *goquery.Selection) []model.FormField {
	var out []model.FormField
	radios := map[string]int{}

	root.Find("input, textarea, select").Each(func(_ int, sel *goquery.Selection) {
		f, ok := fieldFrom(root, sel)
		if !ok {
			return
		}
		if f.ElementType == model.ElementRadio && f.RawName != "" {
			if idx, seen := radios[f.RawName]; seen {
				out[idx].Options = append(out[idx].Options, f.Value)
				out[idx].OptionLabels = append(out[idx].OptionLabels, f.Label)
				out[idx].Required = out[idx].Required || f.Required
				return
			}
			radios[f.RawName] = len(out)
			f.Options = []string{f.Value}
			f.OptionLabels = []string{f.Label}
			f.Label = groupLabel(sel, "")
		}
		Classify(&f)
		out = append(out, f)
	})
	return out
}

func fieldFrom(root, sel *goquery.Selection) (model.FormField, bool) {
	tag := goquery.NodeName(sel)
	typ := strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "text")))

	var et model.ElementType
	switch tag {
	case "textarea":
		et = model.ElementTextarea
	case "select":
		et = model.ElementSelect
	default:
		switch typ {
		case "submit", "button", "reset", "image", "file", "password", "search":
			return model.FormField{}, false
		case "email":
			et = model.ElementEmail
		case "tel":
			et = model.ElementTel
		case "checkbox":
			et = model.ElementCheckbox
		case "radio":
			et = model.ElementRadio
		case "hidden":
			et = model.ElementHidden
		default:
			et = model.ElementText
		}
	}

	name := sel.AttrOr("name", "")
	id := sel.AttrOr("id", "")
	if name == "" && id == "" {
		return model.FormField{}, false
	}
	if captchaResponseNames[strings.ToLower(name)] || captchaResponseNames[strings.ToLower(id)] {
		return model.FormField{}, false
	}
	if _, disabled := sel.Attr("disabled"); disabled {
		return model.FormField{}, false
	}

	f := model.FormField{
		RawName:        name,
		RawID:          id,
		RawPlaceholder: sel.AttrOr("placeholder", ""),
		Label:          labelFor(root, sel, id),
		ElementType:    et,
		Value:          sel.AttrOr("value", ""),
	}
	if tag == "textarea" {
		f.Value = sel.Text()
	}
	if et == model.ElementCheckbox && f.Value == "" {
		f.Value = "on"
	}
	if et == model.ElementSelect {
		sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
			text := strings.TrimSpace(opt.Text())
			f.Options = append(f.Options, opt.AttrOr("value", text))
			f.OptionLabels = append(f.OptionLabels, text)
		})
	}
	if et != model.ElementHidden {
		f.Required = isRequired(sel, f.Label)
	}
	return f, true
}

// labelFor finds the visible label for a control: label[for], a wrapping
// label, aria-label, or the nearest preceding label in the same wrapper.
func labelFor(root, sel *goquery.Selection, id string) string {
	if id != "" {
		var text string
		root.Find("label").EachWithBreak(func(_ int, l *goquery.Selection) bool {
			if l.AttrOr("for", "") == id {
				text = cleanLabel(l.Text())
				return false
			}
			return true
		})
		if text != "" {
			return text
		}
	}
	if wrap := sel.ParentsFiltered("label").First(); wrap.Length() > 0 {
		clone := wrap.Clone()
		clone.Find("select, textarea, option").Remove()
		if text := cleanLabel(clone.Text()); text != "" {
			return text
		}
	}
	if aria := strings.TrimSpace(sel.AttrOr("aria-label", "")); aria != "" {
		return aria
	}
	if prev := sel.PrevAllFiltered("label").First(); prev.Length() > 0 {
		return cleanLabel(prev.Text())
	}
	if prev := sel.Parent().PrevAllFiltered("label").First(); prev.Length() > 0 {
		return cleanLabel(prev.Text())
	}
	return ""
}

// groupLabel returns the legend of a radio group's fieldset, if any.
func groupLabel(sel *goquery.Selection, fallback string) string {
	if fs := sel.ParentsFiltered("fieldset").First(); fs.Length() > 0 {
		if legend := cleanLabel(fs.Find("legend").First().Text()); legend != "" {
			return legend
		}
	}
	return fallback
}

func cleanLabel(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isRequired(sel *goquery.Selection, label string) bool {
	if _, ok := sel.Attr("required"); ok {
		return true
	}
	if strings.EqualFold(sel.AttrOr("aria-required", ""), "true") {
		return true
	}
	for _, attr := range []string{"data-rule-required", "data-required", "data-parsley-required", "data-val-required"} {
		if v, ok := sel.Attr(attr); ok && !strings.EqualFold(v, "false") {
			return true
		}
	}
	if hasRequiredMarker(sel.AttrOr("class", "")) {
		return true
	}
	// Form builders mark the wrapper rather than the control.
	wrapper := sel.Parent()
	for range 2 {
		if wrapper.Length() == 0 || goquery.NodeName(wrapper) == "form" {
			break
		}
		if hasRequiredMarker(wrapper.AttrOr("class", "")) {
			return true
		}
		wrapper = wrapper.Parent()
	}
	return labelMarksRequired(label)
}
