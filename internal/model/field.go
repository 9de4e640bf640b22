package model

// ElementType is the HTML control type of a form field.
type ElementType string

const (
	ElementText     ElementType = "text"
	ElementEmail    ElementType = "email"
	ElementTel      ElementType = "tel"
	ElementTextarea ElementType = "textarea"
	ElementSelect   ElementType = "select"
	ElementCheckbox ElementType = "checkbox"
	ElementRadio    ElementType = "radio"
	ElementHidden   ElementType = "hidden"
)

// HasOptions reports whether the element carries a fixed option list.
func (e ElementType) HasOptions() bool {
	return e == ElementSelect || e == ElementRadio
}

// FieldCategory is the canonical meaning assigned to a form field.
type FieldCategory string

const (
	CategoryName    FieldCategory = "name"
	CategoryEmail   FieldCategory = "email"
	CategoryPhone   FieldCategory = "phone"
	CategorySubject FieldCategory = "subject"
	CategoryMessage FieldCategory = "message"
	CategoryCompany FieldCategory = "company"
	CategoryUnknown FieldCategory = "unknown"
)

// NamePart distinguishes split name inputs (first/last) from a full-name input.
type NamePart string

const (
	NameFull  NamePart = ""
	NameFirst NamePart = "first"
	NameLast  NamePart = "last"
)

// FormField is one input, textarea or select inside a form.
type FormField struct {
	RawName        string        `json:"raw_name"`
	RawID          string        `json:"raw_id,omitempty"`
	RawPlaceholder string        `json:"raw_placeholder,omitempty"`
	Label          string        `json:"label,omitempty"`
	ElementType    ElementType   `json:"element_type"`
	Category       FieldCategory `json:"category"`
	NamePart       NamePart      `json:"name_part,omitempty"`
	Required       bool          `json:"required"`
	Options        []string      `json:"options,omitempty"`
	// OptionLabels holds the visible text of each option, parallel to Options.
	OptionLabels []string `json:"option_labels,omitempty"`
	// Value is the pre-set value of the element (hidden fields, checkbox value).
	Value string `json:"value,omitempty"`
}

// Key returns the payload key for the field: its name, or its id when unnamed.
func (f FormField) Key() string {
	if f.RawName != "" {
		return f.RawName
	}
	return f.RawID
}

// Selector returns a CSS selector locating the field inside its form.
func (f FormField) Selector() string {
	switch {
	case f.RawName != "":
		return `[name="` + cssEscape(f.RawName) + `"]`
	case f.RawID != "":
		return `[id="` + cssEscape(f.RawID) + `"]`
	}
	return ""
}

// NonEmptyOptions returns options with blank and placeholder entries removed.
func (f FormField) NonEmptyOptions() []string {
	out := make([]string, 0, len(f.Options))
	for _, o := range f.Options {
		if o == "" || isPlaceholderOption(o) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func isPlaceholderOption(o string) bool {
	switch o {
	case "-", "--", "---", "Select", "select", "Please select", "Choose", "Choose one", "Select one", "- Select -", "-- Select --":
		return true
	}
	return false
}

func cssEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
