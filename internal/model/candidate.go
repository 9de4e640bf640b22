package model

import "sort"

// CandidateKind is the closed set of contact entry point shapes.
type CandidateKind string

const (
	KindStaticLink     CandidateKind = "static_link"
	KindPopupButton    CandidateKind = "popup_button"
	KindPopupElement   CandidateKind = "popup_element"
	KindModalTrigger   CandidateKind = "modal_trigger"
	KindOnclickTrigger CandidateKind = "onclick_trigger"
	KindHiddenForm     CandidateKind = "hidden_form"
	KindVisibleForm    CandidateKind = "visible_form"
)

// Priority tiers. Lower wins regardless of score.
const (
	TierStatic      = 1
	TierInteractive = 2
)

// IsForm reports whether the candidate is a form element.
func (k CandidateKind) IsForm() bool {
	return k == KindVisibleForm || k == KindHiddenForm
}

// IsInteractive reports whether the candidate requires an in-page click.
func (k CandidateKind) IsInteractive() bool {
	switch k {
	case KindPopupButton, KindPopupElement, KindModalTrigger, KindOnclickTrigger:
		return true
	}
	return false
}

// Candidate is a single discovered contact entry point.
type Candidate struct {
	Kind      CandidateKind `json:"kind"`
	Target    string        `json:"target,omitempty"`
	LabelText string        `json:"label_text,omitempty"`
	Score     int           `json:"score"`
	Priority  int           `json:"priority"`
	// Selector locates the element in a live DOM.
	Selector string `json:"selector,omitempty"`
	// Method is the form method (GET/POST) for form candidates.
	Method string `json:"method,omitempty"`
	// FormHTML holds the outer HTML of the form (or revealed dialog) for classification.
	FormHTML string `json:"-"`
	// PageURL is the page the candidate was found on.
	PageURL string `json:"page_url,omitempty"`
	// Order is the document position, used as the final tie-break.
	Order int `json:"-"`
}

// HasTarget reports whether the candidate resolves to a fixed URL.
func (c Candidate) HasTarget() bool {
	return c.Target != ""
}

// Better reports whether a should be promoted over b.
func Better(a, b Candidate) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Order < b.Order
}

// SortCandidates orders candidates by priority ascending then score descending.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return Better(cs[i], cs[j])
	})
}

// Best returns the promoted candidate, if any.
func Best(cs []Candidate) (Candidate, bool) {
	if len(cs) == 0 {
		return Candidate{}, false
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if Better(c, best) {
			best = c
		}
	}
	return best, true
}
