// Package textnorm folds labels and attribute values into comparable keyword tokens.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Fold strips accents and case-folds s.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return folder.String(out)
}

// Tokens splits s into folded words, breaking camelCase and any non-alphanumeric run.
func Tokens(s string) []string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		if unicode.IsUpper(r) && prevLower {
			b.WriteRune(' ')
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return strings.Fields(Fold(b.String()))
}

// Text is a tokenized string ready for keyword matching.
type Text struct {
	tokens []string
	joined string
	set    map[string]bool
}

// NewText tokenizes the given parts into one Text.
func NewText(parts ...string) Text {
	var toks []string
	for _, p := range parts {
		toks = append(toks, Tokens(p)...)
	}
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return Text{tokens: toks, joined: " " + strings.Join(toks, " ") + " ", set: set}
}

// Empty reports whether the text has no tokens.
func (t Text) Empty() bool { return len(t.tokens) == 0 }

// Has reports whether keyword occurs. Short keywords (four letters or
// fewer) and multi-word phrases must match whole tokens; longer single
// words may also match inside compound tokens such as "youremail".
func (t Text) Has(keyword string) bool {
	kw := Tokens(keyword)
	switch {
	case len(kw) == 0:
		return false
	case len(kw) > 1:
		return strings.Contains(t.joined, " "+strings.Join(kw, " ")+" ")
	case len(kw[0]) <= 4:
		return t.set[kw[0]]
	default:
		if t.set[kw[0]] {
			return true
		}
		for _, tok := range t.tokens {
			if strings.Contains(tok, kw[0]) {
				return true
			}
		}
		return false
	}
}

// HasWord is Has without compound matching: a longer keyword must equal a
// token or start one, so "referred" does not match "preferred".
func (t Text) HasWord(keyword string) bool {
	kw := Tokens(keyword)
	switch {
	case len(kw) == 0:
		return false
	case len(kw) > 1:
		return strings.Contains(t.joined, " "+strings.Join(kw, " ")+" ")
	case len(kw[0]) <= 4:
		return t.set[kw[0]]
	}
	for _, tok := range t.tokens {
		if strings.HasPrefix(tok, kw[0]) {
			return true
		}
	}
	return false
}

// HasAnyWord reports whether any keyword occurs under HasWord.
func (t Text) HasAnyWord(keywords ...string) bool {
	for _, k := range keywords {
		if t.HasWord(k) {
			return true
		}
	}
	return false
}

// HasAny reports whether any keyword occurs.
func (t Text) HasAny(keywords ...string) bool {
	for _, k := range keywords {
		if t.Has(k) {
			return true
		}
	}
	return false
}

// String returns the normalized text.
func (t Text) String() string { return strings.TrimSpace(t.joined) }
