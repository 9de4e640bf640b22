package model

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortCandidates_PriorityBeatsScore(t *testing.T) {
	t.Parallel()

	cs := []Candidate{
		{Kind: KindModalTrigger, Priority: TierInteractive, Score: 40, Order: 0},
		{Kind: KindVisibleForm, Priority: TierStatic, Score: 5, Order: 1},
		{Kind: KindStaticLink, Priority: TierStatic, Score: 12, Order: 2},
	}
	SortCandidates(cs)

	assert.Equal(t, KindStaticLink, cs[0].Kind)
	assert.Equal(t, KindVisibleForm, cs[1].Kind)
	assert.Equal(t, KindModalTrigger, cs[2].Kind)
}

func TestBest_TieBreaksByDocumentOrder(t *testing.T) {
	t.Parallel()

	cs := []Candidate{
		{Kind: KindStaticLink, Priority: 1, Score: 10, Order: 3, Target: "b"},
		{Kind: KindStaticLink, Priority: 1, Score: 10, Order: 1, Target: "a"},
	}
	best, ok := Best(cs)
	require.True(t, ok)
	assert.Equal(t, "a", best.Target)

	_, ok = Best(nil)
	assert.False(t, ok)
}

func TestCandidateKind(t *testing.T) {
	t.Parallel()

	assert.True(t, KindHiddenForm.IsForm())
	assert.True(t, KindVisibleForm.IsForm())
	assert.False(t, KindStaticLink.IsForm())
	assert.True(t, KindOnclickTrigger.IsInteractive())
	assert.False(t, KindHiddenForm.IsInteractive())
}

func TestFormField_KeyAndSelector(t *testing.T) {
	t.Parallel()

	f := FormField{RawName: `your-name`, RawID: "n1"}
	assert.Equal(t, "your-name", f.Key())
	assert.Equal(t, `[name="your-name"]`, f.Selector())

	f = FormField{RawID: `q"1`}
	assert.Equal(t, `q"1`, f.Key())
	assert.Equal(t, `[id="q\"1"]`, f.Selector())

	assert.Empty(t, FormField{}.Selector())
}

func TestFormField_NonEmptyOptions(t *testing.T) {
	t.Parallel()

	f := FormField{Options: []string{"", "Please select", "a", "b"}}
	assert.Equal(t, []string{"a", "b"}, f.NonEmptyOptions())
}

func TestSite_EntryURL(t *testing.T) {
	t.Parallel()

	s := Site{URL: "https://acme.com"}
	assert.Equal(t, "https://acme.com", s.EntryURL())
	assert.False(t, s.ExplicitContact())

	s.ContactURL = " https://acme.com/about "
	assert.Equal(t, "https://acme.com/about", s.EntryURL())
	assert.True(t, s.ExplicitContact())
}

func TestSender_Names(t *testing.T) {
	t.Parallel()

	s := Sender{Name: "Ada King Lovelace"}
	assert.Equal(t, "Ada", s.FirstName())
	assert.Equal(t, "King Lovelace", s.LastName())
	assert.Empty(t, Sender{Name: "Ada"}.LastName())
}

func TestReasonOf(t *testing.T) {
	t.Parallel()

	err := eris.Wrap(NewAttemptError(ReasonCaptchaUnsolved, eris.New("recaptcha_v2")), "engine")
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCaptchaUnsolved, reason)
	assert.Contains(t, err.Error(), "CaptchaUnsolved")

	_, ok = ReasonOf(eris.New("plain"))
	assert.False(t, ok)
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Excerpt("short"))
	long := strings.Repeat("x", MaxEvidence+10)
	assert.Len(t, Excerpt(long), MaxEvidence+3)
}
