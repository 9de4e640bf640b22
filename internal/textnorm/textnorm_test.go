package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"your", "name"}, Tokens("your-name"))
	assert.Equal(t, []string{"first", "name"}, Tokens("firstName"))
	assert.Equal(t, []string{"telefono", "movil"}, Tokens("Teléfono Móvil"))
	assert.Equal(t, []string{"input", "3"}, Tokens("input_3"))
	assert.Empty(t, Tokens("  -- "))
}

func TestText_Has(t *testing.T) {
	txt := NewText("youremail", "Contact Us")

	assert.True(t, txt.Has("email"), "long keyword matches inside compound token")
	assert.True(t, txt.Has("contact us"), "phrase matches consecutive tokens")
	assert.True(t, txt.Has("Contact"))
	assert.False(t, txt.Has("us contact"))
	assert.False(t, txt.Has(""))

	hotel := NewText("hotel_booking")
	assert.False(t, hotel.Has("tel"), "short keyword needs a whole token")
	assert.True(t, NewText("tel").Has("tel"))
	assert.True(t, hotel.HasAny("phone", "booking"))
}

func TestText_HasWord(t *testing.T) {
	txt := NewText("preferred_date", "Interested In")

	assert.False(t, txt.HasWord("referred"), "keyword inside another word")
	assert.True(t, txt.Has("referred"), "Has still matches compounds")
	assert.True(t, txt.HasWord("prefer"), "token prefix")
	assert.True(t, txt.HasWord("date"))
	assert.True(t, txt.HasWord("interested in"))
	assert.False(t, txt.HasWord("pref"), "short keyword needs a whole token")
	assert.True(t, txt.HasAnyWord("budget", "interest"))
	assert.False(t, txt.HasAnyWord())
}

func TestFold(t *testing.T) {
	assert.Equal(t, "societe", Fold("Société"))
	assert.Equal(t, "strasse", Fold("STRASSE"))
}
