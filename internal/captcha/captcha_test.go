package captcha

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/browser/browsertest"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		html    string
		want    Type
		siteKey string
		none    bool
	}{
		{
			name:    "recaptcha v2 widget",
			html:    `<form><div class="g-recaptcha" data-sitekey="6LcAbC"></div></form>`,
			want:    TypeRecaptchaV2,
			siteKey: "6LcAbC",
		},
		{
			name:    "recaptcha v3 via render param",
			html:    `<script src="https://www.google.com/recaptcha/api.js?render=6LdXyZ"></script><form></form>`,
			want:    TypeRecaptchaV3,
			siteKey: "6LdXyZ",
		},
		{
			name:    "invisible recaptcha",
			html:    `<div class="g-recaptcha" data-sitekey="k1" data-size="invisible"></div>`,
			want:    TypeRecaptchaV3,
			siteKey: "k1",
		},
		{
			name:    "hcaptcha",
			html:    `<div class="h-captcha" data-sitekey="hc-key"></div>`,
			want:    TypeHCaptcha,
			siteKey: "hc-key",
		},
		{
			name:    "turnstile",
			html:    `<div class="cf-turnstile" data-sitekey="0x4AAA"></div>`,
			want:    TypeTurnstile,
			siteKey: "0x4AAA",
		},
		{
			name:    "recaptcha anchor iframe keeps key case",
			html:    `<iframe src="https://www.google.com/recaptcha/api2/anchor?ar=1&k=6LeMiXeD&co=x"></iframe>`,
			want:    TypeRecaptchaV2,
			siteKey: "6LeMiXeD",
		},
		{
			name: "image captcha",
			html: `<form><img src="/captcha.php?r=1" alt="code"><input name="captcha_code"></form>`,
			want: TypeImage,
		},
		{
			name: "explicit render is not v3",
			html: `<script src="https://www.google.com/recaptcha/api.js?render=explicit"></script>`,
			none: true,
		},
		{
			name: "plain form",
			html: `<form><input name="email"><textarea name="message"></textarea></form>`,
			none: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Detector{}.Detect(tt.html, "https://example.com/contact")
			if tt.none {
				assert.False(t, d.Detected)
				assert.Empty(t, d.Challenges)
				return
			}
			require.True(t, d.Detected)
			assert.Equal(t, tt.want, d.Type)
			assert.Equal(t, tt.siteKey, d.SiteKey)
			assert.NotEmpty(t, d.Selectors)
			assert.Equal(t, "https://example.com/contact", d.PageURL)
		})
	}
}

func TestDetect_InteractiveOutranksInvisible(t *testing.T) {
	t.Parallel()

	html := `<script src="https://www.google.com/recaptcha/api.js?render=v3key"></script>
<div class="h-captcha" data-sitekey="hk"></div>`
	d := Detector{}.Detect(html, "")
	require.True(t, d.Detected)
	assert.Equal(t, TypeHCaptcha, d.Type)
	assert.Equal(t, []Type{TypeHCaptcha, TypeRecaptchaV3}, d.Challenges)
}

func TestType_ResponseField(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "g-recaptcha-response", TypeRecaptchaV2.ResponseField())
	assert.Equal(t, "h-captcha-response", TypeHCaptcha.ResponseField())
	assert.Equal(t, "cf-turnstile-response", TypeTurnstile.ResponseField())
	assert.Empty(t, TypeImage.ResponseField())
	assert.True(t, TypeTurnstile.Invisible())
	assert.False(t, TypeRecaptchaV2.Invisible())
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	sol := Disabled{}.Solve(context.Background(), Detection{Detected: true, Type: TypeRecaptchaV2}, nil)
	assert.False(t, sol.Solved)
	assert.Equal(t, "disabled", sol.MethodUsed)
}

func TestAutoPass_TokenAppears(t *testing.T) {
	t.Parallel()

	h := browsertest.New(nil)
	calls := 0
	h.EvalFunc = func(script string) (any, error) {
		if strings.Contains(script, "cf-turnstile-response") {
			calls++
			if calls >= 3 {
				return "tok-123", nil
			}
			return "", nil
		}
		return nil, nil
	}

	a := AutoPass{Wait: 2 * time.Second, Poll: 5 * time.Millisecond}
	sol := a.Solve(context.Background(), Detection{Detected: true, Type: TypeTurnstile}, h)
	assert.True(t, sol.Solved)
	assert.Equal(t, "tok-123", sol.Token)
	assert.Equal(t, "auto_pass", sol.MethodUsed)
}

func TestAutoPass_V3ExecutesThenTimesOut(t *testing.T) {
	t.Parallel()

	h := browsertest.New(nil)
	h.EvalFunc = func(string) (any, error) { return "", nil }

	a := AutoPass{Wait: 30 * time.Millisecond, Poll: 5 * time.Millisecond}
	sol := a.Solve(context.Background(), Detection{Detected: true, Type: TypeRecaptchaV3, SiteKey: "k"}, h)
	assert.False(t, sol.Solved)
	assert.True(t, h.EvalContains("grecaptcha.execute("))
}

func TestAutoPass_SkipsInteractiveAndNilHandle(t *testing.T) {
	t.Parallel()

	a := NewAutoPass(time.Second)
	h := browsertest.New(nil)
	assert.False(t, a.Solve(context.Background(), Detection{Type: TypeRecaptchaV2}, h).Solved)
	assert.Empty(t, h.Evals)
	assert.False(t, a.Solve(context.Background(), Detection{Type: TypeTurnstile}, nil).Solved)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Token(ctx context.Context, t Type, siteKey, pageURL string) (string, error) {
	args := m.Called(ctx, t, siteKey, pageURL)
	return args.String(0), args.Error(1)
}

func TestTokenSolver_InjectsToken(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	p.On("Token", mock.Anything, TypeRecaptchaV2, "site", "https://x.test/contact").Return("solved-token", nil)

	h := browsertest.New(nil)
	h.EvalFunc = func(string) (any, error) { return true, nil }

	d := Detection{Detected: true, Type: TypeRecaptchaV2, SiteKey: "site", PageURL: "https://x.test/contact"}
	sol := TokenSolver{Provider: p}.Solve(context.Background(), d, h)

	assert.True(t, sol.Solved)
	assert.Equal(t, "solved-token", sol.Token)
	assert.Equal(t, "g-recaptcha-response", sol.ResponseField)
	assert.True(t, h.EvalContains(`"solved-token"`))
	p.AssertExpectations(t)
}

func TestTokenSolver_HTTPOnlyReturnsToken(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	p.On("Token", mock.Anything, TypeHCaptcha, "hk", "").Return("hc-token", nil)

	sol := TokenSolver{Provider: p}.Solve(context.Background(), Detection{Type: TypeHCaptcha, SiteKey: "hk"}, nil)
	assert.True(t, sol.Solved)
	assert.Equal(t, "h-captcha-response", sol.ResponseField)
}

func TestTokenSolver_ProviderError(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	p.On("Token", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", eris.New("quota"))

	sol := TokenSolver{Provider: p}.Solve(context.Background(), Detection{Type: TypeTurnstile, SiteKey: "k"}, nil)
	assert.False(t, sol.Solved)

	// Image challenges and missing site keys never reach the provider.
	q := &mockProvider{}
	assert.False(t, TokenSolver{Provider: q}.Solve(context.Background(), Detection{Type: TypeImage}, nil).Solved)
	q.AssertNotCalled(t, "Token", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChain_FirstSolvedWins(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	p.On("Token", mock.Anything, TypeTurnstile, "k", "").Return("t", nil)

	c := Chain{Disabled{}, TokenSolver{Provider: p}}
	sol := c.Solve(context.Background(), Detection{Type: TypeTurnstile, SiteKey: "k"}, nil)
	assert.True(t, sol.Solved)
	assert.Equal(t, "token", sol.MethodUsed)

	sol = Chain{Disabled{}}.Solve(context.Background(), Detection{Type: TypeRecaptchaV2}, nil)
	assert.False(t, sol.Solved)
	assert.Equal(t, "disabled", sol.MethodUsed)
}
