package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

var pageHTML = "<html><head><title>Acme</title></head><body><h1>Acme Plumbing</h1>" +
	strings.Repeat("<p>We fix pipes across the county.</p>", 5) + "</body></html>"

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		PerHostRPS: 1000,
		Retry:      resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
	})
}

type fakeRenderer struct {
	html, final string
	err         error
	calls       int
}

func (f *fakeRenderer) Render(_ context.Context, url string) (string, string, error) {
	f.calls++
	if f.final == "" {
		return f.html, url, f.err
	}
	return f.html, f.final, f.err
}

func TestHTTPFetcher_SetsBrowserHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Chrome/124")
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		assert.Equal(t, "navigate", r.Header.Get("Sec-Fetch-Mode"))
		_, _ = w.Write([]byte(pageHTML))
	}))
	defer srv.Close()

	resp, err := testFetcher().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, srv.URL, resp.FinalURL)
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(pageHTML))
	}))
	defer srv.Close()

	resp, err := testFetcher().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_NoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_FollowsRedirectAndKeepsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		http.Redirect(w, r, "/contact-us", http.StatusFound)
	})
	mux.HandleFunc("/contact-us", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("sid")
		if assert.NoError(t, err) {
			assert.Equal(t, "abc", c.Value)
		}
		_, _ = w.Write([]byte(pageHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := testFetcher().Get(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/contact-us", resp.FinalURL)
}

func TestAdaptiveLimiter(t *testing.T) {
	l := NewAdaptiveLimiter(4, 1)
	l.OnRateLimit("acme.com")
	assert.InDelta(t, 2, float64(l.Limit()), 0.001)
	l.OnRateLimit("acme.com")
	l.OnRateLimit("acme.com")
	assert.InDelta(t, 1, float64(l.Limit()), 0.001, "floored at initial/4")

	for range 20 {
		l.OnSuccess()
	}
	assert.Equal(t, rate.Limit(8), l.Limit(), "capped at 2x initial")
}

func TestChain_ReturnsFirstSufficientHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(pageHTML))
	}))
	defer srv.Close()

	browser := &fakeRenderer{html: pageHTML}
	c := NewChain(testFetcher(), ChainOptions{}).WithBrowser(browser)
	res, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, MethodHTTP, res.Method)
	assert.Equal(t, 0, browser.calls)
}

func TestChain_EscalatesToVariantThenBrowser(t *testing.T) {
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cf-Ray", "abc")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer blocked.Close()
	tiny := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer tiny.Close()

	browser := &fakeRenderer{html: pageHTML, final: blocked.URL + "/home"}
	c := NewChain(testFetcher(), ChainOptions{}).WithBrowser(browser)
	c.variants = func(string) []string { return []string{tiny.URL} }

	res, err := c.Fetch(context.Background(), blocked.URL)
	require.NoError(t, err)
	assert.Equal(t, MethodBrowser, res.Method)
	assert.Equal(t, blocked.URL+"/home", res.FinalURL)
	assert.Equal(t, 1, browser.calls)
}

func TestChain_FetchErrorListsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reader := &fakeRenderer{err: errors.New("jina: circuit open")}
	c := NewChain(testFetcher(), ChainOptions{}).
		WithBrowser(&fakeRenderer{html: "<html></html>"}).
		WithReader(reader)
	c.variants = func(string) []string { return []string{srv.URL + "/alt"} }

	_, err := c.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Len(t, fe.Attempts, 4)
	assert.Equal(t, MethodHTTP, fe.Attempts[0].Method)
	assert.Equal(t, MethodHTTPVariant, fe.Attempts[1].Method)
	assert.Equal(t, MethodBrowser, fe.Attempts[2].Method)
	assert.Equal(t, "insufficient body", fe.Attempts[2].Reason)
	assert.Equal(t, MethodReader, fe.Attempts[3].Method)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestChain_CeilingBoundsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewChain(testFetcher(), ChainOptions{Ceiling: 50 * time.Millisecond})
	c.variants = func(string) []string { return nil }

	start := time.Now()
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, err.Error(), "ceiling")
}

func TestVariants(t *testing.T) {
	assert.Equal(t, []string{
		"https://www.acme.com/contact",
		"http://acme.com/contact",
		"http://www.acme.com/contact",
	}, Variants("https://acme.com/contact"))

	assert.Equal(t, []string{
		"http://acme.com",
		"https://www.acme.com",
		"https://acme.com",
	}, Variants("http://www.acme.com"))

	assert.Nil(t, Variants("not a url"))
}

func TestNormalizeAndHost(t *testing.T) {
	assert.Equal(t, "https://acme.com", Normalize(" acme.com "))
	assert.Equal(t, "http://acme.com", Normalize("http://acme.com"))
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "acme.com", Host("https://WWW.Acme.com/x"))
}

func TestDetectBlock(t *testing.T) {
	cases := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare header", 403, http.Header{"Cf-Ray": {"x"}}, "", BlockCloudflare},
		{"cloudflare body", 200, nil, "<title>Just a moment</title>Checking your browser before accessing", BlockCloudflare},
		{"captcha interstitial", 200, nil, "<p>Please verify you are human</p><div class=g-recaptcha></div>", BlockCaptcha},
		{"page with captcha form", 200, nil, "<form><div class=g-recaptcha></div></form>" + strings.Repeat("x", 9000), BlockNone},
		{"js shell", 200, nil, `<html><body><noscript>You need to enable JavaScript</noscript><div id="root"></div></body></html>`, BlockJSShell},
		{"clean", 200, nil, pageHTML, BlockNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, got := DetectBlock(tc.status, tc.header, []byte(tc.body))
			assert.Equal(t, tc.want, got)
		})
	}
}
