package engine

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/browser/browsertest"
	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/captcha"
	"github.com/sells-group/outreach-cli/internal/discovery"
	"github.com/sells-group/outreach-cli/internal/fetch"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/resolve"
	"github.com/sells-group/outreach-cli/internal/submit"
	"github.com/sells-group/outreach-cli/internal/verify"
)

var testSender = model.Sender{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "555-0100", Company: "Analytical Co"}

const (
	hiddenFormPage = `<html><body>
<nav><a href="#" data-toggle="modal" data-target="#contactModal">Talk to us</a></nav>
<div class="modal" id="contactModal" style="display:none">
  <form id="contact-form" action="/submit-contact" method="post">
    <input type="text" name="your-name" placeholder="Your name">
    <input type="email" name="your-email">
    <textarea name="your-message"></textarea>
    <button type="submit">Send</button>
  </form>
</div>
</body></html>`

	plainFormPage = `<html><body><h2>Contact Us</h2>
<form id="f" action="/contact/send" method="post">
  <input type="text" name="your-name">
  <input type="email" name="your-email">
  <textarea name="your-message"></textarea>
  <button type="submit">Send</button>
</form></body></html>`

	captchaFormPage = `<html><body><h2>Contact</h2>
<script src="https://www.google.com/recaptcha/api.js" async defer></script>
<form id="f" action="/contact/send" method="post">
  <input type="email" name="your-email">
  <textarea name="your-message"></textarea>
  <div class="g-recaptcha" data-sitekey="6LcAbC"></div>
  <button type="submit">Send</button>
</form></body></html>`

	emptyPage = `<html><body><p>Welcome</p><a href="/blog">Blog</a></body></html>`
)

// stubFetcher serves canned markup by URL and counts requests.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newStubFetcher(pages map[string]string) *stubFetcher {
	return &stubFetcher{pages: pages, calls: map[string]int{}}
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	html, ok := s.pages[url]
	if !ok {
		return nil, &fetch.FetchError{URL: url}
	}
	return &fetch.Result{Success: true, HTML: html, FinalURL: url, Method: fetch.MethodHTTP, StatusCode: http.StatusOK}, nil
}

func (s *stubFetcher) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

// stubSender answers every submission with the same body.
type stubSender struct {
	body string
	hits atomic.Int32
}

func (s *stubSender) Send(_ context.Context, req *http.Request) (*fetch.Response, error) {
	s.hits.Add(1)
	return &fetch.Response{StatusCode: http.StatusOK, Body: []byte(s.body), FinalURL: req.URL.String()}, nil
}

type failingSolver struct{ calls atomic.Int32 }

func (s *failingSolver) Solve(context.Context, captcha.Detection, browser.Handle) captcha.Solution {
	s.calls.Add(1)
	return captcha.Solution{MethodUsed: "stub"}
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) SaveAttempt(ctx context.Context, a *model.SubmissionAttempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

// sessions hands out fakes built by mk and counts releases.
type sessions struct {
	mk       func() *browsertest.Fake
	mu       sync.Mutex
	opened   []*browsertest.Fake
	released atomic.Int32
}

func (s *sessions) open(context.Context) (browser.Handle, func(), error) {
	f := s.mk()
	s.mu.Lock()
	s.opened = append(s.opened, f)
	s.mu.Unlock()
	return f, func() { s.released.Add(1) }, nil
}

func testDeps(f fetch.Fetcher, client submit.Sender) Deps {
	v := verify.New(time.Millisecond)
	mapper := submit.Mapper{Sender: testSender, Resolver: resolve.New(resolve.WithSender(testSender))}
	opts := submit.Options{Verifier: v, Mapper: mapper, ModalWait: 50 * time.Millisecond}
	if client != nil {
		opts.Client = client
	}
	return Deps{
		Fetcher:     f,
		Live:        discovery.LivePass{Settle: time.Millisecond, MaxTriggers: 3},
		Mapper:      mapper,
		Executor:    submit.NewExecutor(5*time.Second, submit.DefaultStrategies(opts)...),
		SiteTimeout: 5 * time.Second,
	}
}

func TestDiscoverAndSubmit_HiddenFormInBrowser(t *testing.T) {
	t.Parallel()

	f := newStubFetcher(map[string]string{"https://acme.test/": hiddenFormPage})
	s := &sessions{mk: func() *browsertest.Fake {
		h := browsertest.New(map[string]string{
			"https://acme.test/":          hiddenFormPage,
			"https://acme.test/thank-you": `<h1>Thank you for contacting us</h1>`,
		})
		h.Redirect[`#contact-form button[type="submit"]`] = "https://acme.test/thank-you"
		return h
	}}
	d := testDeps(f, nil)
	d.Sessions = s.open
	e := New(d)
	require.True(t, e.BrowserEnabled())

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hello there"})

	assert.Equal(t, model.OutcomeSuccess, a.Outcome, a.Error)
	assert.True(t, a.Succeeded())
	assert.Equal(t, model.MethodBrowserFillClick, a.MethodUsed)
	require.NotNil(t, a.Target)
	assert.Equal(t, model.KindHiddenForm, a.Target.Kind)
	assert.Equal(t, "https://acme.test/", a.Target.PageURL)
	assert.Equal(t, "Hello there", a.FieldsFilled["your-message"])
	assert.Equal(t, []model.State{
		model.StateDiscovered, model.StateFieldsMapped, model.StateCaptchaSkipped,
		model.StateSubmitted, model.StateVerified, model.StateSucceeded,
	}, a.States)
	assert.NotEmpty(t, a.ID)
	assert.Empty(t, a.Reason)

	require.Len(t, s.opened, 1)
	h := s.opened[0]
	assert.Equal(t, "Ada Lovelace", h.Filled[`#contact-form [name="your-name"]`])
	assert.True(t, h.Clicked(`#contact-form button[type="submit"]`))
	assert.Equal(t, int32(1), s.released.Load())
}

func TestDiscoverAndSubmit_LivePassRevealsModal(t *testing.T) {
	t.Parallel()

	initial := `<body><button id="open" class="btn" data-toggle="modal" data-target="#m">Contact us</button>
<div id="m" class="modal" style="display:none"></div></body>`
	opened := `<body><button id="open" class="btn" data-toggle="modal" data-target="#m">Contact us</button>
<div id="m" class="modal show" role="dialog"><form action="/send" method="post">
<input type="email" name="email"><textarea name="message"></textarea><button type="submit">Send</button></form></div></body>`

	f := newStubFetcher(map[string]string{"https://acme.test/": initial})
	s := &sessions{mk: func() *browsertest.Fake {
		h := browsertest.New(map[string]string{
			"https://acme.test/":       initial,
			"https://acme.test/thanks": `<p>Your message was sent successfully</p>`,
		})
		h.Reveal["#open"] = opened
		h.VisibleSet[`[role="dialog"]`] = true
		h.Redirect[`[role="dialog"] button[type="submit"]`] = "https://acme.test/thanks"
		return h
	}}
	d := testDeps(f, nil)
	d.Sessions = s.open
	e := New(d)

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hello there"})

	assert.Equal(t, model.OutcomeSuccess, a.Outcome, a.Error)
	assert.Equal(t, model.MethodModal, a.MethodUsed)
	require.NotNil(t, a.Target)
	assert.Equal(t, model.KindModalTrigger, a.Target.Kind)
	assert.Equal(t, "https://acme.test/send", a.Target.Target)

	require.Len(t, s.opened, 1)
	assert.Equal(t, "Hello there", s.opened[0].Filled[`[role="dialog"] [name="message"]`])
	assert.Equal(t, int32(1), s.released.Load())
}

func TestDiscoverAndSubmit_FollowsContactLink(t *testing.T) {
	t.Parallel()

	f := newStubFetcher(map[string]string{
		"https://acme.test/":         `<body><a href="/contact">Contact us</a></body>`,
		"https://acme.test/contact": plainFormPage,
	})
	client := &stubSender{body: `<p>Thank you for your message.</p>`}
	e := New(testDeps(f, client))

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hi"})

	assert.Equal(t, model.OutcomeSuccess, a.Outcome, a.Error)
	assert.Equal(t, model.MethodFormPost, a.MethodUsed)
	require.NotNil(t, a.Target)
	assert.Equal(t, model.KindVisibleForm, a.Target.Kind)
	assert.Equal(t, "https://acme.test/contact", a.Target.PageURL)
	assert.Equal(t, "https://acme.test/contact/send", a.Target.Target)
	assert.Equal(t, 1, f.count("https://acme.test/contact"))
	assert.Equal(t, int32(1), client.hits.Load())
}

func TestDiscoverAndSubmit_CaptchaUnsolvedStopsBeforeSubmit(t *testing.T) {
	t.Parallel()

	f := newStubFetcher(map[string]string{"https://acme.test/": captchaFormPage})
	client := &stubSender{body: `<p>Thank you</p>`}
	solver := &failingSolver{}
	d := testDeps(f, client)
	d.Solver = solver
	e := New(d)

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hi"})

	assert.Equal(t, model.OutcomeFailed, a.Outcome)
	assert.Equal(t, model.ReasonCaptchaUnsolved, a.Reason)
	require.NotNil(t, a.Captcha)
	assert.Equal(t, "recaptcha_v2", a.Captcha.Type)
	assert.False(t, a.Captcha.Solved)
	assert.Empty(t, a.MethodUsed)
	assert.Empty(t, a.FieldsFilled)
	assert.NotContains(t, a.States, model.StateSubmitted)
	assert.Equal(t, model.StateFailed, a.States[len(a.States)-1])
	assert.Equal(t, int32(1), solver.calls.Load())
	assert.Zero(t, client.hits.Load())
}

func TestDiscoverAndSubmit_CaptchaUnsolvedInBrowserFillsNothing(t *testing.T) {
	t.Parallel()

	f := newStubFetcher(map[string]string{"https://acme.test/": captchaFormPage})
	s := &sessions{mk: func() *browsertest.Fake {
		return browsertest.New(map[string]string{"https://acme.test/": captchaFormPage})
	}}
	d := testDeps(f, nil)
	d.Sessions = s.open
	e := New(d)

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hi"})

	assert.Equal(t, model.ReasonCaptchaUnsolved, a.Reason)
	require.Len(t, s.opened, 1)
	assert.Empty(t, s.opened[0].Filled)
	assert.Empty(t, s.opened[0].Clicks)
	assert.Equal(t, int32(1), s.released.Load())
}

func TestDiscoverAndSubmit_NoCandidate(t *testing.T) {
	t.Parallel()

	client := &stubSender{}
	e := New(testDeps(newStubFetcher(map[string]string{"https://acme.test/": emptyPage}), client))

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hi"})

	assert.Equal(t, model.OutcomeFailed, a.Outcome)
	assert.Equal(t, model.ReasonNoCandidateFound, a.Reason)
	assert.Nil(t, a.Target)
	assert.Equal(t, []model.State{model.StateFailed}, a.States)
	assert.Zero(t, client.hits.Load())
}

func TestDiscoverAndSubmit_FetchFailed(t *testing.T) {
	t.Parallel()

	e := New(testDeps(newStubFetcher(nil), nil))

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://down.test/", Message: "Hi"})
	assert.Equal(t, model.ReasonFetchFailed, a.Reason)
	assert.Contains(t, a.Error, "down.test")

	a = e.DiscoverAndSubmit(context.Background(), model.Site{Message: "Hi"})
	assert.Equal(t, model.ReasonFetchFailed, a.Reason)
}

func TestDiscoverAndSubmit_BrowserUnavailableFallsBackToHTTP(t *testing.T) {
	t.Parallel()

	f := newStubFetcher(map[string]string{"https://acme.test/": plainFormPage})
	client := &stubSender{body: `<p>Thank you for your message.</p>`}
	d := testDeps(f, client)
	d.Sessions = func(context.Context) (browser.Handle, func(), error) {
		return nil, nil, assert.AnError
	}
	e := New(d)

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hi"})
	assert.Equal(t, model.OutcomeSuccess, a.Outcome, a.Error)
	assert.Equal(t, model.MethodFormPost, a.MethodUsed)
}

type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, _ string) (*fetch.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDiscoverAndSubmit_Timeout(t *testing.T) {
	t.Parallel()

	d := testDeps(blockingFetcher{}, nil)
	d.SiteTimeout = 20 * time.Millisecond
	e := New(d)

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://slow.test/", Message: "Hi"})
	assert.Equal(t, model.OutcomeFailed, a.Outcome)
	assert.Equal(t, model.ReasonTimeout, a.Reason)
	assert.GreaterOrEqual(t, a.Elapsed, 20*time.Millisecond)
}

type panickingFetcher struct{}

func (panickingFetcher) Fetch(context.Context, string) (*fetch.Result, error) {
	panic("boom")
}

func TestDiscoverAndSubmit_RecoversPanic(t *testing.T) {
	t.Parallel()

	rec := &mockRecorder{}
	rec.On("SaveAttempt", mock.Anything, mock.AnythingOfType("*model.SubmissionAttempt")).Return(nil).Once()
	d := testDeps(panickingFetcher{}, nil)
	d.Recorder = rec
	e := New(d)

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hi"})
	assert.Equal(t, model.OutcomeFailed, a.Outcome)
	assert.Contains(t, a.Error, "engine: panic: boom")
	rec.AssertExpectations(t)
}

func TestDiscoverAndSubmit_RecordsAndObserves(t *testing.T) {
	t.Parallel()

	rec := &mockRecorder{}
	rec.On("SaveAttempt", mock.Anything, mock.MatchedBy(func(a *model.SubmissionAttempt) bool {
		return a.SiteURL == "https://acme.test/" && a.Outcome == model.OutcomeSuccess
	})).Return(nil).Once()

	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)

	d := testDeps(newStubFetcher(map[string]string{"https://acme.test/": plainFormPage}), &stubSender{body: `<p>Message sent</p>`})
	d.Recorder = rec
	d.Metrics = m
	e := New(d)

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hi"})
	require.True(t, a.Succeeded(), a.Error)

	rec.AssertExpectations(t)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("success", "form_post")), 0.001)
	assert.InDelta(t, 0, testutil.ToFloat64(m.InFlight), 0.001)
}

func TestDiscoverAndSubmit_RecorderFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	rec := &mockRecorder{}
	rec.On("SaveAttempt", mock.Anything, mock.Anything).Return(assert.AnError)
	d := testDeps(newStubFetcher(map[string]string{"https://acme.test/": emptyPage}), nil)
	d.Recorder = rec
	e := New(d)

	a := e.DiscoverAndSubmit(context.Background(), model.Site{URL: "https://acme.test/", Message: "Hi"})
	assert.Equal(t, model.ReasonNoCandidateFound, a.Reason)
	rec.AssertNumberOfCalls(t, "SaveAttempt", 1)
}

func TestDiscoverAndSubmit_AnalysisCache(t *testing.T) {
	t.Parallel()

	f := newStubFetcher(map[string]string{"https://acme.test/": plainFormPage})
	client := &stubSender{body: `<p>Thank you for your message.</p>`}
	d := testDeps(f, client)
	d.Cache = cache.NewMemory(10, time.Hour)
	e := New(d)

	site := model.Site{URL: "https://acme.test/", Message: "Hi"}
	first := e.DiscoverAndSubmit(context.Background(), site)
	second := e.DiscoverAndSubmit(context.Background(), site)

	assert.Equal(t, 1, f.count("https://acme.test/"))
	assert.Equal(t, first.Outcome, second.Outcome)
	require.NotNil(t, second.Target)
	assert.Equal(t, first.Target.Selector, second.Target.Selector)
	// The cached candidate keeps its form markup, so mapping still runs.
	assert.Equal(t, first.FieldsFilled, second.FieldsFilled)
	assert.Equal(t, int32(2), client.hits.Load())
}

func batchSites() []model.Site {
	return []model.Site{
		{URL: "https://form.test/", Message: "Hi"},
		{URL: "https://empty.test/", Message: "Hi"},
		{URL: "https://captcha.test/", Message: "Hi"},
		{URL: "https://down.test/", Message: "Hi"},
	}
}

func batchFetcher() *stubFetcher {
	return newStubFetcher(map[string]string{
		"https://form.test/":    plainFormPage,
		"https://empty.test/":   emptyPage,
		"https://captcha.test/": captchaFormPage,
	})
}

func TestSubmitBatch_OrderAndOutcomes(t *testing.T) {
	t.Parallel()

	e := New(testDeps(batchFetcher(), &stubSender{body: `<p>Thank you for your message.</p>`}))
	sites := batchSites()

	got := e.SubmitBatch(context.Background(), sites, 2)
	require.Len(t, got, len(sites))
	for i, a := range got {
		assert.Equal(t, sites[i].URL, a.SiteURL)
	}
	assert.Equal(t, model.OutcomeSuccess, got[0].Outcome)
	assert.Equal(t, model.ReasonNoCandidateFound, got[1].Reason)
	assert.Equal(t, model.ReasonCaptchaUnsolved, got[2].Reason)
	assert.Equal(t, model.ReasonFetchFailed, got[3].Reason)
}

func TestSubmitBatch_Idempotent(t *testing.T) {
	t.Parallel()

	e := New(testDeps(batchFetcher(), &stubSender{body: `<p>Thank you for your message.</p>`}))

	first := e.SubmitBatch(context.Background(), batchSites(), 0)
	second := e.SubmitBatch(context.Background(), batchSites(), 0)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Outcome, second[i].Outcome)
		assert.Equal(t, first[i].Reason, second[i].Reason)
		assert.Equal(t, first[i].MethodUsed, second[i].MethodUsed)
		assert.NotEqual(t, first[i].ID, second[i].ID)
	}
}

func TestSubmitBatch_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(testDeps(batchFetcher(), nil))
	got := e.SubmitBatch(ctx, batchSites(), 1)
	require.Len(t, got, 4)
	for _, a := range got {
		assert.Equal(t, model.OutcomeFailed, a.Outcome)
		assert.Equal(t, model.ReasonCancelled, a.Reason)
	}
}

func TestSubmitBatch_Empty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, New(testDeps(batchFetcher(), nil)).SubmitBatch(context.Background(), nil, 4))
}

func TestCollector(t *testing.T) {
	t.Parallel()

	c := NewCollector(3)
	c.Put(2, model.SubmissionAttempt{SiteURL: "c", Outcome: model.OutcomeSuccess})
	c.Put(0, model.SubmissionAttempt{SiteURL: "a", Outcome: model.OutcomeFailed})
	c.Put(0, model.SubmissionAttempt{SiteURL: "a2", Outcome: model.OutcomeSuccess})
	c.Put(7, model.SubmissionAttempt{SiteURL: "out of range"})

	assert.Equal(t, []int{1}, c.missing())
	res := c.Results()
	assert.Equal(t, "a", res[0].SiteURL)
	assert.Equal(t, "c", res[2].SiteURL)
	assert.Equal(t, 1, c.Count(model.OutcomeSuccess))
	assert.Equal(t, 1, c.Count(model.OutcomeFailed))
}

func TestHostLimiter(t *testing.T) {
	t.Parallel()

	var nilLimiter *HostLimiter
	require.NoError(t, nilLimiter.Wait(context.Background(), "acme.test"))

	l := NewHostLimiter(0, 0)
	for range 5 {
		require.NoError(t, l.Wait(context.Background(), "acme.test"))
	}
	require.NoError(t, l.Wait(context.Background(), "other.test"))
	require.NoError(t, l.Wait(context.Background(), ""))
	assert.Equal(t, 2, l.Hosts())
}

func TestHostLimiter_PacesSameHost(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(20, 0)
	start := time.Now()
	for range 3 {
		require.NoError(t, l.Wait(context.Background(), "acme.test"))
	}
	// Burst of one, then two waits of 50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestHostLimiter_HonoursContext(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(0.001, 0)
	require.NoError(t, l.Wait(context.Background(), "acme.test"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "acme.test"))
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "page:https://acme.test/", cacheKey("https://acme.test/", false))
	assert.Equal(t, "explicit:https://acme.test/", cacheKey("https://acme.test/", true))
	assert.True(t, strings.HasPrefix(cacheKey("x", true), "explicit:"))
}

func TestPageCodecKeepsFormMarkup(t *testing.T) {
	t.Parallel()

	res, err := discovery.Page(plainFormPage, "https://acme.test/", discovery.Options{})
	require.NoError(t, err)
	p := &page{URL: "https://acme.test/", HTML: plainFormPage, Method: fetch.MethodHTTP, Result: res}

	data, err := encodePage(p)
	require.NoError(t, err)
	got, err := decodePage(data)
	require.NoError(t, err)

	require.Len(t, got.Result.Candidates, len(res.Candidates))
	assert.Equal(t, res.Candidates[0].FormHTML, got.Result.Candidates[0].FormHTML)
	assert.Equal(t, p.HTML, got.HTML)
}
