package discovery

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)

// ignoredEmailSuffixes catch asset names that look like addresses (logo@2x.png).
var ignoredEmailSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// ignoredLocalParts are never useful as a contact channel.
var ignoredLocalParts = []string{"noreply", "no-reply", "donotreply", "example", "wordpress", "sentry", "user", "email", "yourname", "name"}

// Emails returns contact addresses found in html: mailto links first, then
// addresses in visible text. Addresses on the page's own domain sort first.
func Emails(html, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	set := newEmailSet(hostOf(pageURL))
	doc.Find(`a[href^="mailto:"], a[href^="MAILTO:"]`).Each(func(_ int, s *goquery.Selection) {
		addr := strings.TrimPrefix(strings.TrimPrefix(s.AttrOr("href", ""), "mailto:"), "MAILTO:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if u, err := url.PathUnescape(addr); err == nil {
			addr = u
		}
		set.add(addr)
	})
	for _, m := range emailPattern.FindAllString(doc.Find("body").Text(), -1) {
		set.add(m)
	}
	return set.list()
}

type emailSet struct {
	mu    sync.Mutex
	host  string
	order []string
	seen  map[string]bool
}

func newEmailSet(host string) *emailSet {
	return &emailSet{host: strings.TrimPrefix(host, "www."), seen: map[string]bool{}}
}

func (e *emailSet) add(raw string) {
	addr := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".,;:<>()[]\"'"))
	if !emailPattern.MatchString(addr) || strings.Count(addr, "@") != 1 {
		return
	}
	for _, suf := range ignoredEmailSuffixes {
		if strings.HasSuffix(addr, suf) {
			return
		}
	}
	local := addr[:strings.IndexByte(addr, '@')]
	for _, l := range ignoredLocalParts {
		if local == l {
			return
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen[addr] {
		return
	}
	e.seen[addr] = true
	e.order = append(e.order, addr)
}

func (e *emailSet) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := append([]string(nil), e.order...)
	if e.host == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return sameDomain(out[i], e.host) && !sameDomain(out[j], e.host)
	})
	return out
}

func sameDomain(addr, host string) bool {
	d := addr[strings.IndexByte(addr, '@')+1:]
	return d == host || strings.HasSuffix(host, "."+d) || strings.HasSuffix(d, "."+host)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// EmailCrawler looks for contact addresses on a site's contact and about
// pages when the entry page itself lists none.
type EmailCrawler struct {
	UserAgent string
	Timeout   time.Duration
	// MaxPages bounds the pages visited per site.
	MaxPages int
	Delay    time.Duration
}

// NewEmailCrawler creates an EmailCrawler with defaults.
func NewEmailCrawler(userAgent string) *EmailCrawler {
	return &EmailCrawler{UserAgent: userAgent, Timeout: 15 * time.Second, MaxPages: 4, Delay: 500 * time.Millisecond}
}

// channelLinkTerms pick the links worth following for an address.
var channelLinkTerms = []string{"contact", "about", "impressum", "imprint", "team", "support", "kontakt"}

// Crawl visits startURL and up to MaxPages-1 contact-like pages on the same host.
func (c *EmailCrawler) Crawl(ctx context.Context, startURL string) ([]string, error) {
	host := hostOf(startURL)
	if host == "" {
		return nil, eris.Errorf("discovery: invalid url %q", startURL)
	}
	bare := strings.TrimPrefix(host, "www.")
	allowed := []string{bare, "www." + bare}
	if u, err := url.Parse(startURL); err == nil && u.Port() != "" {
		allowed = append(allowed, u.Host)
	}

	col := colly.NewCollector(
		colly.UserAgent(c.UserAgent),
		colly.AllowedDomains(allowed...),
		colly.MaxDepth(2),
	)
	col.SetRequestTimeout(c.Timeout)
	if err := col.Limit(&colly.LimitRule{DomainGlob: "*", Delay: c.Delay, RandomDelay: c.Delay}); err != nil {
		return nil, eris.Wrap(err, "discovery: colly limit")
	}

	set := newEmailSet(host)
	var mu sync.Mutex
	visited := 0

	col.OnRequest(func(r *colly.Request) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil || visited >= c.MaxPages {
			r.Abort()
			return
		}
		visited++
	})
	col.OnHTML(`a[href^="mailto:"]`, func(e *colly.HTMLElement) {
		addr := strings.TrimPrefix(e.Attr("href"), "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		set.add(addr)
	})
	col.OnHTML("body", func(e *colly.HTMLElement) {
		for _, m := range emailPattern.FindAllString(e.Text, -1) {
			set.add(m)
		}
	})
	col.OnHTML("a[href]", func(e *colly.HTMLElement) {
		text := strings.ToLower(e.Text + " " + e.Attr("href"))
		if containsAny(text, channelLinkTerms) {
			_ = e.Request.Visit(e.Attr("href"))
		}
	})
	col.OnError(func(r *colly.Response, err error) {
		zap.L().Debug("discovery: email crawl request failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err),
		)
	})

	if err := col.Visit(startURL); err != nil {
		return nil, eris.Wrapf(err, "discovery: crawl %s", startURL)
	}
	col.Wait()
	if err := ctx.Err(); err != nil {
		return set.list(), err
	}
	return set.list(), nil
}
