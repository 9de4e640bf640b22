// Package captcha detects challenge widgets on a page and clears them where possible.
package captcha

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Type is a challenge family.
type Type string

const (
	TypeRecaptchaV2 Type = "recaptcha_v2"
	TypeRecaptchaV3 Type = "recaptcha_v3"
	TypeHCaptcha    Type = "hcaptcha"
	TypeTurnstile   Type = "turnstile"
	TypeImage       Type = "image"
)

// Invisible reports whether the challenge issues tokens without user interaction.
func (t Type) Invisible() bool {
	return t == TypeRecaptchaV3 || t == TypeTurnstile
}

// ResponseField is the hidden input the widget writes its token into.
func (t Type) ResponseField() string {
	switch t {
	case TypeRecaptchaV2, TypeRecaptchaV3:
		return "g-recaptcha-response"
	case TypeHCaptcha:
		return "h-captcha-response"
	case TypeTurnstile:
		return "cf-turnstile-response"
	}
	return ""
}

// priority orders types when a page carries several; interactive challenges come first.
var priority = []Type{TypeRecaptchaV2, TypeHCaptcha, TypeTurnstile, TypeImage, TypeRecaptchaV3}

// Detection describes the challenges found on a page.
type Detection struct {
	Detected bool
	// Type is the challenge that gates submission.
	Type      Type
	Selectors []string
	SiteKey   string
	// Challenges lists every family seen, in priority order.
	Challenges []Type
	PageURL    string
}

// Detector finds challenge widgets in page markup.
type Detector struct{}

type finding struct {
	selectors []string
	siteKey   string
}

// Detect inspects html for reCAPTCHA (v2 and v3), hCaptcha, Turnstile and image challenges.
func (Detector) Detect(html, pageURL string) Detection {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detection{PageURL: pageURL}
	}

	found := map[Type]*finding{}
	add := func(t Type, selector, siteKey string) {
		f, ok := found[t]
		if !ok {
			f = &finding{}
			found[t] = f
		}
		f.selectors = append(f.selectors, selector)
		if f.siteKey == "" {
			f.siteKey = siteKey
		}
	}

	doc.Find(".g-recaptcha, [data-sitekey]").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("data-sitekey", "")
		switch {
		case s.HasClass("h-captcha"):
			add(TypeHCaptcha, ".h-captcha", key)
		case s.HasClass("cf-turnstile"):
			add(TypeTurnstile, ".cf-turnstile", key)
		case strings.EqualFold(s.AttrOr("data-size", ""), "invisible"):
			add(TypeRecaptchaV3, ".g-recaptcha[data-size=invisible]", key)
		case s.HasClass("g-recaptcha"):
			add(TypeRecaptchaV2, ".g-recaptcha", key)
		}
	})
	doc.Find(".h-captcha").Each(func(_ int, s *goquery.Selection) {
		add(TypeHCaptcha, ".h-captcha", s.AttrOr("data-sitekey", ""))
	})
	doc.Find(".cf-turnstile").Each(func(_ int, s *goquery.Selection) {
		add(TypeTurnstile, ".cf-turnstile", s.AttrOr("data-sitekey", ""))
	})

	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		raw := s.AttrOr("src", "")
		src := strings.ToLower(raw)
		switch {
		case strings.Contains(src, "recaptcha/api2/anchor") || strings.Contains(src, "recaptcha/enterprise/anchor"):
			if strings.Contains(src, "size=invisible") {
				add(TypeRecaptchaV3, `iframe[src*="recaptcha"]`, queryParam(raw, "k"))
			} else {
				add(TypeRecaptchaV2, `iframe[src*="recaptcha"]`, queryParam(raw, "k"))
			}
		case strings.Contains(src, "hcaptcha.com"):
			add(TypeHCaptcha, `iframe[src*="hcaptcha"]`, queryParam(raw, "sitekey"))
		case strings.Contains(src, "challenges.cloudflare.com"):
			add(TypeTurnstile, `iframe[src*="challenges.cloudflare.com"]`, "")
		}
	})

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		lower := strings.ToLower(src)
		switch {
		case strings.Contains(lower, "recaptcha/api.js") || strings.Contains(lower, "recaptcha/enterprise.js"):
			if render := queryParam(src, "render"); render != "" && render != "explicit" {
				add(TypeRecaptchaV3, `script[src*="recaptcha"]`, render)
			}
		case strings.Contains(lower, "hcaptcha.com/1/api.js"):
			if _, ok := found[TypeHCaptcha]; !ok {
				add(TypeHCaptcha, `script[src*="hcaptcha"]`, "")
			}
		case strings.Contains(lower, "challenges.cloudflare.com/turnstile"):
			if _, ok := found[TypeTurnstile]; !ok {
				add(TypeTurnstile, `script[src*="turnstile"]`, "")
			}
		}
	})

	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		if strings.Contains(s.Text(), "grecaptcha.execute(") {
			add(TypeRecaptchaV3, "script", "")
		}
	})

	doc.Find("img, input").Each(func(_ int, s *goquery.Selection) {
		attrs := strings.ToLower(s.AttrOr("src", "") + " " + s.AttrOr("id", "") + " " + s.AttrOr("name", "") + " " + s.AttrOr("alt", "") + " " + s.AttrOr("class", ""))
		if !strings.Contains(attrs, "captcha") || strings.Contains(attrs, "recaptcha") ||
			strings.Contains(attrs, "hcaptcha") || strings.Contains(attrs, "turnstile") {
			return
		}
		if goquery.NodeName(s) == "input" && strings.EqualFold(s.AttrOr("type", ""), "hidden") {
			return
		}
		add(TypeImage, goquery.NodeName(s)+`[`+captchaAttr(s)+`]`, "")
	})

	d := Detection{PageURL: pageURL}
	for _, t := range priority {
		f, ok := found[t]
		if !ok {
			continue
		}
		d.Challenges = append(d.Challenges, t)
		if !d.Detected {
			d.Detected = true
			d.Type = t
			d.Selectors = dedupe(f.selectors)
			d.SiteKey = f.siteKey
		}
	}
	return d
}

func captchaAttr(s *goquery.Selection) string {
	for _, a := range []string{"name", "id", "src", "alt", "class"} {
		if v := s.AttrOr(a, ""); strings.Contains(strings.ToLower(v), "captcha") {
			return a + `*="captcha"`
		}
	}
	return "captcha"
}

func queryParam(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
