package fetch

import (
	"net/url"
	"strings"
)

// Variants returns alternative spellings of rawURL: toggled www. prefix,
// toggled scheme, and both. The input itself is not included.
func Variants(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	toggleWWW := func(v url.URL) url.URL {
		if strings.HasPrefix(v.Host, "www.") {
			v.Host = strings.TrimPrefix(v.Host, "www.")
		} else {
			v.Host = "www." + v.Host
		}
		return v
	}
	toggleScheme := func(v url.URL) url.URL {
		if v.Scheme == "https" {
			v.Scheme = "http"
		} else {
			v.Scheme = "https"
		}
		return v
	}

	base := *u
	w := toggleWWW(base)
	s := toggleScheme(base)
	ws := toggleScheme(w)

	seen := map[string]bool{u.String(): true}
	var out []string
	for _, v := range []url.URL{w, s, ws} {
		str := v.String()
		if !seen[str] {
			seen[str] = true
			out = append(out, str)
		}
	}
	return out
}

// Normalize adds an https scheme to bare hosts and trims whitespace.
func Normalize(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	return rawURL
}

// Host returns the lower-cased host of rawURL without a www. prefix.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
