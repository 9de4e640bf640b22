// Package fetch retrieves page HTML, escalating from plain HTTP through URL
// variants to a rendered browser load and an optional reader proxy.
package fetch

import (
	"context"
	"fmt"
	"strings"
)

// Method names the fetch step that produced a result.
type Method string

const (
	MethodHTTP        Method = "http"
	MethodHTTPVariant Method = "http_variant"
	MethodBrowser     Method = "browser"
	MethodReader      Method = "reader"
)

// Result is a successfully fetched page.
type Result struct {
	Success    bool
	HTML       string
	FinalURL   string
	Method     Method
	StatusCode int
}

// Fetcher fetches a page by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Renderer produces the settled DOM for a URL. Implemented by the browser
// launcher and the reader proxy adapter.
type Renderer interface {
	Render(ctx context.Context, url string) (html string, finalURL string, err error)
}

// Attempt records one failed fetch step.
type Attempt struct {
	URL    string
	Method Method
	Reason string
}

// FetchError lists every attempt made for a URL.
type FetchError struct {
	URL      string
	Attempts []Attempt
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s %s: %s", a.Method, a.URL, a.Reason))
	}
	return fmt.Sprintf("fetch: all attempts failed for %s [%s]", e.URL, strings.Join(parts, "; "))
}

func (e *FetchError) add(url string, m Method, reason string) {
	e.Attempts = append(e.Attempts, Attempt{URL: url, Method: m, Reason: reason})
}
