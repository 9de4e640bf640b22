package submit

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/fetch"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/verify"
)

// Sender sends a single request without retry. *fetch.HTTPFetcher implements it.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*fetch.Response, error)
}

// FormPost submits the payload to the form's action URL the way a browser would.
type FormPost struct {
	Client   Sender
	Verifier *verify.Verifier
}

// Method implements Strategy.
func (FormPost) Method() model.Method { return model.MethodFormPost }

// Applicable implements Strategy.
func (s FormPost) Applicable(p *Plan, _ browser.Handle) bool {
	return s.Client != nil && postable(p)
}

// Execute implements Strategy.
func (s FormPost) Execute(ctx context.Context, p *Plan, _ browser.Handle) (verify.Verdict, error) {
	req, err := buildRequest(ctx, p, p.Target.Method, p.Target.Target, enctype(p.Target.FormHTML))
	if err != nil {
		return verify.Verdict{}, err
	}
	setOrigin(req, p.Target.PageURL)
	return s.send(req, p)
}

func (s FormPost) send(req *http.Request, p *Plan) (verify.Verdict, error) {
	resp, err := s.Client.Send(req.Context(), req)
	if err != nil {
		return verify.Verdict{}, eris.Wrap(err, "submit: send")
	}
	p.Sent = true
	return s.Verifier.Classify(verify.Signals{
		Before:     req.URL.String(),
		After:      resp.FinalURL,
		Body:       string(resp.Body),
		Baseline:   p.PageHTML,
		StatusCode: resp.StatusCode,
		Filled:     len(p.Filled),
	}), nil
}

// AjaxPost posts the payload the way a form plugin's script would.
// Contact Form 7 forms are sent to their REST feedback endpoint.
type AjaxPost struct {
	Client   Sender
	Verifier *verify.Verifier
}

// Method implements Strategy.
func (AjaxPost) Method() model.Method { return model.MethodAjaxPost }

// Applicable implements Strategy.
func (s AjaxPost) Applicable(p *Plan, _ browser.Handle) bool {
	return s.Client != nil && postable(p)
}

// Execute implements Strategy.
func (s AjaxPost) Execute(ctx context.Context, p *Plan, _ browser.Handle) (verify.Verdict, error) {
	endpoint := ajaxEndpoint(p)
	enc := "application/x-www-form-urlencoded"
	if endpoint != p.Target.Target {
		enc = "multipart/form-data"
	}
	req, err := buildRequest(ctx, p, http.MethodPost, endpoint, enc)
	if err != nil {
		return verify.Verdict{}, err
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	setOrigin(req, p.Target.PageURL)
	return FormPost{Client: s.Client, Verifier: s.Verifier}.send(req, p)
}

// postable reports whether the target carries a form and somewhere to send it.
func postable(p *Plan) bool {
	if p.Target.FormHTML == "" || p.Target.Target == "" {
		return false
	}
	u, err := url.Parse(p.Target.Target)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// buildRequest encodes the payload for the target's method: GET puts it in
// the query string, everything else in the body.
func buildRequest(ctx context.Context, p *Plan, method, target, enc string) (*http.Request, error) {
	payload := p.Payload()
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	if method == http.MethodGet {
		u, err := url.Parse(target)
		if err != nil {
			return nil, eris.Wrapf(err, "submit: parse action %q", target)
		}
		q := u.Query()
		for k, vs := range payload {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		return req, eris.Wrap(err, "submit: build request")
	}

	var body io.Reader
	contentType := "application/x-www-form-urlencoded"
	if strings.HasPrefix(enc, "multipart/") {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		for k, vs := range payload {
			for _, v := range vs {
				if err := mw.WriteField(k, v); err != nil {
					return nil, eris.Wrap(err, "submit: write multipart field")
				}
			}
		}
		if err := mw.Close(); err != nil {
			return nil, eris.Wrap(err, "submit: close multipart")
		}
		body = buf
		contentType = mw.FormDataContentType()
	} else {
		body = strings.NewReader(payload.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, eris.Wrap(err, "submit: build request")
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

func enctype(formHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(formHTML))
	if err != nil {
		return ""
	}
	return strings.ToLower(doc.Find("form").First().AttrOr("enctype", ""))
}

var cf7Unit = regexp.MustCompile(`^\d+$`)

// ajaxEndpoint returns the Contact Form 7 REST endpoint when the payload
// carries its form id, otherwise the form action.
func ajaxEndpoint(p *Plan) string {
	id := p.Values["_wpcf7"]
	if id == "" || !cf7Unit.MatchString(id) {
		return p.Target.Target
	}
	u, err := url.Parse(p.Target.Target)
	if err != nil {
		return p.Target.Target
	}
	return u.Scheme + "://" + u.Host + "/wp-json/contact-form-7/v1/contact-forms/" + id + "/feedback"
}

func setOrigin(req *http.Request, pageURL string) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return
	}
	req.Header.Set("Origin", u.Scheme+"://"+u.Host)
	req.Header.Set("Referer", pageURL)
}
