package discovery

import (
	"net/url"
	"strings"

	"github.com/sells-group/outreach-cli/internal/textnorm"
)

// weight is a keyword strength band. The same keyword scores differently
// depending on where it appears.
type weight struct {
	href, text, attr int
}

var (
	strong  = weight{href: 10, text: 8, attr: 6}
	medium  = weight{href: 10, text: 6, attr: 4}
	generic = weight{href: 10, text: 5, attr: 3}
)

type keywordBand struct {
	w        weight
	keywords []string
}

// contactBands are checked strongest first; an element scores from its best band only.
var contactBands = []keywordBand{
	{strong, []string{"contact", "contacto", "kontakt", "contactez"}},
	{medium, []string{"get in touch", "reach out", "reach us", "write to us", "message us", "talk to us", "enquire", "enquiry", "inquire", "inquiry", "inquiries", "enquiries"}},
	{generic, []string{"request a quote", "get a quote", "quote", "consultation", "book a call", "free estimate", "say hello", "support", "feedback", "hire us", "work with us"}},
}

// builderMarkers identify common form-builder plugins.
var builderMarkers = []string{
	"wpcf7", "wpforms", "gform", "nf-form", "ninja-forms", "elementor-form", "fluentform",
	"frm_forms", "frm-show-form", "et_pb_contact", "caldera", "hs-form", "hbspt", "formidable",
	"contact-form", "contactform", "jetpack-contact-form", "forminator",
}

const builderBonus = 5

// Forms with these markers are never contact entry points.
var (
	searchMarkers     = []string{"search", "searchform", "search-form"}
	newsletterMarkers = []string{"newsletter", "subscribe", "subscription", "mc4wp", "mc-embedded", "mailchimp", "signup", "sign-up", "klaviyo"}
	loginMarkers      = []string{"login", "log-in", "signin", "sign-in", "wp-login", "password", "register", "account"}
	commentMarkers    = []string{"comment", "commentform", "wp-comments-post", "reply"}
)

// aboutTerms drop a link or trigger unless discovery was pointed at the page explicitly.
var aboutTerms = []string{"about", "about us", "our team", "our story", "who we are"}

// neverTerms are excluded in every mode.
var neverTerms = []string{"privacy", "cookie", "terms", "careers", "jobs", "unsubscribe", "login", "sign in", "cart", "checkout"}

// widgetDomains host third-party survey, helpdesk and chat widgets.
var widgetDomains = []string{
	"typeform.com", "surveymonkey.com", "docs.google.com", "forms.gle", "jotform.com",
	"zendesk.com", "freshdesk.com", "intercom.io", "intercom.com", "drift.com", "tawk.to",
	"livechatinc.com", "crisp.chat", "hotjar.com", "usabilla.com", "qualtrics.com",
	"tidio.co", "olark.com", "zoho.com", "uservoice.com", "calendly.com",
}

// Modal-opening attributes.
var modalAttrs = []string{"data-toggle", "data-bs-toggle", "data-target", "data-bs-target", "data-modal", "data-popup", "data-fancybox", "data-micromodal-trigger", "aria-haspopup"}

// onclickKeywords mark handlers that open a contact surface.
var onclickKeywords = []string{"contact", "modal", "popup", "form", "dialog", "enquir", "inquir", "openform", "showform"}

// contactActionTokens mark form actions that post somewhere contact-shaped.
var contactActionTokens = []string{"contact", "enquir", "inquir", "message", "feedback", "wpcf7", "wpforms", "gform", "formspree", "hsforms", "admin-ajax", "getform", "basin", "formsubmit", "send", "mail"}

// bestBand returns the weight of the strongest band matching t, or false.
func bestBand(t textnorm.Text) (weight, bool) {
	for _, b := range contactBands {
		if t.HasAny(b.keywords...) {
			return b.w, true
		}
	}
	return weight{}, false
}

func containsAny(s string, subs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isWidgetURL reports whether raw points at a known third-party widget host.
func isWidgetURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range widgetDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// realAction reports whether a form action or href is a navigable URL.
func realAction(raw string) bool {
	raw = strings.TrimSpace(strings.ToLower(raw))
	return raw != "" && raw != "#" && !strings.HasPrefix(raw, "#") && !strings.HasPrefix(raw, "javascript:")
}
