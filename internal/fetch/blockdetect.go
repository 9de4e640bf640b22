package fetch

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// interstitialMax bounds the size of a page that can be a challenge interstitial.
// Larger pages carrying a captcha widget are ordinary pages with a protected form.
const interstitialMax = 8000

var interstitialPhrases = []string{
	"verify you are human",
	"are you a robot",
	"security check",
	"unusual traffic",
	"pardon our interruption",
	"complete the captcha",
	"complete the recaptcha",
	"press and hold",
}

// DetectBlock checks a response for signs of anti-bot protection.
func DetectBlock(statusCode int, header http.Header, body []byte) (bool, BlockType) {
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "__cf_chl") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") && len(body) < interstitialMax) {
		return true, BlockCloudflare
	}

	if len(body) < interstitialMax && strings.Contains(lower, "captcha") {
		for _, p := range interstitialPhrases {
			if strings.Contains(lower, p) {
				return true, BlockCaptcha
			}
		}
	}

	// JS-only shell: tiny body that asks for javascript or bounces via meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `<div id="root"></div>`) || strings.Contains(lower, `<div id="app"></div>`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
