package model

import "time"

// Method is the submission strategy that produced an attempt's outcome.
type Method string

const (
	MethodFormPost           Method = "form_post"
	MethodAjaxPost           Method = "ajax_post"
	MethodBrowserFillClick   Method = "browser_fill_click"
	MethodModal              Method = "modal"
	MethodAlternativeChannel Method = "alternative_channel"
)

// Outcome is the verified result of a submission.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeFailed        Outcome = "failed"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// State is a step of the per-site submission state machine.
type State string

const (
	StateDiscovered     State = "discovered"
	StateFieldsMapped   State = "fields_mapped"
	StateCaptchaCleared State = "captcha_cleared"
	StateCaptchaSkipped State = "captcha_skipped"
	StateSubmitted      State = "submitted"
	StateVerified       State = "verified"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// CaptchaInfo records what happened with a challenge on the target page.
type CaptchaInfo struct {
	Type       string        `json:"type"`
	Solved     bool          `json:"solved"`
	MethodUsed string        `json:"method_used,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// SubmissionAttempt is the per-site result returned to callers.
type SubmissionAttempt struct {
	ID           string            `json:"id"`
	SiteURL      string            `json:"site_url"`
	Target       *Candidate        `json:"target,omitempty"`
	FieldsFilled map[string]string `json:"fields_filled,omitempty"`
	MethodUsed   Method            `json:"method_used,omitempty"`
	Captcha      *CaptchaInfo      `json:"captcha,omitempty"`
	Outcome      Outcome           `json:"outcome"`
	Evidence     string            `json:"evidence,omitempty"`
	Elapsed      time.Duration     `json:"elapsed"`
	Reason       FailureReason     `json:"reason,omitempty"`
	Error        string            `json:"error,omitempty"`
	States       []State           `json:"states,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
}

// TargetURL returns the URL of the promoted candidate, falling back to the site URL.
func (a SubmissionAttempt) TargetURL() string {
	if a.Target != nil && a.Target.Target != "" {
		return a.Target.Target
	}
	return a.SiteURL
}

// Succeeded reports whether the attempt verified a successful submission.
func (a SubmissionAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// MaxEvidence caps evidence excerpts.
const MaxEvidence = 280

// Excerpt trims s to MaxEvidence runes.
func Excerpt(s string) string {
	r := []rune(s)
	if len(r) <= MaxEvidence {
		return s
	}
	return string(r[:MaxEvidence]) + "..."
}
