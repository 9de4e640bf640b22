package model

import "strings"

// Site is a single unit of work: one website to contact with one message.
type Site struct {
	URL string `json:"url"`
	// ContactURL is an explicitly supplied contact page (may be an About page).
	ContactURL      string `json:"contact_url,omitempty"`
	Message         string `json:"message"`
	BusinessContext string `json:"business_context,omitempty"`
	Subject         string `json:"subject,omitempty"`
}

// EntryURL returns the page discovery should start from.
func (s Site) EntryURL() string {
	if u := strings.TrimSpace(s.ContactURL); u != "" {
		return u
	}
	return strings.TrimSpace(s.URL)
}

// ExplicitContact reports whether the caller pointed at a specific contact page.
func (s Site) ExplicitContact() bool {
	return strings.TrimSpace(s.ContactURL) != ""
}

// Sender is the identity used to fill contact forms.
type Sender struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Email   string `json:"email" yaml:"email" mapstructure:"email"`
	Phone   string `json:"phone" yaml:"phone" mapstructure:"phone"`
	Company string `json:"company" yaml:"company" mapstructure:"company"`
	Website string `json:"website" yaml:"website" mapstructure:"website"`
}

// FirstName returns the first token of the sender name.
func (s Sender) FirstName() string {
	parts := strings.Fields(s.Name)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// LastName returns everything after the first token of the sender name.
func (s Sender) LastName() string {
	parts := strings.Fields(s.Name)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}
