package model

import "strings"

// NewsletterSubmissionInput is what a form handler hands to the persistence layer.
// Provider and Status are already resolved by the outbound email integration.
type NewsletterSubmissionInput struct {
	Email    string
	Source   string
	Provider string
	Status   string
	Error    string
}

type ContactSubmissionInput struct {
	Name     string
	Email    string
	Subject  string
	Message  string
	Provider string
	Status   string
	Error    string
}

type EmbedRequestSubmissionInput struct {
	Name           string
	Email          string
	Website        string
	Calculator     string
	CalculatorSlug string
	Notes          string
	Provider       string
	Status         string
	Error          string
}

// NormalizeEmail trims and lower-cases an address. Applying it twice is a no-op.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseProvider maps free text onto the known provider set; anything else is ProviderNone.
func ParseProvider(s string) Provider {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderMailchimp, ProviderConvertKit, ProviderResend:
		return p
	default:
		return ProviderNone
	}
}
