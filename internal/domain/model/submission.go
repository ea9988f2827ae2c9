package model

import "time"

// Driver はサブミッションの保存先バックエンドを表します。
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Provider is the outbound email provider that handled the form before it was recorded.
type Provider string

const (
	ProviderMailchimp  Provider = "mailchimp"
	ProviderConvertKit Provider = "convertkit"
	ProviderResend     Provider = "resend"
	ProviderNone       Provider = "none"
)

// NewsletterSubmission is one row of the newsletter_submissions ledger.
type NewsletterSubmission struct {
	Email     string    `json:"email"`
	Source    string    `json:"source"`
	Provider  Provider  `json:"provider"`
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

// ContactSubmission is one row of the contact_submissions ledger.
type ContactSubmission struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Provider  Provider  `json:"provider"`
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbedRequestSubmission is one row of the embed_request_submissions ledger.
type EmbedRequestSubmission struct {
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Website        string    `json:"website"`
	Calculator     string    `json:"calculator"`
	CalculatorSlug string    `json:"calculator_slug"`
	Notes          string    `json:"notes"`
	Provider       Provider  `json:"provider"`
	Status         string    `json:"status"`
	Error          string    `json:"error"`
	CreatedAt      time.Time `json:"created_at"`
}

// SubmissionCounts は各テーブルの件数です。取得失敗時はすべて 0（= 不明）になります。
type SubmissionCounts struct {
	Newsletter    int64 `json:"newsletter"`
	Contact       int64 `json:"contact"`
	EmbedRequests int64 `json:"embedRequests"`
}

// SaveResult is returned by every save operation; it never carries a Go error.
type SaveResult struct {
	Success bool   `json:"success"`
	Driver  Driver `json:"driver"`
	Error   string `json:"error,omitempty"`
}
