package core

import (
	"context"
	"fmt"
	"mime"
	"net/mail"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Adapter is the contract every provider implementation satisfies.
// Adapters are stateless across calls: all credentials and connection
// parameters arrive through the settings argument on every invocation,
// which lets a single adapter instance serve many tenant servers.
type Adapter interface {
	// Send performs exactly one delivery attempt against the provider.
	// It must validate the email structurally before any network I/O and
	// must never perform internal retries; failover is the caller's job.
	Send(ctx context.Context, email *Email, settings ProviderSettings) (*SendResult, error)

	// ValidateConfig checks that the settings are structurally complete
	// and, where the provider exposes a read-only endpoint, that the
	// credentials are usable. It must not send mail.
	ValidateConfig(ctx context.Context, settings ProviderSettings) error

	// Name returns the provider's type tag for identification and logging.
	Name() string
}

// ProviderSettings is the opaque credential/connection bundle attached to a
// sending server. Only the matching adapter interprets its keys.
type ProviderSettings map[string]string

// Get retrieves a configuration value by key.
func (ps ProviderSettings) Get(key string) string {
	return ps[key]
}

// Set sets a configuration value.
func (ps ProviderSettings) Set(key, value string) {
	ps[key] = value
}

// Address represents an email address with optional display name.
type Address struct {
	Name  string `json:"name"`  // Display name (optional)
	Email string `json:"email"` // Email address (required)
}

// String returns the formatted email address.
// If Name is provided, returns "Name <email@domain.com>",
// otherwise just "email@domain.com".
func (a Address) String() string {
	if a.Name != "" {
		return mime.QEncoding.Encode("UTF-8", a.Name) + " <" + a.Email + ">"
	}
	return a.Email
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Name == "" && a.Email == ""
}

// Valid checks if the address has a valid email format.
func (a Address) Valid() bool {
	if a.Email == "" {
		return false
	}
	_, err := mail.ParseAddress(a.String())
	return err == nil
}

// Attachment represents a file attachment included with the email.
type Attachment struct {
	// Filename is the name of the file as it will appear in the email.
	Filename string

	// ContentType is the MIME content type of the file.
	// If empty, it is detected from the filename extension.
	ContentType string

	// Data contains the file content.
	Data []byte
}

// DetectContentType returns the attachment's content type, falling back to
// extension-based detection when none was provided.
func (a *Attachment) DetectContentType() string {
	if a.ContentType != "" {
		return a.ContentType
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(a.Filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Email is the canonical outbound message handed to the dispatch core.
// It is provider-independent; each adapter maps it to its wire format.
type Email struct {
	From        Address           `json:"from"`        // Sender address
	ReplyTo     Address           `json:"reply_to"`    // Reply-To address (optional)
	To          []Address         `json:"to"`          // Primary recipients
	CC          []Address         `json:"cc"`          // Carbon copy recipients
	BCC         []Address         `json:"bcc"`         // Blind carbon copy recipients
	Subject     string            `json:"subject"`     // Email subject
	HTMLBody    string            `json:"html_body"`   // HTML body content
	TextBody    string            `json:"text_body"`   // Plain text body content
	Attachments []Attachment      `json:"attachments"` // File attachments
	Headers     map[string]string `json:"headers"`     // Custom headers, key case preserved
	Tags        []string          `json:"tags"`        // Provider-side categorization tags
	Metadata    map[string]string `json:"metadata"`    // Opaque key/value passed to the provider
}

// Validate checks if the email has valid structure and required fields.
// Every adapter calls this before touching the network; a validation
// failure is terminal and must never be retried on another server.
func (e *Email) Validate() error {
	if !e.From.Valid() {
		return &ValidationError{Field: "from", Message: "invalid or missing sender address"}
	}

	if len(e.To) == 0 {
		return &ValidationError{Field: "to", Message: "at least one recipient required"}
	}

	for i, to := range e.To {
		if !to.Valid() {
			return &ValidationError{
				Field:   "to",
				Message: "invalid recipient address at index " + strconv.Itoa(i),
			}
		}
	}

	for i, cc := range e.CC {
		if !cc.Valid() {
			return &ValidationError{
				Field:   "cc",
				Message: "invalid CC address at index " + strconv.Itoa(i),
			}
		}
	}

	for i, bcc := range e.BCC {
		if !bcc.Valid() {
			return &ValidationError{
				Field:   "bcc",
				Message: "invalid BCC address at index " + strconv.Itoa(i),
			}
		}
	}

	if !e.ReplyTo.IsZero() && !e.ReplyTo.Valid() {
		return &ValidationError{Field: "reply_to", Message: "invalid reply-to address"}
	}

	if strings.TrimSpace(e.Subject) == "" {
		return &ValidationError{Field: "subject", Message: "subject is required"}
	}

	if strings.TrimSpace(e.TextBody) == "" && strings.TrimSpace(e.HTMLBody) == "" {
		return &ValidationError{Field: "body", Message: "either text or HTML body is required"}
	}

	return nil
}

// HasAttachments returns true if the email has any attachments.
func (e *Email) HasAttachments() bool {
	return len(e.Attachments) > 0
}

// TotalRecipients returns the total number of recipients (To + CC + BCC).
func (e *Email) TotalRecipients() int {
	return len(e.To) + len(e.CC) + len(e.BCC)
}

// AllRecipients returns all recipients combined into a single slice.
func (e *Email) AllRecipients() []Address {
	all := make([]Address, 0, e.TotalRecipients())
	all = append(all, e.To...)
	all = append(all, e.CC...)
	all = append(all, e.BCC...)
	return all
}

// RecipientEmails returns the bare addresses of every recipient.
func (e *Email) RecipientEmails() []string {
	all := e.AllRecipients()
	out := make([]string, len(all))
	for i, a := range all {
		out[i] = a.Email
	}
	return out
}

// SendResult is the structured outcome of one delivery attempt. It is the
// only error information that crosses the dispatch boundary.
type SendResult struct {
	// Success reports whether the provider accepted the message.
	Success bool `json:"success"`

	// MessageID is the identifier assigned by the provider on success.
	MessageID string `json:"message_id,omitempty"`

	// Error holds a human-readable failure description when Success is false.
	Error string `json:"error,omitempty"`

	// Provider is the type tag of the server that produced this result,
	// or "none" when no server was available at all.
	Provider string `json:"provider"`

	// Timestamp is when the attempt completed.
	Timestamp time.Time `json:"timestamp"`
}

// ValidationError represents a validation error with specific field information.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string

	// Value is the invalid value (optional).
	Value interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error in %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ProviderError represents an error reported by an email provider or its
// transport.
type ProviderError struct {
	// Provider is the name of the provider that generated the error.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is the error message from the provider.
	Message string

	// StatusCode is the HTTP status code (for HTTP-based providers).
	StatusCode int

	// Cause is the underlying error that caused this provider error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s error [%s] (status: %d): %s",
			e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s error [%s]: %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *ProviderError) Is(target error) bool {
	pe, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Provider == pe.Provider && e.Code == pe.Code
}

// NewProviderError creates a new provider error.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorWithValue creates a new validation error with a value.
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
