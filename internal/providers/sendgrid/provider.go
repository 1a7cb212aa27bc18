package sendgrid

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/sendforge/dispatch/internal/core"
)

// Adapter implements the core.Adapter interface for SendGrid.
type Adapter struct{}

// New creates the SendGrid adapter.
func New() core.Adapter {
	return &Adapter{}
}

// Name returns the provider type tag.
func (a *Adapter) Name() string {
	return "sendgrid"
}

// Send sends a single email using the SendGrid v3 mail send API.
func (a *Adapter) Send(ctx context.Context, email *core.Email, settings core.ProviderSettings) (*core.SendResult, error) {
	if err := email.Validate(); err != nil {
		return nil, err
	}

	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "SendGrid API key is required")
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(email.From.Name, email.From.Email))
	message.Subject = email.Subject

	personalization := mail.NewPersonalization()
	for _, recipient := range email.To {
		personalization.AddTos(mail.NewEmail(recipient.Name, recipient.Email))
	}
	for _, recipient := range email.CC {
		personalization.AddCCs(mail.NewEmail(recipient.Name, recipient.Email))
	}
	for _, recipient := range email.BCC {
		personalization.AddBCCs(mail.NewEmail(recipient.Name, recipient.Email))
	}
	for key, value := range email.Metadata {
		personalization.SetCustomArg(key, value)
	}
	message.AddPersonalizations(personalization)

	// SendGrid requires text/plain content before text/html.
	if email.TextBody != "" {
		message.AddContent(mail.NewContent("text/plain", email.TextBody))
	}
	if email.HTMLBody != "" {
		message.AddContent(mail.NewContent("text/html", email.HTMLBody))
	}

	if !email.ReplyTo.IsZero() {
		message.SetReplyTo(mail.NewEmail(email.ReplyTo.Name, email.ReplyTo.Email))
	}

	if len(email.Headers) > 0 {
		if message.Headers == nil {
			message.Headers = make(map[string]string)
		}
		for key, value := range email.Headers {
			message.Headers[key] = value
		}
	}

	if len(email.Tags) > 0 {
		message.AddCategories(email.Tags...)
	}

	for _, att := range email.Attachments {
		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(att.Data))
		attachment.SetType(att.DetectContentType())
		attachment.SetFilename(att.Filename)
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
	}

	client := sendgrid.NewSendClient(apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return nil, core.NewProviderError("sendgrid", "send_error", "failed to send email: "+err.Error())
	}

	if response.StatusCode >= 400 {
		return nil, &core.ProviderError{
			Provider:   "sendgrid",
			Code:       "api_error",
			Message:    "SendGrid API error: " + response.Body,
			StatusCode: response.StatusCode,
		}
	}

	// SendGrid returns the message id in the X-Message-Id response header.
	messageID := "unknown"
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	return &core.SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  a.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig probes the account with a read-only profile fetch.
func (a *Adapter) ValidateConfig(ctx context.Context, settings core.ProviderSettings) error {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return core.NewValidationError("api_key", "SendGrid API key is required")
	}

	request := sendgrid.GetRequest(apiKey, "/v3/user/profile", "https://api.sendgrid.com")
	request.Method = "GET"

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return core.NewProviderError("sendgrid", "auth_error", "failed to fetch user profile: "+err.Error())
	}
	if response.StatusCode >= 400 {
		return &core.ProviderError{
			Provider:   "sendgrid",
			Code:       "auth_error",
			Message:    fmt.Sprintf("credential check rejected: %s", response.Body),
			StatusCode: response.StatusCode,
		}
	}
	return nil
}
