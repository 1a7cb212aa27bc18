package mailgun

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/sendforge/dispatch/internal/core"
)

// Adapter implements the core.Adapter interface for Mailgun.
type Adapter struct{}

// New creates the Mailgun adapter.
func New() core.Adapter {
	return &Adapter{}
}

// Name returns the provider type tag.
func (a *Adapter) Name() string {
	return "mailgun"
}

// Send sends a single email using the Mailgun messages API.
func (a *Adapter) Send(ctx context.Context, email *core.Email, settings core.ProviderSettings) (*core.SendResult, error) {
	if err := email.Validate(); err != nil {
		return nil, err
	}

	client, err := newClient(settings)
	if err != nil {
		return nil, err
	}

	message := mailgun.NewMessage(email.From.String(), email.Subject, email.TextBody, email.To[0].String())

	for i := 1; i < len(email.To); i++ {
		if err := message.AddRecipient(email.To[i].String()); err != nil {
			return nil, core.NewProviderError("mailgun", "recipient_add_failed",
				fmt.Sprintf("failed to add recipient %s: %v", email.To[i].String(), err))
		}
	}
	for _, cc := range email.CC {
		message.AddCC(cc.String())
	}
	for _, bcc := range email.BCC {
		message.AddBCC(bcc.String())
	}
	if !email.ReplyTo.IsZero() {
		message.SetReplyTo(email.ReplyTo.String())
	}

	if email.HTMLBody != "" {
		message.SetHTML(email.HTMLBody)
	}

	for key, value := range email.Headers {
		message.AddHeader(key, value)
	}
	for _, tag := range email.Tags {
		if err := message.AddTag(tag); err != nil {
			return nil, core.NewProviderError("mailgun", "tag_add_failed",
				fmt.Sprintf("failed to add tag %s: %v", tag, err))
		}
	}
	for key, value := range email.Metadata {
		if err := message.AddVariable(key, value); err != nil {
			return nil, core.NewProviderError("mailgun", "variable_add_failed",
				fmt.Sprintf("failed to add variable %s: %v", key, err))
		}
	}

	for _, att := range email.Attachments {
		message.AddBufferAttachment(att.Filename, att.Data)
	}

	_, id, err := client.Send(ctx, message)
	if err != nil {
		return nil, core.NewProviderError("mailgun", "send_failed", err.Error())
	}

	return &core.SendResult{
		Success:   true,
		MessageID: id,
		Provider:  a.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig probes the configured domain with a read-only domain fetch.
func (a *Adapter) ValidateConfig(ctx context.Context, settings core.ProviderSettings) error {
	client, err := newClient(settings)
	if err != nil {
		return err
	}

	if _, err := client.GetDomain(ctx, settings.Get("domain")); err != nil {
		return core.NewProviderError("mailgun", "auth_error", "failed to fetch domain: "+err.Error())
	}
	return nil
}

// newClient builds a Mailgun client from the per-server settings.
func newClient(settings core.ProviderSettings) (*mailgun.MailgunImpl, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "Mailgun API key is required")
	}
	domain := settings.Get("domain")
	if domain == "" {
		return nil, core.NewValidationError("domain", "Mailgun domain is required")
	}

	client := mailgun.NewMailgun(domain, apiKey)

	// EU accounts use a different API base.
	if baseURL := settings.Get("base_url"); baseURL != "" {
		client.SetAPIBase(baseURL)
	}

	return client, nil
}
