package sparkpost

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	sp "github.com/SparkPost/gosparkpost"

	"github.com/sendforge/dispatch/internal/core"
)

const (
	defaultBaseURL = "https://api.sparkpost.com"
	requestTimeout = 30 * time.Second
)

// Adapter implements the core.Adapter interface for SparkPost.
type Adapter struct {
	httpClient *http.Client
}

// New creates the SparkPost adapter.
func New() core.Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Name returns the provider type tag.
func (a *Adapter) Name() string {
	return "sparkpost"
}

// Send sends a single email using the SparkPost transmissions API.
func (a *Adapter) Send(ctx context.Context, email *core.Email, settings core.ProviderSettings) (*core.SendResult, error) {
	if err := email.Validate(); err != nil {
		return nil, err
	}

	client, err := a.newClient(settings)
	if err != nil {
		return nil, err
	}

	content := sp.Content{
		From: sp.Address{
			Email: email.From.Email,
			Name:  email.From.Name,
		},
		Subject: email.Subject,
		HTML:    email.HTMLBody,
		Text:    email.TextBody,
	}
	if len(email.Headers) > 0 {
		content.Headers = email.Headers
	}
	if !email.ReplyTo.IsZero() {
		content.ReplyTo = email.ReplyTo.String()
	}
	for _, att := range email.Attachments {
		content.Attachments = append(content.Attachments, sp.Attachment{
			MIMEType: att.DetectContentType(),
			Filename: att.Filename,
			B64Data:  base64.StdEncoding.EncodeToString(att.Data),
		})
	}

	recipients := make([]sp.Recipient, 0, email.TotalRecipients())
	for _, addr := range email.AllRecipients() {
		recipients = append(recipients, sp.Recipient{
			Address: sp.Address{Email: addr.Email, Name: addr.Name},
		})
	}

	transmission := &sp.Transmission{
		Recipients: recipients,
		Content:    content,
	}
	if len(email.Tags) > 0 {
		transmission.CampaignID = email.Tags[0]
	}
	if len(email.Metadata) > 0 {
		metadata := make(map[string]interface{}, len(email.Metadata))
		for key, value := range email.Metadata {
			metadata[key] = value
		}
		transmission.Metadata = metadata
	}

	id, _, err := client.SendContext(ctx, transmission)
	if err != nil {
		return nil, core.NewProviderError("sparkpost", "send_error", "failed to send transmission: "+err.Error())
	}

	return &core.SendResult{
		Success:   true,
		MessageID: id,
		Provider:  a.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig probes the account endpoint, which is read-only.
func (a *Adapter) ValidateConfig(ctx context.Context, settings core.ProviderSettings) error {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return core.NewValidationError("api_key", "SparkPost API key is required")
	}

	baseURL := settings.Get("base_url")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/account", nil)
	if err != nil {
		return core.NewProviderError("sparkpost", "request_error", err.Error())
	}
	req.Header.Set("Authorization", apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return core.NewProviderError("sparkpost", "auth_error", "failed to fetch account: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &core.ProviderError{
			Provider:   "sparkpost",
			Code:       "auth_error",
			Message:    fmt.Sprintf("credential check rejected: %s", string(body)),
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

// newClient builds a SparkPost client from the per-server settings.
func (a *Adapter) newClient(settings core.ProviderSettings) (*sp.Client, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "SparkPost API key is required")
	}

	cfg := &sp.Config{ApiKey: apiKey}
	if baseURL := settings.Get("base_url"); baseURL != "" {
		cfg.BaseUrl = baseURL
	}

	client := &sp.Client{}
	if err := client.Init(cfg); err != nil {
		return nil, core.NewProviderError("sparkpost", "config_error", "failed to initialize client: "+err.Error())
	}
	client.Client = a.httpClient

	return client, nil
}
