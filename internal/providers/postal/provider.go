package postal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sendforge/dispatch/internal/core"
)

const requestTimeout = 30 * time.Second

// Adapter implements the core.Adapter interface for self-hosted Postal
// servers via the /api/v1/send/message endpoint.
type Adapter struct {
	httpClient *http.Client
}

// New creates the Postal adapter.
func New() core.Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Name returns the provider type tag.
func (a *Adapter) Name() string {
	return "postal"
}

type sendRequest struct {
	To          []string          `json:"to"`
	CC          []string          `json:"cc,omitempty"`
	BCC         []string          `json:"bcc,omitempty"`
	From        string            `json:"from"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	HTMLBody    string            `json:"html_body,omitempty"`
	PlainBody   string            `json:"plain_body,omitempty"`
	Tag         string            `json:"tag,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []attachment      `json:"attachments,omitempty"`
}

type attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

type sendResponse struct {
	Status string `json:"status"`
	Data   struct {
		MessageID string `json:"message_id"`
		Code      string `json:"code"`
		Message   string `json:"message"`
	} `json:"data"`
}

// Send sends a single email through the Postal message API.
func (a *Adapter) Send(ctx context.Context, email *core.Email, settings core.ProviderSettings) (*core.SendResult, error) {
	if err := email.Validate(); err != nil {
		return nil, err
	}
	endpoint, apiKey, err := connection(settings)
	if err != nil {
		return nil, err
	}

	payload := sendRequest{
		To:        addressStrings(email.To),
		CC:        addressStrings(email.CC),
		BCC:       addressStrings(email.BCC),
		From:      email.From.String(),
		Subject:   email.Subject,
		HTMLBody:  email.HTMLBody,
		PlainBody: email.TextBody,
		Headers:   email.Headers,
	}
	if !email.ReplyTo.IsZero() {
		payload.ReplyTo = email.ReplyTo.String()
	}
	if len(email.Tags) > 0 {
		payload.Tag = email.Tags[0]
	}
	for _, att := range email.Attachments {
		payload.Attachments = append(payload.Attachments, attachment{
			Name:        att.Filename,
			ContentType: att.DetectContentType(),
			Data:        base64.StdEncoding.EncodeToString(att.Data),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewProviderError("postal", "encode_error", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/v1/send/message", bytes.NewReader(body))
	if err != nil {
		return nil, core.NewProviderError("postal", "request_error", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Server-API-Key", apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError("postal", "send_error", "request failed: "+err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.NewProviderError("postal", "send_error", "failed to read response: "+err.Error())
	}
	if resp.StatusCode >= 400 {
		return nil, &core.ProviderError{
			Provider:   "postal",
			Code:       "api_error",
			Message:    fmt.Sprintf("API error: %s", string(raw)),
			StatusCode: resp.StatusCode,
		}
	}

	var decoded sendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, core.NewProviderError("postal", "decode_error", "failed to decode response: "+err.Error())
	}
	if decoded.Status != "success" {
		message := decoded.Data.Message
		if message == "" {
			message = decoded.Data.Code
		}
		return nil, core.NewProviderError("postal", "api_error", message)
	}

	return &core.SendResult{
		Success:   true,
		MessageID: decoded.Data.MessageID,
		Provider:  a.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig checks the settings and that the Postal endpoint is
// reachable. The message API exposes no read-only credential check, so any
// HTTP answer from the server counts as reachable.
func (a *Adapter) ValidateConfig(ctx context.Context, settings core.ProviderSettings) error {
	endpoint, _, err := connection(settings)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return core.NewProviderError("postal", "request_error", err.Error())
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return core.NewProviderError("postal", "connect_error", "failed to reach server: "+err.Error())
	}
	resp.Body.Close()
	return nil
}

func connection(settings core.ProviderSettings) (endpoint, apiKey string, err error) {
	endpoint = strings.TrimSuffix(settings.Get("endpoint"), "/")
	if endpoint == "" {
		return "", "", core.NewValidationError("endpoint", "Postal server endpoint is required")
	}
	apiKey = settings.Get("api_key")
	if apiKey == "" {
		return "", "", core.NewValidationError("api_key", "Postal server API key is required")
	}
	return endpoint, apiKey, nil
}

func addressStrings(addrs []core.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
