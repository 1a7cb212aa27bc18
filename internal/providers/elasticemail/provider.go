package elasticemail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sendforge/dispatch/internal/core"
)

const (
	defaultBaseURL = "https://api.elasticemail.com"
	requestTimeout = 30 * time.Second
)

// Adapter implements the core.Adapter interface for ElasticEmail using its
// v2 HTTP API. There is no maintained Go SDK, so the wire calls are built
// directly on net/http.
type Adapter struct {
	httpClient *http.Client
}

// New creates the ElasticEmail adapter.
func New() core.Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Name returns the provider type tag.
func (a *Adapter) Name() string {
	return "elastic_email"
}

// apiResponse is the envelope every v2 endpoint returns.
type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type sendData struct {
	TransactionID string `json:"transactionid"`
	MessageID     string `json:"messageid"`
}

// Send sends a single email via POST /v2/email/send. Messages with
// attachments go as multipart form data, plain sends as urlencoded forms.
func (a *Adapter) Send(ctx context.Context, email *core.Email, settings core.ProviderSettings) (*core.SendResult, error) {
	if err := email.Validate(); err != nil {
		return nil, err
	}

	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "ElasticEmail API key is required")
	}

	fields := url.Values{}
	fields.Set("apikey", apiKey)
	fields.Set("from", email.From.Email)
	if email.From.Name != "" {
		fields.Set("fromName", email.From.Name)
	}
	if !email.ReplyTo.IsZero() {
		fields.Set("replyTo", email.ReplyTo.Email)
		if email.ReplyTo.Name != "" {
			fields.Set("replyToName", email.ReplyTo.Name)
		}
	}
	fields.Set("subject", email.Subject)
	fields.Set("to", joinEmails(email.To))
	if len(email.CC) > 0 {
		fields.Set("msgCC", joinEmails(email.CC))
	}
	if len(email.BCC) > 0 {
		fields.Set("msgBcc", joinEmails(email.BCC))
	}
	if email.HTMLBody != "" {
		fields.Set("bodyHtml", email.HTMLBody)
	}
	if email.TextBody != "" {
		fields.Set("bodyText", email.TextBody)
	}
	fields.Set("isTransactional", "true")
	if len(email.Tags) > 0 {
		fields.Set("channel", email.Tags[0])
	}
	for key, value := range email.Headers {
		fields.Set("headers_"+key, key+": "+value)
	}

	req, err := a.buildSendRequest(ctx, settings, fields, email.Attachments)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError("elastic_email", "send_error", "request failed: "+err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.NewProviderError("elastic_email", "send_error", "failed to read response: "+err.Error())
	}
	if resp.StatusCode >= 400 {
		return nil, &core.ProviderError{
			Provider:   "elastic_email",
			Code:       "api_error",
			Message:    fmt.Sprintf("API error: %s", string(body)),
			StatusCode: resp.StatusCode,
		}
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, core.NewProviderError("elastic_email", "decode_error", "failed to decode response: "+err.Error())
	}
	if !envelope.Success {
		return nil, core.NewProviderError("elastic_email", "api_error", envelope.Error)
	}

	var data sendData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, core.NewProviderError("elastic_email", "decode_error", "failed to decode send data: "+err.Error())
	}
	messageID := data.MessageID
	if messageID == "" {
		messageID = data.TransactionID
	}

	return &core.SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  a.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig probes GET /v2/account/load, which is read-only.
func (a *Adapter) ValidateConfig(ctx context.Context, settings core.ProviderSettings) error {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return core.NewValidationError("api_key", "ElasticEmail API key is required")
	}

	endpoint := baseURL(settings) + "/v2/account/load?apikey=" + url.QueryEscape(apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.NewProviderError("elastic_email", "request_error", err.Error())
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return core.NewProviderError("elastic_email", "auth_error", "failed to load account: "+err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return &core.ProviderError{
			Provider:   "elastic_email",
			Code:       "auth_error",
			Message:    fmt.Sprintf("credential check rejected: %s", string(body)),
			StatusCode: resp.StatusCode,
		}
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.NewProviderError("elastic_email", "decode_error", "failed to decode response: "+err.Error())
	}
	if !envelope.Success {
		return core.NewProviderError("elastic_email", "auth_error", envelope.Error)
	}
	return nil
}

// buildSendRequest encodes the send call as multipart form data when
// attachments are present, urlencoded otherwise.
func (a *Adapter) buildSendRequest(ctx context.Context, settings core.ProviderSettings, fields url.Values, attachments []core.Attachment) (*http.Request, error) {
	endpoint := baseURL(settings) + "/v2/email/send"

	if len(attachments) == 0 {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(fields.Encode()))
		if err != nil {
			return nil, core.NewProviderError("elastic_email", "request_error", err.Error())
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for key, values := range fields {
		for _, value := range values {
			if err := mw.WriteField(key, value); err != nil {
				return nil, core.NewProviderError("elastic_email", "request_error", err.Error())
			}
		}
	}
	for i, att := range attachments {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file%s"; filename=%q`, strconv.Itoa(i+1), att.Filename))
		header.Set("Content-Type", att.DetectContentType())
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, core.NewProviderError("elastic_email", "request_error", err.Error())
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, core.NewProviderError("elastic_email", "request_error", err.Error())
		}
	}
	if err := mw.Close(); err != nil {
		return nil, core.NewProviderError("elastic_email", "request_error", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return nil, core.NewProviderError("elastic_email", "request_error", err.Error())
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func baseURL(settings core.ProviderSettings) string {
	if base := settings.Get("base_url"); base != "" {
		return strings.TrimSuffix(base, "/")
	}
	return defaultBaseURL
}

func joinEmails(addrs []core.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.Email
	}
	return strings.Join(parts, ";")
}
