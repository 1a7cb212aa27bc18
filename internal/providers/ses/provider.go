package ses

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/sendforge/dispatch/internal/core"
	"github.com/sendforge/dispatch/internal/rfc822"
)

// Adapter implements the core.Adapter interface for Amazon SES.
// Credentials arrive through the per-server settings on every call, so one
// adapter instance serves any number of tenant servers.
type Adapter struct{}

// New creates the Amazon SES adapter.
func New() core.Adapter {
	return &Adapter{}
}

// Name returns the provider type tag.
func (a *Adapter) Name() string {
	return "ses"
}

// Send sends a single email using Amazon SES. Messages with attachments or
// custom headers go through SendRawEmail since the simple API cannot carry
// them.
func (a *Adapter) Send(ctx context.Context, email *core.Email, settings core.ProviderSettings) (*core.SendResult, error) {
	if err := email.Validate(); err != nil {
		return nil, err
	}

	client, err := a.newClient(ctx, settings)
	if err != nil {
		return nil, err
	}

	if email.HasAttachments() || len(email.Headers) > 0 {
		return a.sendRaw(ctx, client, email, settings)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(email.From.String()),
		Destination: &types.Destination{
			ToAddresses: convertAddresses(email.To),
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(email.Subject),
			},
			Body: &types.Body{},
		},
	}

	if len(email.CC) > 0 {
		input.Destination.CcAddresses = convertAddresses(email.CC)
	}
	if len(email.BCC) > 0 {
		input.Destination.BccAddresses = convertAddresses(email.BCC)
	}
	if !email.ReplyTo.IsZero() {
		input.ReplyToAddresses = []string{email.ReplyTo.String()}
	}

	if email.TextBody != "" {
		input.Message.Body.Text = &types.Content{
			Data: aws.String(email.TextBody),
		}
	}
	if email.HTMLBody != "" {
		input.Message.Body.Html = &types.Content{
			Data: aws.String(email.HTMLBody),
		}
	}

	if configSet := settings.Get("configuration_set"); configSet != "" {
		input.ConfigurationSetName = aws.String(configSet)
	}

	output, err := client.SendEmail(ctx, input)
	if err != nil {
		return nil, core.NewProviderError("ses", "send_error", "failed to send email: "+err.Error())
	}

	return &core.SendResult{
		Success:   true,
		MessageID: aws.ToString(output.MessageId),
		Provider:  a.Name(),
		Timestamp: time.Now(),
	}, nil
}

// sendRaw sends the email as a raw RFC 5322 message.
func (a *Adapter) sendRaw(ctx context.Context, client *ses.Client, email *core.Email, settings core.ProviderSettings) (*core.SendResult, error) {
	raw, err := rfc822.Build(email, "", time.Now())
	if err != nil {
		return nil, core.NewProviderError("ses", "message_build_error", "failed to build raw message: "+err.Error())
	}

	var destinations []string
	for _, addr := range email.AllRecipients() {
		destinations = append(destinations, addr.Email)
	}

	input := &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Source:       aws.String(email.From.Email),
		Destinations: destinations,
	}
	if configSet := settings.Get("configuration_set"); configSet != "" {
		input.ConfigurationSetName = aws.String(configSet)
	}

	output, err := client.SendRawEmail(ctx, input)
	if err != nil {
		return nil, core.NewProviderError("ses", "send_error", "failed to send raw email: "+err.Error())
	}

	return &core.SendResult{
		Success:   true,
		MessageID: aws.ToString(output.MessageId),
		Provider:  a.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig checks the settings and probes the account with a read-only
// GetSendQuota call. It never sends mail.
func (a *Adapter) ValidateConfig(ctx context.Context, settings core.ProviderSettings) error {
	client, err := a.newClient(ctx, settings)
	if err != nil {
		return err
	}

	if _, err := client.GetSendQuota(ctx, &ses.GetSendQuotaInput{}); err != nil {
		return core.NewProviderError("ses", "auth_error", "failed to query send quota: "+err.Error())
	}
	return nil
}

// newClient builds an SES client from the per-server settings.
func (a *Adapter) newClient(ctx context.Context, settings core.ProviderSettings) (*ses.Client, error) {
	region := settings.Get("region")
	if region == "" {
		return nil, core.NewValidationError("region", "AWS region is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, core.NewProviderError("ses", "config_error", "failed to load AWS config: "+err.Error())
	}

	if accessKey := settings.Get("access_key"); accessKey != "" {
		secretKey := settings.Get("secret_key")
		if secretKey == "" {
			return nil, core.NewValidationError("secret_key", "secret key is required when access key is provided")
		}

		cfg.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				SessionToken:    settings.Get("session_token"),
			}, nil
		})
	}

	return ses.NewFromConfig(cfg), nil
}

// convertAddresses converts core.Address slice to string slice.
func convertAddresses(addresses []core.Address) []string {
	result := make([]string, len(addresses))
	for i, addr := range addresses {
		result[i] = addr.String()
	}
	return result
}
