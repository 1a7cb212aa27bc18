package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sendforge/dispatch/internal/core"
	"github.com/sendforge/dispatch/internal/providers"
)

// Type aliases to re-export core types for the public API.
// This allows users to access types like dispatch.Email instead of
// core.Email, maintaining a clean public interface while keeping
// implementation details internal.
type (
	Adapter          = core.Adapter
	ProviderSettings = core.ProviderSettings
	Email            = core.Email
	Address          = core.Address
	Attachment       = core.Attachment
	SendResult       = core.SendResult
	ValidationError  = core.ValidationError
	ProviderError    = core.ProviderError
)

// Error constructor functions
var (
	NewValidationError          = core.NewValidationError
	NewValidationErrorWithValue = core.NewValidationErrorWithValue
	NewProviderError            = core.NewProviderError
)

// Client implements the Dispatcher interface. It is constructed once at
// process startup and shared; all methods are safe for concurrent use, and
// no lock is held across a provider network call.
type Client struct {
	registry *Registry
	quota    *QuotaTracker
	selector *Selector
	usage    *usageTracker
	audit    *auditRecorder
	adapters map[ProviderType]Adapter
	now      func() time.Time
	randn    func(int) int
	log      zerolog.Logger
	tracer   trace.Tracer
}

var _ Dispatcher = (*Client)(nil)

// New creates a dispatch client over the given server and audit stores.
func New(servers ServerStore, audit AuditStore, opts ...Option) (*Client, error) {
	if servers == nil {
		return nil, errors.New("dispatch: server store is required")
	}
	if audit == nil {
		return nil, errors.New("dispatch: audit store is required")
	}

	client := &Client{
		adapters: make(map[ProviderType]Adapter),
		now:      time.Now,
		log:      zerolog.Nop(),
		tracer:   otel.Tracer("github.com/sendforge/dispatch"),
	}
	for name, adapter := range providers.Defaults() {
		client.adapters[ProviderType(name)] = adapter
	}

	for _, opt := range opts {
		opt(client)
	}

	client.registry = NewRegistry(servers)
	client.quota = NewQuotaTracker(audit, client.now, client.log)
	client.usage = newUsageTracker()
	client.selector = NewSelector(client.usage, client.now, client.randn)
	client.audit = &auditRecorder{store: audit, log: client.log}

	return client, nil
}

// SendEmail delivers one message for a tenant via the best available
// sending server: fetch candidates, select one, skip to another candidate
// once if the pick is rate-limited, send through the matching adapter, and
// record the outcome. The returned result is never nil; every failure mode
// is reported through it rather than a panic or escaping error.
func (c *Client) SendEmail(ctx context.Context, email *Email, tenantID string, strategy Strategy, opts ...SendOption) *SendResult {
	ctx, span := c.tracer.Start(ctx, "dispatch.Client.SendEmail")
	defer span.End()

	if strategy == "" {
		strategy = StrategyRoundRobin
	}

	span.SetAttributes(
		attribute.String("dispatch.tenant_id", tenantID),
		attribute.String("dispatch.strategy", string(strategy)),
		attribute.Int("dispatch.recipients", email.TotalRecipients()),
	)

	var options sendOptions
	for _, opt := range opts {
		opt(&options)
	}

	candidates, err := c.registry.ActiveServers(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return c.failure(span, ProviderNone, err.Error())
	}
	if len(candidates) == 0 {
		return c.failure(span, ProviderNone, msgNoActiveServers)
	}

	chosen, err := c.selector.Select(candidates, strategy, options.weights)
	if err != nil {
		span.RecordError(err)
		return c.failure(span, ProviderNone, err.Error())
	}

	if c.quota.IsRateLimited(ctx, chosen) {
		remaining := withoutServer(candidates, chosen.ID)
		if len(remaining) == 0 {
			return c.failure(span, chosen.Type, msgAllRateLimited)
		}

		// Exactly one fallback hop: a second rate-limited pick is
		// terminal rather than a scan of every remaining candidate.
		fallback, err := c.selector.Select(remaining, strategy, options.weights)
		if err != nil {
			span.RecordError(err)
			return c.failure(span, ProviderNone, err.Error())
		}
		c.log.Debug().
			Str("tenant_id", tenantID).
			Str("limited_server", chosen.ID).
			Str("fallback_server", fallback.ID).
			Msg("selected server rate limited, falling back")

		if c.quota.IsRateLimited(ctx, fallback) {
			return c.failure(span, fallback.Type, msgAllRateLimited)
		}
		chosen = fallback
	}

	span.SetAttributes(
		attribute.String("dispatch.server_id", chosen.ID),
		attribute.String("dispatch.provider", string(chosen.Type)),
	)

	result := c.sendVia(ctx, email, chosen)

	// The attempt counts against the server whether or not it succeeded,
	// and the audit append must never block or fail the caller.
	c.usage.Record(chosen.ID, c.now())
	c.audit.Record(ctx, AuditEntry{
		TenantID:   tenantID,
		ServerID:   chosen.ID,
		Recipients: email.RecipientEmails(),
		Subject:    email.Subject,
		Success:    result.Success,
		MessageID:  result.MessageID,
		Error:      result.Error,
		Provider:   result.Provider,
		CreatedAt:  c.now(),
	})

	if result.Success {
		span.SetAttributes(attribute.String("dispatch.message_id", result.MessageID))
		span.SetStatus(codes.Ok, "email sent")
	} else {
		span.SetStatus(codes.Error, result.Error)
	}

	return result
}

// sendVia invokes the adapter matching the server's provider type. Adapter
// errors are converted to a failed result at this boundary.
func (c *Client) sendVia(ctx context.Context, email *Email, server Server) *SendResult {
	adapter, ok := c.adapters[server.Type]
	if !ok {
		return &SendResult{
			Success:   false,
			Error:     fmt.Sprintf("%s: %s", ErrUnknownProvider, server.Type),
			Provider:  server.Type.String(),
			Timestamp: c.now(),
		}
	}

	result, err := adapter.Send(ctx, email, server.Settings)
	if err != nil {
		return &SendResult{
			Success:   false,
			Error:     err.Error(),
			Provider:  server.Type.String(),
			Timestamp: c.now(),
		}
	}
	if result.Provider == "" {
		result.Provider = server.Type.String()
	}
	return result
}

// ValidateServerConfig reports whether a credential bundle is usable for
// the given provider type. Used when an admin saves or edits a server.
func (c *Client) ValidateServerConfig(ctx context.Context, providerType ProviderType, settings ProviderSettings) bool {
	ctx, span := c.tracer.Start(ctx, "dispatch.Client.ValidateServerConfig")
	defer span.End()

	span.SetAttributes(attribute.String("dispatch.provider", string(providerType)))

	adapter, ok := c.adapters[providerType]
	if !ok {
		span.SetStatus(codes.Error, "unknown provider type")
		return false
	}

	if err := adapter.ValidateConfig(ctx, settings); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "config validation failed")
		return false
	}
	span.SetStatus(codes.Ok, "config valid")
	return true
}

// TestConnection validates the stored configuration of one of the tenant's
// servers. Nonexistence and foreign ownership fold into false.
func (c *Client) TestConnection(ctx context.Context, tenantID, serverID string) bool {
	ctx, span := c.tracer.Start(ctx, "dispatch.Client.TestConnection")
	defer span.End()

	span.SetAttributes(
		attribute.String("dispatch.tenant_id", tenantID),
		attribute.String("dispatch.server_id", serverID),
	)

	server, err := c.registry.FindServer(ctx, tenantID, serverID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "server lookup failed")
		return false
	}
	if server == nil {
		span.SetStatus(codes.Error, "server not found")
		return false
	}

	return c.ValidateServerConfig(ctx, server.Type, server.Settings)
}

// AvailableProviders returns the static catalog of supported provider
// types and the credentials each one needs.
func (c *Client) AvailableProviders() []ProviderInfo {
	return AvailableProviders()
}

// failure builds the terminal failure result for attempts that never
// reached a provider.
func (c *Client) failure(span trace.Span, provider ProviderType, message string) *SendResult {
	span.SetStatus(codes.Error, message)
	return &SendResult{
		Success:   false,
		Error:     message,
		Provider:  provider.String(),
		Timestamp: c.now(),
	}
}

// withoutServer returns candidates minus the server with the given id.
func withoutServer(candidates []Server, serverID string) []Server {
	remaining := make([]Server, 0, len(candidates)-1)
	for _, s := range candidates {
		if s.ID != serverID {
			remaining = append(remaining, s)
		}
	}
	return remaining
}
