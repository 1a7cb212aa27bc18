package dispatch

import (
	"context"
	"time"
)

// Public interfaces for the dispatch core.
type (
	// Dispatcher is the outbound email dispatch surface offered to the
	// campaign-sending workflow. All methods are safe for concurrent use.
	Dispatcher interface {
		// SendEmail delivers one message for a tenant via the best
		// available sending server. It always returns a structured
		// result; provider and configuration failures are reported in
		// the result, never as panics or escaping errors.
		SendEmail(ctx context.Context, email *Email, tenantID string, strategy Strategy, opts ...SendOption) *SendResult

		// ValidateServerConfig reports whether a credential bundle is
		// usable for the given provider type. Used when an admin saves
		// or edits a server. It never sends mail.
		ValidateServerConfig(ctx context.Context, providerType ProviderType, settings ProviderSettings) bool

		// TestConnection validates the stored configuration of one of
		// the tenant's servers. A server that does not exist for the
		// tenant yields false, not an error.
		TestConnection(ctx context.Context, tenantID, serverID string) bool

		// AvailableProviders returns the static catalog of supported
		// provider types and the credentials each one needs.
		AvailableProviders() []ProviderInfo
	}

	// ServerStore is the persistence read interface for sending servers.
	// Implementations live outside the dispatch core; store/ ships a
	// SQLite one.
	ServerStore interface {
		// FindActive returns the tenant's active servers ordered by
		// creation time ascending. An empty result is not an error.
		FindActive(ctx context.Context, tenantID string) ([]Server, error)

		// FindByID returns the tenant's server with the given id, or
		// nil when no such server exists for that tenant.
		FindByID(ctx context.Context, tenantID, serverID string) (*Server, error)
	}

	// AuditStore persists the append-only delivery audit log. Append
	// failures are absorbed by the dispatch core; CountSince feeds the
	// quota tracker and must reflect attempts across all processes
	// sharing the tenant's servers.
	AuditStore interface {
		Append(ctx context.Context, entry AuditEntry) error
		CountSince(ctx context.Context, serverID string, since time.Time) (int, error)
	}
)
