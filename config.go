package dispatch

import (
	"time"
)

// ProviderType identifies one of the supported email transport providers.
type ProviderType string

const (
	// ProviderSES represents Amazon Simple Email Service.
	ProviderSES ProviderType = "ses"

	// ProviderSendGrid represents the SendGrid email service.
	ProviderSendGrid ProviderType = "sendgrid"

	// ProviderMailgun represents the Mailgun email service.
	ProviderMailgun ProviderType = "mailgun"

	// ProviderSparkPost represents the SparkPost email service.
	ProviderSparkPost ProviderType = "sparkpost"

	// ProviderElasticEmail represents the ElasticEmail service.
	ProviderElasticEmail ProviderType = "elastic_email"

	// ProviderSMTP represents a generic SMTP relay.
	ProviderSMTP ProviderType = "smtp"

	// ProviderPostal represents a self-hosted Postal server.
	ProviderPostal ProviderType = "postal"

	// ProviderNone is the sentinel reported when no server was available
	// for an attempt at all.
	ProviderNone ProviderType = "none"
)

// String returns the string representation of the provider type.
func (pt ProviderType) String() string {
	return string(pt)
}

// Valid checks if the provider type is supported.
func (pt ProviderType) Valid() bool {
	switch pt {
	case ProviderSES, ProviderSendGrid, ProviderMailgun, ProviderSparkPost,
		ProviderElasticEmail, ProviderSMTP, ProviderPostal:
		return true
	default:
		return false
	}
}

// Strategy selects how one sending server is picked among the eligible
// candidates of a tenant.
type Strategy string

const (
	// StrategyRoundRobin rotates across candidates on a time-derived
	// index. It needs no shared cursor, so horizontally scaled processes
	// stay roughly even without coordination.
	StrategyRoundRobin Strategy = "round_robin"

	// StrategyWeighted picks a candidate with probability proportional to
	// a caller-supplied weight map. Servers without a weight default to 1.
	StrategyWeighted Strategy = "weighted"

	// StrategyLeastUsed picks the candidate with the fewest sends recorded
	// by this process since startup.
	StrategyLeastUsed Strategy = "least_used"

	// StrategyFailover always picks the first candidate in registry order;
	// later candidates are used only when earlier ones are rate-limited.
	StrategyFailover Strategy = "failover"
)

// Valid checks if the strategy is supported.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyWeighted, StrategyLeastUsed, StrategyFailover:
		return true
	default:
		return false
	}
}

// Server is a tenant-owned sending server: one provider type bound to a
// credential bundle and optional hourly/daily quotas. The dispatch core
// reads servers, it never mutates them.
type Server struct {
	// ID uniquely identifies the server.
	ID string `json:"id" db:"id"`

	// TenantID is the owning tenant. Dispatch for a tenant only ever
	// selects servers owned by that tenant.
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Type is the provider type, fixed at creation.
	Type ProviderType `json:"type" db:"type"`

	// Settings is the provider-specific credential bundle, opaque to
	// everything but the matching adapter.
	Settings ProviderSettings `json:"settings" db:"-"`

	// Active reports whether the server may be selected at all.
	Active bool `json:"active" db:"active"`

	// HourlyLimit caps sends per calendar hour. Zero means unlimited.
	HourlyLimit int `json:"hourly_limit" db:"hourly_limit"`

	// DailyLimit caps sends per calendar day. Zero means unlimited.
	DailyLimit int `json:"daily_limit" db:"daily_limit"`

	// CreatedAt orders servers; the oldest server is the failover primary.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Unlimited reports whether the server has no quota configured.
func (s Server) Unlimited() bool {
	return s.HourlyLimit <= 0 && s.DailyLimit <= 0
}
