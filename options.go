package dispatch

import (
	"time"

	"github.com/rs/zerolog"
)

// Option is a functional option for configuring the dispatch client.
type Option func(*Client)

// WithLogger sets the logger used for swallowed audit failures and
// fallback decisions. The default is a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithClock overrides the wall clock. Quota windows, round-robin rotation
// and result timestamps all derive from it; tests inject a fake.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithRand overrides the random draw used by the weighted strategy.
func WithRand(randn func(int) int) Option {
	return func(c *Client) {
		c.randn = randn
	}
}

// WithAdapter registers or replaces the adapter for a provider type. Used
// to plug custom transports and fakes.
func WithAdapter(providerType ProviderType, adapter Adapter) Option {
	return func(c *Client) {
		c.adapters[providerType] = adapter
	}
}

// SendOption adjusts a single SendEmail call.
type SendOption func(*sendOptions)

type sendOptions struct {
	weights map[string]int
}

// WithWeights supplies the server-id to weight map consumed by the weighted
// strategy. Servers missing from the map default to weight 1; an explicit 0
// excludes a server from selection.
func WithWeights(weights map[string]int) SendOption {
	return func(o *sendOptions) {
		o.weights = weights
	}
}
