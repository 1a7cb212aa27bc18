package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// QuotaTracker answers whether a sending server has exhausted its hourly or
// daily quota. Counts come from the shared audit store, so the answer is
// authoritative across every process dispatching for the tenant; windows are
// calendar-aligned (clock hour, calendar day), not sliding.
type QuotaTracker struct {
	audit AuditStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewQuotaTracker creates a quota tracker counting against the audit store.
func NewQuotaTracker(audit AuditStore, now func() time.Time, log zerolog.Logger) *QuotaTracker {
	if now == nil {
		now = time.Now
	}
	return &QuotaTracker{audit: audit, now: now, log: log}
}

// IsRateLimited reports whether the server has reached either configured
// limit in the current window. Servers without limits are never limited.
// A count-store outage fails open: blocking all mail on an observability
// store is worse than briefly exceeding a quota.
func (q *QuotaTracker) IsRateLimited(ctx context.Context, server Server) bool {
	if server.Unlimited() {
		return false
	}

	now := q.now()

	if server.HourlyLimit > 0 {
		hourStart := now.Truncate(time.Hour)
		count, err := q.audit.CountSince(ctx, server.ID, hourStart)
		if err != nil {
			q.log.Error().Err(err).Str("server_id", server.ID).
				Msg("quota count failed, treating server as not limited")
			return false
		}
		if count >= server.HourlyLimit {
			return true
		}
	}

	if server.DailyLimit > 0 {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		count, err := q.audit.CountSince(ctx, server.ID, dayStart)
		if err != nil {
			q.log.Error().Err(err).Str("server_id", server.ID).
				Msg("quota count failed, treating server as not limited")
			return false
		}
		if count >= server.DailyLimit {
			return true
		}
	}

	return false
}
