package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditEntry is the immutable record of one send attempt. Entries are
// written for successes and failures alike; besides observability they are
// the counter source for quota enforcement.
type AuditEntry struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	ServerID   string    `json:"server_id" db:"server_id"`
	Recipients []string  `json:"recipients" db:"-"`
	Subject    string    `json:"subject" db:"subject"`
	Success    bool      `json:"success" db:"success"`
	MessageID  string    `json:"message_id" db:"message_id"`
	Error      string    `json:"error" db:"error"`
	Provider   string    `json:"provider" db:"provider"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// auditRecorder appends entries to the audit store. Append failures are
// logged and swallowed: an observability outage must never block mail or
// surface to the sending caller.
type auditRecorder struct {
	store AuditStore
	log   zerolog.Logger
}

func (r *auditRecorder) Record(ctx context.Context, entry AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if err := r.store.Append(ctx, entry); err != nil {
		r.log.Error().Err(err).
			Str("tenant_id", entry.TenantID).
			Str("server_id", entry.ServerID).
			Str("provider", entry.Provider).
			Msg("failed to append delivery audit entry")
	}
}
