// Package store ships a SQLite implementation of the dispatch persistence
// interfaces. It doubles as the shared counter source for quota tracking:
// pointing every dispatcher instance at the same database keeps hourly and
// daily limits honest across processes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sendforge/dispatch"
)

const schema = `
CREATE TABLE IF NOT EXISTS sending_servers (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	type         TEXT NOT NULL,
	settings     TEXT NOT NULL DEFAULT '{}',
	active       INTEGER NOT NULL DEFAULT 1,
	hourly_limit INTEGER NOT NULL DEFAULT 0,
	daily_limit  INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sending_servers_tenant ON sending_servers(tenant_id, active);

CREATE TABLE IF NOT EXISTS delivery_audit (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	server_id  TEXT NOT NULL,
	recipients TEXT NOT NULL DEFAULT '[]',
	subject    TEXT NOT NULL DEFAULT '',
	success    INTEGER NOT NULL,
	message_id TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_delivery_audit_server_time ON delivery_audit(server_id, created_at);
`

// SQLite implements dispatch.ServerStore and dispatch.AuditStore on a
// single database file.
type SQLite struct {
	db *sqlx.DB
}

var (
	_ dispatch.ServerStore = (*SQLite)(nil)
	_ dispatch.AuditStore  = (*SQLite)(nil)
)

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral store in tests.
func Open(path string) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type serverRow struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	Type        string    `db:"type"`
	Settings    string    `db:"settings"`
	Active      bool      `db:"active"`
	HourlyLimit int       `db:"hourly_limit"`
	DailyLimit  int       `db:"daily_limit"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r serverRow) toServer() (dispatch.Server, error) {
	settings := dispatch.ProviderSettings{}
	if r.Settings != "" {
		if err := json.Unmarshal([]byte(r.Settings), &settings); err != nil {
			return dispatch.Server{}, fmt.Errorf("corrupt settings for server %s: %w", r.ID, err)
		}
	}
	return dispatch.Server{
		ID:          r.ID,
		TenantID:    r.TenantID,
		Type:        dispatch.ProviderType(r.Type),
		Settings:    settings,
		Active:      r.Active,
		HourlyLimit: r.HourlyLimit,
		DailyLimit:  r.DailyLimit,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// SaveServer inserts or replaces a sending server.
func (s *SQLite) SaveServer(ctx context.Context, server dispatch.Server) error {
	settings, err := json.Marshal(server.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now().UTC()
	}

	q := `
	INSERT OR REPLACE INTO sending_servers
		(id, tenant_id, type, settings, active, hourly_limit, daily_limit, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, q,
		server.ID, server.TenantID, string(server.Type), string(settings),
		server.Active, server.HourlyLimit, server.DailyLimit, server.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save server %s: %w", server.ID, err)
	}
	return nil
}

// DeleteServer removes a tenant's server.
func (s *SQLite) DeleteServer(ctx context.Context, tenantID, serverID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sending_servers WHERE tenant_id = ? AND id = ?`, tenantID, serverID)
	if err != nil {
		return fmt.Errorf("failed to delete server %s: %w", serverID, err)
	}
	return nil
}

// FindActive returns the tenant's active servers ordered by creation time
// ascending.
func (s *SQLite) FindActive(ctx context.Context, tenantID string) ([]dispatch.Server, error) {
	q := `
	SELECT id, tenant_id, type, settings, active, hourly_limit, daily_limit, created_at
	FROM sending_servers
	WHERE tenant_id = ? AND active = 1
	ORDER BY created_at ASC
	`
	var rows []serverRow
	if err := s.db.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, fmt.Errorf("failed to query active servers: %w", err)
	}

	servers := make([]dispatch.Server, 0, len(rows))
	for _, row := range rows {
		server, err := row.toServer()
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// FindByID returns the tenant's server with the given id, or nil when no
// such server exists for that tenant.
func (s *SQLite) FindByID(ctx context.Context, tenantID, serverID string) (*dispatch.Server, error) {
	q := `
	SELECT id, tenant_id, type, settings, active, hourly_limit, daily_limit, created_at
	FROM sending_servers
	WHERE tenant_id = ? AND id = ?
	`
	var row serverRow
	if err := s.db.GetContext(ctx, &row, q, tenantID, serverID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query server %s: %w", serverID, err)
	}

	server, err := row.toServer()
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// Append writes one audit entry. Entries are append-only; nothing in this
// package ever updates or deletes them.
func (s *SQLite) Append(ctx context.Context, entry dispatch.AuditEntry) error {
	recipients, err := json.Marshal(entry.Recipients)
	if err != nil {
		return fmt.Errorf("failed to encode recipients: %w", err)
	}

	q := `
	INSERT INTO delivery_audit
		(id, tenant_id, server_id, recipients, subject, success, message_id, error, provider, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, q,
		entry.ID, entry.TenantID, entry.ServerID, string(recipients), entry.Subject,
		entry.Success, entry.MessageID, entry.Error, entry.Provider, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// CountSince returns the number of attempts recorded for the server at or
// after since. This is the counter behind quota enforcement.
func (s *SQLite) CountSince(ctx context.Context, serverID string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM delivery_audit WHERE server_id = ? AND created_at >= ?`,
		serverID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// Entries returns the audit entries for a tenant, newest first, up to limit.
func (s *SQLite) Entries(ctx context.Context, tenantID string, limit int) ([]dispatch.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	type auditRow struct {
		ID         string    `db:"id"`
		TenantID   string    `db:"tenant_id"`
		ServerID   string    `db:"server_id"`
		Recipients string    `db:"recipients"`
		Subject    string    `db:"subject"`
		Success    bool      `db:"success"`
		MessageID  string    `db:"message_id"`
		Error      string    `db:"error"`
		Provider   string    `db:"provider"`
		CreatedAt  time.Time `db:"created_at"`
	}

	q := `
	SELECT id, tenant_id, server_id, recipients, subject, success, message_id, error, provider, created_at
	FROM delivery_audit
	WHERE tenant_id = ?
	ORDER BY created_at DESC
	LIMIT ?
	`
	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, q, tenantID, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	entries := make([]dispatch.AuditEntry, 0, len(rows))
	for _, row := range rows {
		var recipients []string
		if row.Recipients != "" {
			if err := json.Unmarshal([]byte(row.Recipients), &recipients); err != nil {
				return nil, fmt.Errorf("corrupt recipients for entry %s: %w", row.ID, err)
			}
		}
		entries = append(entries, dispatch.AuditEntry{
			ID:         row.ID,
			TenantID:   row.TenantID,
			ServerID:   row.ServerID,
			Recipients: recipients,
			Subject:    row.Subject,
			Success:    row.Success,
			MessageID:  row.MessageID,
			Error:      row.Error,
			Provider:   row.Provider,
			CreatedAt:  row.CreatedAt,
		})
	}
	return entries, nil
}
