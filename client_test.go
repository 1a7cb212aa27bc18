package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendforge/dispatch"
)

type memServerStore struct {
	servers []dispatch.Server
	err     error
}

func (s *memServerStore) FindActive(_ context.Context, tenantID string) ([]dispatch.Server, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []dispatch.Server
	for _, srv := range s.servers {
		if srv.TenantID == tenantID && srv.Active {
			out = append(out, srv)
		}
	}
	return out, nil
}

func (s *memServerStore) FindByID(_ context.Context, tenantID, serverID string) (*dispatch.Server, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, srv := range s.servers {
		if srv.ID == serverID && srv.TenantID == tenantID {
			found := srv
			return &found, nil
		}
	}
	return nil, nil
}

type memAuditStore struct {
	mu        sync.Mutex
	entries   []dispatch.AuditEntry
	appendErr error
	countErr  error
}

func (s *memAuditStore) Append(_ context.Context, entry dispatch.AuditEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memAuditStore) CountSince(_ context.Context, serverID string, since time.Time) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.entries {
		if e.ServerID == serverID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memAuditStore) all() []dispatch.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dispatch.AuditEntry(nil), s.entries...)
}

// fakeAdapter records calls and serves canned results.
type fakeAdapter struct {
	mu          sync.Mutex
	name        string
	sendCalls   int
	sendErr     error
	validateErr error
	messageID   string
	lastEmail   *dispatch.Email
}

func (a *fakeAdapter) Send(_ context.Context, email *dispatch.Email, _ dispatch.ProviderSettings) (*dispatch.SendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sendCalls++
	a.lastEmail = email
	if err := email.Validate(); err != nil {
		return nil, err
	}
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	return &dispatch.SendResult{
		Success:   true,
		MessageID: a.messageID,
		Provider:  a.name,
		Timestamp: time.Now(),
	}, nil
}

func (a *fakeAdapter) ValidateConfig(context.Context, dispatch.ProviderSettings) error {
	return a.validateErr
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sendCalls
}

func testEmail() *dispatch.Email {
	return &dispatch.Email{
		From:     dispatch.Address{Email: "news@example.com", Name: "Example"},
		To:       []dispatch.Address{{Email: "user@example.com"}},
		Subject:  "Hello",
		TextBody: "Hello there.",
	}
}

func TestNewRequiresStores(t *testing.T) {
	_, err := dispatch.New(nil, &memAuditStore{})
	assert.Error(t, err)

	_, err = dispatch.New(&memServerStore{}, nil)
	assert.Error(t, err)
}

func TestSendEmailNoActiveServers(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp"}
	client, err := dispatch.New(&memServerStore{}, &memAuditStore{},
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyRoundRobin)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "No active sending servers configured", result.Error)
	assert.Equal(t, "none", result.Provider)
	assert.False(t, result.Timestamp.IsZero())
	assert.Zero(t, adapter.calls(), "no adapter may be invoked without a server")
}

func TestSendEmailSuccess(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp", messageID: "msg-1"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true},
	}}
	audit := &memAuditStore{}
	client, err := dispatch.New(servers, audit,
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyRoundRobin)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Equal(t, "smtp", result.Provider)
	assert.Empty(t, result.Error)

	entries := audit.all()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "t1", entries[0].TenantID)
	assert.Equal(t, "srv-1", entries[0].ServerID)
	assert.Equal(t, []string{"user@example.com"}, entries[0].Recipients)
	assert.Equal(t, "Hello", entries[0].Subject)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "msg-1", entries[0].MessageID)
}

func TestSendEmailEmptyStrategyDefaultsToRoundRobin(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true},
	}}
	client, err := dispatch.New(servers, &memAuditStore{},
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", "")

	assert.True(t, result.Success)
	assert.Equal(t, 1, adapter.calls())
}

func TestSendEmailUnknownStrategy(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true},
	}}
	client, err := dispatch.New(servers, &memAuditStore{},
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.Strategy("sticky"))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown load balancing strategy")
	assert.Equal(t, "none", result.Provider)
	assert.Zero(t, adapter.calls())
}

func TestSendEmailFallsBackWhenPrimaryRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	primary := &fakeAdapter{name: "ses"}
	backup := &fakeAdapter{name: "smtp", messageID: "msg-2"}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-a", TenantID: "t1", Type: dispatch.ProviderSES, Active: true, HourlyLimit: 1, CreatedAt: base},
		{ID: "srv-b", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true, CreatedAt: base.Add(time.Minute)},
	}}
	audit := &memAuditStore{entries: []dispatch.AuditEntry{
		{ID: "prior", ServerID: "srv-a", CreatedAt: now.Add(-time.Minute)},
	}}

	client, err := dispatch.New(servers, audit,
		dispatch.WithClock(func() time.Time { return now }),
		dispatch.WithAdapter(dispatch.ProviderSES, primary),
		dispatch.WithAdapter(dispatch.ProviderSMTP, backup))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyFailover)

	assert.True(t, result.Success)
	assert.Equal(t, "smtp", result.Provider)
	assert.Equal(t, "msg-2", result.MessageID)
	assert.Zero(t, primary.calls())
	assert.Equal(t, 1, backup.calls())
}

func TestSendEmailAllServersRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	primary := &fakeAdapter{name: "ses"}
	backup := &fakeAdapter{name: "smtp"}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-a", TenantID: "t1", Type: dispatch.ProviderSES, Active: true, HourlyLimit: 1, CreatedAt: base},
		{ID: "srv-b", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true, HourlyLimit: 1, CreatedAt: base.Add(time.Minute)},
	}}
	audit := &memAuditStore{entries: []dispatch.AuditEntry{
		{ID: "a1", ServerID: "srv-a", CreatedAt: now.Add(-time.Minute)},
		{ID: "b1", ServerID: "srv-b", CreatedAt: now.Add(-time.Minute)},
	}}

	client, err := dispatch.New(servers, audit,
		dispatch.WithClock(func() time.Time { return now }),
		dispatch.WithAdapter(dispatch.ProviderSES, primary),
		dispatch.WithAdapter(dispatch.ProviderSMTP, backup))
	require.NoError(t, err)

	before := len(audit.all())
	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyFailover)

	assert.False(t, result.Success)
	assert.Equal(t, "All sending servers are rate limited", result.Error)
	assert.Equal(t, "smtp", result.Provider, "reports the last server considered")
	assert.Zero(t, primary.calls())
	assert.Zero(t, backup.calls())
	assert.Len(t, audit.all(), before, "no audit entry without a delivery attempt")
}

func TestSendEmailSingleServerRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	adapter := &fakeAdapter{name: "ses"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-a", TenantID: "t1", Type: dispatch.ProviderSES, Active: true, HourlyLimit: 1},
	}}
	audit := &memAuditStore{entries: []dispatch.AuditEntry{
		{ID: "a1", ServerID: "srv-a", CreatedAt: now.Add(-time.Minute)},
	}}
	client, err := dispatch.New(servers, audit,
		dispatch.WithClock(func() time.Time { return now }),
		dispatch.WithAdapter(dispatch.ProviderSES, adapter))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyFailover)

	assert.False(t, result.Success)
	assert.Equal(t, "All sending servers are rate limited", result.Error)
	assert.Equal(t, "ses", result.Provider)
	assert.Zero(t, adapter.calls())
}

func TestSendEmailDailyLimitExhaustsAcrossSends(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{name: "smtp", messageID: "m"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true, DailyLimit: 2},
	}}
	audit := &memAuditStore{}
	client, err := dispatch.New(servers, audit,
		dispatch.WithClock(func() time.Time { return now }),
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyFailover)
		require.True(t, result.Success, "send %d should fit the daily quota", i+1)
		now = now.Add(time.Hour)
	}

	third := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyFailover)
	assert.False(t, third.Success)
	assert.Equal(t, "All sending servers are rate limited", third.Error)
	assert.Equal(t, 2, adapter.calls())
	assert.Len(t, audit.all(), 2)
}

func TestSendEmailAdapterErrorBecomesResult(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp", sendErr: errors.New("550 mailbox unavailable")}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true},
	}}
	audit := &memAuditStore{}
	client, err := dispatch.New(servers, audit,
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyRoundRobin)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "550 mailbox unavailable")
	assert.Equal(t, "smtp", result.Provider)

	// Failed attempts are audited and count against the quota window.
	entries := audit.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Contains(t, entries[0].Error, "550 mailbox unavailable")
}

func TestSendEmailInvalidEmailNeverRetries(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp"}
	other := &fakeAdapter{name: "ses"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true},
		{ID: "srv-2", TenantID: "t1", Type: dispatch.ProviderSES, Active: true, CreatedAt: time.Unix(1, 0)},
	}}
	client, err := dispatch.New(servers, &memAuditStore{},
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter),
		dispatch.WithAdapter(dispatch.ProviderSES, other))
	require.NoError(t, err)

	email := testEmail()
	email.Subject = ""

	result := client.SendEmail(context.Background(), email, "t1", dispatch.StrategyFailover)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "subject")
	assert.Equal(t, 1, adapter.calls()+other.calls(), "validation failure must not fail over")
}

func TestSendEmailUnknownProviderType(t *testing.T) {
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderType("bogus"), Active: true},
	}}
	audit := &memAuditStore{}
	client, err := dispatch.New(servers, audit)
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyRoundRobin)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown provider type")
	assert.Equal(t, "bogus", result.Provider)
	require.Len(t, audit.all(), 1)
}

func TestSendEmailAuditFailureSwallowed(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp", messageID: "msg-1"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true},
	}}
	audit := &memAuditStore{appendErr: errors.New("disk full")}
	client, err := dispatch.New(servers, audit,
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyRoundRobin)

	assert.True(t, result.Success, "audit store outage must not fail the send")
	assert.Equal(t, "msg-1", result.MessageID)
}

func TestSendEmailQuotaCountFailureFailsOpen(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp", messageID: "msg-1"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true, HourlyLimit: 1},
	}}
	audit := &memAuditStore{countErr: errors.New("database is locked")}
	client, err := dispatch.New(servers, audit,
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyRoundRobin)

	assert.True(t, result.Success)
}

func TestSendEmailWeightedHonorsWeights(t *testing.T) {
	ses := &fakeAdapter{name: "ses"}
	smtp := &fakeAdapter{name: "smtp"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-a", TenantID: "t1", Type: dispatch.ProviderSES, Active: true},
		{ID: "srv-b", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true, CreatedAt: time.Unix(1, 0)},
	}}
	client, err := dispatch.New(servers, &memAuditStore{},
		dispatch.WithAdapter(dispatch.ProviderSES, ses),
		dispatch.WithAdapter(dispatch.ProviderSMTP, smtp))
	require.NoError(t, err)

	// Weight 0 excludes srv-a entirely, so every send lands on srv-b.
	for i := 0; i < 5; i++ {
		result := client.SendEmail(context.Background(), testEmail(), "t1",
			dispatch.StrategyWeighted, dispatch.WithWeights(map[string]int{"srv-a": 0, "srv-b": 1}))
		require.True(t, result.Success)
		assert.Equal(t, "smtp", result.Provider)
	}
	assert.Zero(t, ses.calls())
	assert.Equal(t, 5, smtp.calls())
}

func TestSendEmailLeastUsedSpreadsLoad(t *testing.T) {
	ses := &fakeAdapter{name: "ses"}
	smtp := &fakeAdapter{name: "smtp"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-a", TenantID: "t1", Type: dispatch.ProviderSES, Active: true},
		{ID: "srv-b", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true, CreatedAt: time.Unix(1, 0)},
	}}
	client, err := dispatch.New(servers, &memAuditStore{},
		dispatch.WithAdapter(dispatch.ProviderSES, ses),
		dispatch.WithAdapter(dispatch.ProviderSMTP, smtp))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		result := client.SendEmail(context.Background(), testEmail(), "t1", dispatch.StrategyLeastUsed)
		require.True(t, result.Success)
	}

	assert.Equal(t, 2, ses.calls())
	assert.Equal(t, 2, smtp.calls())
}

func TestValidateServerConfig(t *testing.T) {
	good := &fakeAdapter{name: "smtp"}
	bad := &fakeAdapter{name: "ses", validateErr: errors.New("invalid credentials")}
	client, err := dispatch.New(&memServerStore{}, &memAuditStore{},
		dispatch.WithAdapter(dispatch.ProviderSMTP, good),
		dispatch.WithAdapter(dispatch.ProviderSES, bad))
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, client.ValidateServerConfig(ctx, dispatch.ProviderSMTP, dispatch.ProviderSettings{}))
	assert.False(t, client.ValidateServerConfig(ctx, dispatch.ProviderSES, dispatch.ProviderSettings{}))
	assert.False(t, client.ValidateServerConfig(ctx, dispatch.ProviderType("bogus"), dispatch.ProviderSettings{}))
}

func TestTestConnection(t *testing.T) {
	adapter := &fakeAdapter{name: "smtp"}
	servers := &memServerStore{servers: []dispatch.Server{
		{ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true},
	}}
	client, err := dispatch.New(servers, &memAuditStore{},
		dispatch.WithAdapter(dispatch.ProviderSMTP, adapter))
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, client.TestConnection(ctx, "t1", "srv-1"))
	assert.False(t, client.TestConnection(ctx, "t1", "missing"))
	assert.False(t, client.TestConnection(ctx, "t2", "srv-1"), "foreign tenant folds to false")
}

func TestAvailableProviders(t *testing.T) {
	client, err := dispatch.New(&memServerStore{}, &memAuditStore{})
	require.NoError(t, err)

	infos := client.AvailableProviders()
	require.Len(t, infos, 7)

	byType := map[dispatch.ProviderType]dispatch.ProviderInfo{}
	for _, info := range infos {
		assert.True(t, info.Type.Valid(), "catalog type %q must be valid", info.Type)
		assert.NotEmpty(t, info.Name)
		assert.NotEmpty(t, info.ConfigFields)
		byType[info.Type] = info
	}

	require.Contains(t, byType, dispatch.ProviderSMTP)
	var hostRequired bool
	for _, f := range byType[dispatch.ProviderSMTP].ConfigFields {
		if f.Key == "host" {
			hostRequired = f.Required
		}
	}
	assert.True(t, hostRequired, "smtp host field must be required")
}
