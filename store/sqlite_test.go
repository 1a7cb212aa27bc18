package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendforge/dispatch"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveAndFindServer(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	server := dispatch.Server{
		ID:       "srv-1",
		TenantID: "t1",
		Type:     dispatch.ProviderSMTP,
		Settings: dispatch.ProviderSettings{
			"host": "smtp.example.com",
			"port": "587",
		},
		Active:      true,
		HourlyLimit: 10,
		DailyLimit:  100,
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.SaveServer(ctx, server))

	got, err := st.FindByID(ctx, "t1", "srv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, server.ID, got.ID)
	assert.Equal(t, server.Type, got.Type)
	assert.Equal(t, "smtp.example.com", got.Settings.Get("host"))
	assert.Equal(t, 10, got.HourlyLimit)
	assert.Equal(t, 100, got.DailyLimit)
	assert.True(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(server.CreatedAt))
}

func TestFindByIDScopesToTenant(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveServer(ctx, dispatch.Server{
		ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true,
	}))

	got, err := st.FindByID(ctx, "t2", "srv-1")
	require.NoError(t, err)
	assert.Nil(t, got, "foreign tenant must not see the server")

	missing, err := st.FindByID(ctx, "t1", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindActiveOrderingAndFiltering(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := []dispatch.Server{
		{ID: "newest", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "oldest", TenantID: "t1", Type: dispatch.ProviderSES, Active: true, CreatedAt: base},
		{ID: "disabled", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: false, CreatedAt: base.Add(time.Hour)},
		{ID: "foreign", TenantID: "t2", Type: dispatch.ProviderSMTP, Active: true, CreatedAt: base},
	}
	for _, s := range seed {
		require.NoError(t, st.SaveServer(ctx, s))
	}

	servers, err := st.FindActive(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "oldest", servers[0].ID)
	assert.Equal(t, "newest", servers[1].ID)
}

func TestDeleteServer(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveServer(ctx, dispatch.Server{
		ID: "srv-1", TenantID: "t1", Type: dispatch.ProviderSMTP, Active: true,
	}))
	require.NoError(t, st.DeleteServer(ctx, "t1", "srv-1"))

	got, err := st.FindByID(ctx, "t1", "srv-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAppendAndCountSince(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{
		base.Add(-30 * time.Minute), // before the window
		base.Add(10 * time.Minute),
		base.Add(20 * time.Minute),
	} {
		require.NoError(t, st.Append(ctx, dispatch.AuditEntry{
			ID:        uuid.NewString(),
			TenantID:  "t1",
			ServerID:  "srv-1",
			Success:   i%2 == 0,
			CreatedAt: at,
		}))
	}
	// Another server's attempts never count.
	require.NoError(t, st.Append(ctx, dispatch.AuditEntry{
		ID: uuid.NewString(), TenantID: "t1", ServerID: "srv-2", CreatedAt: base.Add(5 * time.Minute),
	}))

	count, err := st.CountSince(ctx, "srv-1", base)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := st.CountSince(ctx, "srv-1", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, all)
}

func TestEntriesNewestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Append(ctx, dispatch.AuditEntry{
			ID:         uuid.NewString(),
			TenantID:   "t1",
			ServerID:   "srv-1",
			Recipients: []string{"user@example.com"},
			Subject:    "Hello",
			Success:    true,
			MessageID:  "m",
			Provider:   "smtp",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := st.Entries(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
	assert.Equal(t, []string{"user@example.com"}, entries[0].Recipients)

	none, err := st.Entries(ctx, "t2", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreSatisfiesDispatchInterfaces(t *testing.T) {
	st := openTestStore(t)

	var _ dispatch.ServerStore = st
	var _ dispatch.AuditStore = st

	client, err := dispatch.New(st, st)
	require.NoError(t, err)
	assert.NotNil(t, client)
}
