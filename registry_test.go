package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubServerStore struct {
	servers []Server
	err     error
}

func (s *stubServerStore) FindActive(_ context.Context, tenantID string) ([]Server, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Server
	for _, srv := range s.servers {
		if srv.TenantID == tenantID && srv.Active {
			out = append(out, srv)
		}
	}
	return out, nil
}

func (s *stubServerStore) FindByID(_ context.Context, tenantID, serverID string) (*Server, error) {
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

func TestRegistryActiveServersOrdering(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &stubServerStore{servers: []Server{
		{ID: "newest", TenantID: "t1", Active: true, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "oldest", TenantID: "t1", Active: true, CreatedAt: base},
		{ID: "middle", TenantID: "t1", Active: true, CreatedAt: base.Add(time.Hour)},
	}}
	r := NewRegistry(store)

	servers, err := r.ActiveServers(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, "oldest", servers[0].ID)
	assert.Equal(t, "middle", servers[1].ID)
	assert.Equal(t, "newest", servers[2].ID)
}

func TestRegistryActiveServersFiltersMisbehavingStore(t *testing.T) {
	// A store violating its active-only, tenant-only contract must not
	// leak servers into a send.
	store := &leakyServerStore{servers: []Server{
		{ID: "ok", TenantID: "t1", Active: true},
		{ID: "disabled", TenantID: "t1", Active: false},
		{ID: "foreign", TenantID: "t2", Active: true},
	}}
	r := NewRegistry(store)

	servers, err := r.ActiveServers(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "ok", servers[0].ID)
}

func TestRegistryActiveServersEmpty(t *testing.T) {
	r := NewRegistry(&stubServerStore{})

	servers, err := r.ActiveServers(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestRegistryActiveServersStoreError(t *testing.T) {
	r := NewRegistry(&stubServerStore{err: errors.New("connection refused")})

	_, err := r.ActiveServers(context.Background(), "t1")
	assert.Error(t, err)
}

func TestRegistryFindServer(t *testing.T) {
	store := &stubServerStore{servers: []Server{
		{ID: "srv-1", TenantID: "t1", Active: true},
	}}
	r := NewRegistry(store)

	server, err := r.FindServer(context.Background(), "t1", "srv-1")
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, "srv-1", server.ID)

	missing, err := r.FindServer(context.Background(), "t1", "srv-2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	foreign, err := r.FindServer(context.Background(), "t2", "srv-1")
	require.NoError(t, err)
	assert.Nil(t, foreign)
}

// leakyServerStore returns everything it holds regardless of the query.
type leakyServerStore struct {
	servers []Server
}

func (s *leakyServerStore) FindActive(context.Context, string) ([]Server, error) {
	return s.servers, nil
}

func (s *leakyServerStore) FindByID(_ context.Context, _ string, serverID string) (*Server, error) {
	for _, srv := range s.servers {
		if srv.ID == serverID {
			found := srv
			return &found, nil
		}
	}
	return nil, nil
}
