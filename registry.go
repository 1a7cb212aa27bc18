package dispatch

import (
	"context"
	"fmt"
	"sort"
)

// Registry is the tenant-scoped view over configured sending servers. It is
// read-only at dispatch time; server lifecycle is managed elsewhere.
type Registry struct {
	store ServerStore
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(store ServerStore) *Registry {
	return &Registry{store: store}
}

// ActiveServers returns the tenant's active servers ordered by creation time
// ascending. The oldest server is the failover primary and the base order
// every strategy selects from. An empty list is a valid result.
func (r *Registry) ActiveServers(ctx context.Context, tenantID string) ([]Server, error) {
	servers, err := r.store.FindActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sending servers for tenant %s: %w", tenantID, err)
	}

	// The store contract already promises active-only results; filtering
	// again keeps a misbehaving store from leaking disabled servers into
	// a send.
	active := servers[:0]
	for _, s := range servers {
		if s.Active && s.TenantID == tenantID {
			active = append(active, s)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})

	return active, nil
}

// FindServer returns the tenant's server with the given id, or nil when the
// server does not exist or belongs to another tenant.
func (r *Registry) FindServer(ctx context.Context, tenantID, serverID string) (*Server, error) {
	server, err := r.store.FindByID(ctx, tenantID, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up server %s: %w", serverID, err)
	}
	if server != nil && server.TenantID != tenantID {
		return nil, nil
	}
	return server, nil
}
