package store

import (
	"context"
	"sync"
	"time"

	"rollcall/internal/ledger"
	"rollcall/internal/registry"
)

// Memory is a map-backed store for dev and tests. It implements both
// registry.Repository and ledger.Repository so the whole service can run
// without Postgres. Events are prepended, keeping newest-first order.
type Memory struct {
	mu       sync.RWMutex
	tenants  map[string]registry.Tenant
	entities map[string]registry.Entity
	events   []ledger.Event
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants:  make(map[string]registry.Tenant),
		entities: make(map[string]registry.Entity),
	}
}

func entityKey(tenantID string, typ registry.EntityType, id string) string {
	return tenantID + "/" + string(typ) + "/" + id
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// --- registry.Repository ---

func (m *Memory) GetTenant(_ context.Context, id string) (*registry.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tenants[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *Memory) SaveTenant(_ context.Context, t registry.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m.tenants[t.ID] = t
	return nil
}

func (m *Memory) GetEntity(_ context.Context, tenantID string, typ registry.EntityType, id string) (*registry.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entities[entityKey(tenantID, typ, id)]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *Memory) FindByRollNoOrID(_ context.Context, tenantID, identifier string) (*registry.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entities {
		if e.TenantID != tenantID {
			continue
		}
		if e.ID == identifier || (e.RollNo != "" && e.RollNo == identifier) {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListEntities(_ context.Context, tenantID string, typ registry.EntityType) ([]registry.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []registry.Entity
	for _, e := range m.entities {
		if e.TenantID == tenantID && (typ == "" || e.Type == typ) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) UpsertEntity(_ context.Context, e registry.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[entityKey(e.TenantID, e.Type, e.ID)] = e
	return nil
}

func (m *Memory) DeleteEntity(ctx context.Context, tenantID string, typ registry.EntityType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, entityKey(tenantID, typ, id))
	kept := m.events[:0]
	for _, evt := range m.events {
		if evt.TenantID == tenantID && evt.EntityID == id {
			continue
		}
		kept = append(kept, evt)
	}
	m.events = kept
	return nil
}

// --- ledger.Repository ---

func (m *Memory) InsertEvent(_ context.Context, evt ledger.Event) (ledger.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append([]ledger.Event{evt}, m.events...)
	return evt, nil
}

func (m *Memory) LastEventOnDay(_ context.Context, tenantID, entityID string, day time.Time) (*ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *ledger.Event
	for i := range m.events {
		evt := &m.events[i]
		if evt.TenantID != tenantID || evt.EntityID != entityID || !sameDay(day, evt.Timestamp) {
			continue
		}
		if best == nil || evt.Timestamp.After(best.Timestamp) {
			best = evt
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

func (m *Memory) ListByEntity(_ context.Context, tenantID, entityID string, limit, offset int) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []ledger.Event
	skipped := 0
	for _, evt := range m.events {
		if evt.TenantID != tenantID || evt.EntityID != entityID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ListOnDay(_ context.Context, tenantID string, day time.Time) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Event
	for _, evt := range m.events {
		if evt.TenantID == tenantID && sameDay(day, evt.Timestamp) {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (m *Memory) ListInRange(_ context.Context, tenantID string, from, to time.Time) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Event
	for _, evt := range m.events {
		if evt.TenantID != tenantID {
			continue
		}
		if evt.Timestamp.Before(from) || !evt.Timestamp.Before(to) {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

func (m *Memory) DeleteByEntity(_ context.Context, tenantID, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, evt := range m.events {
		if evt.TenantID == tenantID && evt.EntityID == entityID {
			continue
		}
		kept = append(kept, evt)
	}
	m.events = kept
	return nil
}
