package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wablast/internal/adapter"
	"wablast/internal/domain"
	"wablast/internal/observability"
)

// Registry maps tenant IDs to live sessions. It is the only shared mutable
// state in the process: all map access goes through its mutex so two
// concurrent lookups for an unseen tenant converge on one adapter instance.
type Registry struct {
	factory adapter.Factory
	log     *slog.Logger

	// teardownTimeout bounds the best-effort adapter destroy that runs in
	// the background after an entry is removed.
	teardownTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(factory adapter.Factory, log *slog.Logger) *Registry {
	return &Registry{
		factory:         factory,
		log:             log,
		teardownTimeout: 30 * time.Second,
		sessions:        make(map[string]*Session),
	}
}

// GetOrCreate returns the tenant's session, constructing a new one in the
// initializing state when absent. Adapter initialization starts in the
// background once the entry is stored.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[tenantID]; ok {
		r.mu.Unlock()
		return s, nil
	}

	s := newSession(tenantID, r.log)
	s.onClosed = func(reason string) { r.drop(tenantID, s, reason) }

	client, err := r.factory(tenantID, s.handlers())
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	s.bind(client)
	r.sessions[tenantID] = s
	r.mu.Unlock()

	observability.SessionsActive.Inc()
	r.log.Info("session created", "tenant_id", tenantID)

	// Initialization outlives the triggering request.
	go s.initialize(context.WithoutCancel(ctx))

	return s, nil
}

// Get is the non-creating lookup used by dispatch and status checks.
func (r *Registry) Get(tenantID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tenantID]
	return s, ok
}

// Remove deletes the entry if present. Idempotent.
func (r *Registry) Remove(tenantID string) {
	r.mu.Lock()
	_, ok := r.sessions[tenantID]
	delete(r.sessions, tenantID)
	r.mu.Unlock()
	if ok {
		observability.SessionsActive.Dec()
	}
}

// Destroy logs the tenant out: the entry is removed immediately and adapter
// teardown proceeds in the background so a stuck teardown cannot block
// re-pairing. Returns ErrSessionNotFound when no session exists.
func (r *Registry) Destroy(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	s, ok := r.sessions[tenantID]
	delete(r.sessions, tenantID)
	r.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	observability.SessionsActive.Dec()

	s.close("logout")
	go func() {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.teardownTimeout)
		defer cancel()
		s.destroyClient(tctx)
	}()

	r.log.Info("session destroyed", "tenant_id", tenantID)
	return nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// drop removes the entry on adapter-driven closure, but only while the map
// still holds this exact session; a replacement created after an explicit
// logout must not be evicted by the old adapter's late disconnect event.
func (r *Registry) drop(tenantID string, s *Session, reason string) {
	r.mu.Lock()
	cur, ok := r.sessions[tenantID]
	if ok && cur == s {
		delete(r.sessions, tenantID)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if ok {
		observability.SessionsActive.Dec()
		r.log.Info("session removed", "tenant_id", tenantID, "reason", reason)
	}
}
