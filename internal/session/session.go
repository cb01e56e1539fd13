// Package session tracks one live messaging-network connection per tenant:
// the per-tenant state machine and the registry that owns all of them.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"wablast/internal/adapter"
	"wablast/internal/domain"
	"wablast/internal/observability"
)

// Session wraps one tenant's adapter client and tracks its lifecycle. The
// state field is written only by adapter callbacks and Close; readers get a
// snapshot under the lock.
type Session struct {
	tenantID string
	log      *slog.Logger

	mu          sync.RWMutex
	state       domain.SessionState
	pairingCode string
	client      adapter.Client

	dispatching atomic.Bool

	// onClosed is invoked once when the session leaves the live set
	// (disconnect, auth failure, or explicit close). Set by the registry.
	onClosed func(reason string)
	closed   atomic.Bool
}

func newSession(tenantID string, log *slog.Logger) *Session {
	return &Session{
		tenantID: tenantID,
		state:    domain.StateInitializing,
		log:      log.With("tenant_id", tenantID),
	}
}

func (s *Session) bind(c adapter.Client) { s.client = c }

// handlers wires the adapter's lifecycle events into the state machine.
func (s *Session) handlers() adapter.Handlers {
	return adapter.Handlers{
		PairingCode:  s.onPairingCode,
		Ready:        s.onReady,
		AuthFailure:  s.onAuthFailure,
		Disconnected: s.onDisconnected,
	}
}

func (s *Session) TenantID() string { return s.tenantID }

func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// PairingCode returns the current pairing credential, empty unless the
// session is awaiting pairing.
func (s *Session) PairingCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != domain.StateAwaitingPairing {
		return ""
	}
	return s.pairingCode
}

func (s *Session) Ready() bool { return s.State() == domain.StateReady }

// Send delivers one message through the session's adapter. Refused unless
// the session is ready.
func (s *Session) Send(ctx context.Context, to, body string) error {
	s.mu.RLock()
	client := s.client
	ready := s.state == domain.StateReady
	s.mu.RUnlock()
	if !ready {
		return domain.ErrSessionNotReady
	}
	return client.Send(ctx, to, body)
}

// BeginDispatch claims the session's single dispatch slot. Sends must stay
// strictly sequential per session, so a second concurrent campaign is
// rejected rather than interleaved.
func (s *Session) BeginDispatch() bool { return s.dispatching.CompareAndSwap(false, true) }

func (s *Session) EndDispatch() { s.dispatching.Store(false) }

func (s *Session) onPairingCode(code string) {
	s.mu.Lock()
	if s.state == domain.StateInitializing || s.state == domain.StateAwaitingPairing {
		s.state = domain.StateAwaitingPairing
		s.pairingCode = code
	}
	s.mu.Unlock()
	observability.SessionEvents.WithLabelValues("pairing_code").Inc()
	s.log.Info("pairing credential issued")
}

func (s *Session) onReady() {
	s.mu.Lock()
	s.state = domain.StateReady
	s.pairingCode = ""
	s.mu.Unlock()
	observability.SessionEvents.WithLabelValues("ready").Inc()
	s.log.Info("session ready")
}

func (s *Session) onAuthFailure(reason string) {
	// No corrective action: the session is failed and the tenant must pair
	// again from scratch.
	observability.SessionEvents.WithLabelValues("auth_failure").Inc()
	s.log.Warn("session auth failure", "reason", reason)
	s.close(reason)
}

func (s *Session) onDisconnected(reason string) {
	observability.SessionEvents.WithLabelValues("disconnected").Inc()
	s.log.Info("session disconnected", "reason", reason)
	s.close(reason)
}

// close moves the session to disconnected and fires the registry hook once.
// The adapter client is not torn down here; Destroy owns that.
func (s *Session) close(reason string) {
	s.mu.Lock()
	s.state = domain.StateDisconnected
	s.pairingCode = ""
	s.mu.Unlock()

	if s.closed.CompareAndSwap(false, true) && s.onClosed != nil {
		s.onClosed(reason)
	}
}

// initialize runs adapter initialization in the background. A failed init
// behaves like an immediate disconnect so the registry slot is freed.
func (s *Session) initialize(ctx context.Context) {
	if err := s.client.Initialize(ctx); err != nil {
		s.log.Error("adapter initialize failed", "err", err)
		s.close("initialize_failed")
	}
}

// destroyClient tears down the adapter, best effort. Failure is logged and
// swallowed; a stuck teardown must never pin the tenant's slot.
func (s *Session) destroyClient(ctx context.Context) {
	if err := s.client.Destroy(ctx); err != nil {
		s.log.Warn("adapter teardown failed", "err", err)
	}
}
