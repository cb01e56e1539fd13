// mock-gateway simulates the WhatsApp gateway bridge for local development
// and smoke tests: clients progress from a pairing code to ready on a timer,
// and sends succeed or fail according to the configured outcome mode.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Port        string        `envconfig:"PORT" default:"7070"`
	QRDelay     time.Duration `envconfig:"MOCK_QR_DELAY" default:"1s"`
	ReadyDelay  time.Duration `envconfig:"MOCK_READY_DELAY" default:"5s"`
	SkipPairing bool          `envconfig:"MOCK_SKIP_PAIRING" default:"false"`
	// fixed: every send succeeds; weighted: fail with 1-MOCK_SUCCESS_RATE
	OutcomeMode string        `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	SuccessRate float64       `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	SendDelay   time.Duration `envconfig:"MOCK_SEND_DELAY" default:"100ms"`
}

type clientState struct {
	mu     sync.Mutex
	state  string
	qr     string
	reason string
}

type server struct {
	cfg config
	rng *rand.Rand
	mu  sync.Mutex

	clients map[string]*clientState
}

type statusResponse struct {
	State  string `json:"state"`
	QR     string `json:"qr,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock gateway config load failed", "err", err)
		os.Exit(1)
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	s := &server{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		clients: make(map[string]*clientState),
	}

	router := mux.NewRouter()
	router.HandleFunc("/v1/clients/{tenantId}", s.handleConnect).Methods(http.MethodPost)
	router.HandleFunc("/v1/clients/{tenantId}", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/v1/clients/{tenantId}", s.handleDestroy).Methods(http.MethodDelete)
	router.HandleFunc("/v1/clients/{tenantId}/messages", s.handleSend).Methods(http.MethodPost)

	slog.Info("mock gateway listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("mock gateway server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) handleConnect(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	s.mu.Lock()
	cs, ok := s.clients[tenantID]
	if !ok {
		cs = &clientState{state: "initializing"}
		s.clients[tenantID] = cs
		go s.progress(tenantID, cs)
	}
	s.mu.Unlock()

	slog.Info("mock client connect", "tenant_id", tenantID, "existing", ok)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "initializing"})
}

// progress walks a fresh client through pairing and into ready.
func (s *server) progress(tenantID string, cs *clientState) {
	if !s.cfg.SkipPairing {
		time.Sleep(s.cfg.QRDelay)
		cs.mu.Lock()
		if cs.state != "initializing" {
			cs.mu.Unlock()
			return
		}
		cs.state = "qr"
		cs.qr = fmt.Sprintf("mock-qr-%s-%d", tenantID, time.Now().UnixNano())
		cs.mu.Unlock()
		slog.Info("mock client qr issued", "tenant_id", tenantID)
	}

	time.Sleep(s.cfg.ReadyDelay)
	cs.mu.Lock()
	if cs.state == "initializing" || cs.state == "qr" {
		cs.state = "ready"
		cs.qr = ""
	}
	cs.mu.Unlock()
	slog.Info("mock client ready", "tenant_id", tenantID)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown client")
		return
	}
	cs.mu.Lock()
	resp := statusResponse{State: cs.state, QR: cs.qr, Reason: cs.reason}
	cs.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown client")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.To == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "to and body required")
		return
	}

	cs.mu.Lock()
	state := cs.state
	cs.mu.Unlock()
	if state != "ready" {
		writeError(w, http.StatusConflict, "client not ready")
		return
	}

	if s.cfg.SendDelay > 0 {
		time.Sleep(s.cfg.SendDelay)
	}

	if strings.ToLower(s.cfg.OutcomeMode) == "weighted" {
		s.mu.Lock()
		fail := s.rng.Float64() > s.cfg.SuccessRate
		s.mu.Unlock()
		if fail {
			writeError(w, http.StatusBadGateway, "mock delivery failure")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	s.mu.Lock()
	cs, ok := s.clients[tenantID]
	delete(s.clients, tenantID)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown client")
		return
	}

	cs.mu.Lock()
	cs.state = "disconnected"
	cs.reason = "destroyed"
	cs.mu.Unlock()

	slog.Info("mock client destroyed", "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

func (s *server) lookup(r *http.Request) (*clientState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.clients[mux.Vars(r)["tenantId"]]
	return cs, ok
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
