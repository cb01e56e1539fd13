package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"wablast/internal/dispatch"
	"wablast/internal/domain"
	"wablast/internal/recipients"
	"wablast/internal/session"
	"wablast/internal/upload"
)

type API struct {
	Registry  *session.Registry
	Engine    *dispatch.Engine
	Uploads   *upload.Store
	MaxUpload int64
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/session/{tenantId}", a.handleSessionStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/session/{tenantId}/dispatch", a.handleDispatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/session/{tenantId}/logout", a.handleLogout).Methods(http.MethodPost)
}

type sessionStatusResponse struct {
	State             domain.SessionState `json:"state"`
	PairingCredential *string             `json:"pairingCredential"`
}

// handleSessionStatus reports the tenant's connection state, lazily creating
// the session so a first poll kicks off pairing.
func (a *API) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	sess, err := a.Registry.GetOrCreate(r.Context(), tenantID)
	if err != nil {
		slog.Error("session create failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "session create failed", http.StatusBadGateway)
		return
	}

	resp := sessionStatusResponse{State: sess.State()}
	if code := sess.PairingCode(); code != "" {
		resp.PairingCredential = &code
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	sess, ok := a.Registry.Get(tenantID)
	if !ok {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(a.MaxUpload); err != nil {
		http.Error(w, ErrBadForm, http.StatusBadRequest)
		return
	}
	message := r.FormValue("message")
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, ErrFileRequired, http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Spill to the uploads dir first, scoped strictly to this request.
	path, cleanup, err := a.Uploads.Save(file)
	if err != nil {
		slog.Error("upload save failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		slog.Error("upload open failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	rcpts, err := recipients.ReadAll(f)
	f.Close()
	if err != nil {
		http.Error(w, ErrUnparsableFile, http.StatusBadRequest)
		return
	}

	res, err := a.Engine.Dispatch(r.Context(), sess, message, rcpts)
	switch {
	case errors.Is(err, domain.ErrSessionNotReady):
		http.Error(w, ErrNotReady, http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrDispatchInProgress):
		http.Error(w, ErrDispatchInProgress, http.StatusConflict)
		return
	case err != nil:
		slog.Error("dispatch failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "dispatch failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	if err := a.Registry.Destroy(r.Context(), tenantID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, ErrNotFound, http.StatusNotFound)
			return
		}
		slog.Error("logout failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "logout failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
