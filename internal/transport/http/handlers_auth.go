package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nestfeed/internal/domain"
	"nestfeed/pkg/derrors"
)

// settleTimeout bounds how long a handler waits for the credential stream to
// confirm a transition before answering with the pre-settle snapshot.
const settleTimeout = 5 * time.Second

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type sessionResponse struct {
	Identity   string `json:"identity,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Status     string `json:"status"`
	Device     string `json:"device,omitempty"`
	Navigation string `json:"navigation,omitempty"`
}

func (h *Handler) sessionBody() sessionResponse {
	snap := h.sessions.Snapshot()
	body := sessionResponse{
		Identity: snap.Identity,
		Email:    snap.Email,
		Role:     string(snap.Role),
		Status:   string(snap.Status),
		Device:   snap.Device,
	}
	if h.nav != nil {
		body.Navigation = string(h.nav.Last())
	}
	return body
}

// waitSettled blocks until the next credential event settles, bounded by the
// request context and settleTimeout. Operation completion and settled state
// are distinct; handlers report the settled one when they can.
func (h *Handler) waitSettled(ctx context.Context, settled <-chan struct{}) {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	select {
	case <-settled:
	case <-ctx.Done():
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, derrors.New(derrors.CodeInvalidInput, "invalid request body"))
		return
	}

	settled := h.sessions.Settled()
	if err := h.sessions.Register(r.Context(), req.Email, req.Password, domain.Role(req.Role)); err != nil {
		writeError(w, err)
		return
	}
	h.waitSettled(r.Context(), settled)

	writeJSON(w, http.StatusCreated, h.sessionBody())
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, derrors.New(derrors.CodeInvalidInput, "invalid request body"))
		return
	}

	settled := h.sessions.Settled()
	if err := h.sessions.Login(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}
	h.waitSettled(r.Context(), settled)

	writeJSON(w, http.StatusOK, h.sessionBody())
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	settled := h.sessions.Settled()
	if err := h.sessions.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.waitSettled(r.Context(), settled)

	writeJSON(w, http.StatusOK, h.sessionBody())
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionBody())
}
