// Package httptransport is the thin HTTP layer over the session controller
// and the listing services. It is the device-facing API; rendering stays on
// the device.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nestfeed/internal/listing"
	"nestfeed/internal/navigation"
	"nestfeed/internal/session"
	"nestfeed/pkg/derrors"
)

// Handler delegates to domain services; no business logic lives here.
type Handler struct {
	sessions *session.Controller
	sync     *listing.Sync
	listings *listing.Service
	nav      *navigation.Recorder
	logger   *slog.Logger
}

func NewHandler(sessions *session.Controller, sync *listing.Sync, listings *listing.Service, nav *navigation.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		sync:     sync,
		listings: listings,
		nav:      nav,
		logger:   logger,
	}
}

// NewRouter wires all endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.requestLogger)
	r.Use(h.deviceObserver)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Get("/session", h.handleSession)
	})

	r.Route("/listings", func(r chi.Router) {
		r.Get("/", h.handleListListings)
		r.Get("/feed", h.handleListingFeed)
		r.Post("/", h.handleCreateListing)
		r.Get("/{id}", h.handleGetListing)
		r.Put("/{id}", h.handleUpdateListing)
		r.Delete("/{id}", h.handleDeleteListing)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates domain error codes into HTTP statuses with a
// consistent JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch derrors.CodeOf(err) {
	case derrors.CodeAuth:
		status = http.StatusUnauthorized
	case derrors.CodePermission:
		status = http.StatusForbidden
	case derrors.CodeNotFound:
		status = http.StatusNotFound
	case derrors.CodeInvalidInput:
		status = http.StatusBadRequest
	case derrors.CodeStore, derrors.CodeCache:
		status = http.StatusBadGateway
	}

	var coded *derrors.Error
	message := "internal error"
	code := string(derrors.CodeInternal)
	if errors.As(err, &coded) {
		message = coded.Msg
		code = string(coded.Code)
	}
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
