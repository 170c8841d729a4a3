package httptransport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"nestfeed/internal/domain"
	"nestfeed/internal/listing"
	"nestfeed/pkg/derrors"
)

const maxImageBytes = 8 << 20

func paramsFromQuery(r *http.Request) listing.Params {
	q := r.URL.Query()
	p := listing.Params{
		OrderBy:     q.Get("order_by"),
		FilterField: q.Get("filter_field"),
	}
	if p.FilterField != "" {
		p.FilterValue = q.Get("filter_value")
	}
	return p
}

// caller returns the authenticated realtor identity, or an error when the
// session has not settled into an authenticated realtor.
func (h *Handler) caller() (string, error) {
	snap := h.sessions.Snapshot()
	if !snap.Authenticated() {
		return "", derrors.New(derrors.CodeAuth, "not signed in")
	}
	if snap.Role != domain.RoleRealtor {
		return "", derrors.New(derrors.CodePermission, "only realtors manage listings")
	}
	return snap.Identity, nil
}

func (h *Handler) handleListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.sync.List(r.Context(), paramsFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// handleListingFeed streams live result-set snapshots as server-sent events.
// Each event replaces the previous set wholesale.
func (h *Handler) handleListingFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, derrors.New(derrors.CodeInternal, "streaming unsupported"))
		return
	}

	sub, err := h.sync.Subscribe(r.Context(), paramsFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-sub.Snapshots():
			if !open {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case err, open := <-sub.Errs():
			if !open {
				return
			}
			if _, werr := w.Write([]byte("event: error\ndata: " + strconv.Quote(err.Error()) + "\n\n")); werr != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) handleGetListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.sync.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	owner, err := h.caller()
	if err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, derrors.Wrap(err, derrors.CodeInvalidInput, "invalid multipart form"))
		return
	}

	rooms, err := strconv.Atoi(r.FormValue("rooms"))
	if err != nil {
		writeError(w, derrors.New(derrors.CodeInvalidInput, "rooms must be an integer"))
		return
	}
	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if err != nil {
		writeError(w, derrors.New(derrors.CodeInvalidInput, "price must be a number"))
		return
	}

	draft := listing.Draft{
		Description: r.FormValue("description"),
		AreaSize:    r.FormValue("area_size"),
		Rooms:       rooms,
		Price:       price,
	}

	var image []byte
	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image, err = io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil {
			writeError(w, derrors.Wrap(err, derrors.CodeInvalidInput, "read image"))
			return
		}
	}

	created, err := h.listings.Create(r.Context(), owner, draft, image)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller()
	if err != nil {
		writeError(w, err)
		return
	}

	var l domain.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeError(w, derrors.New(derrors.CodeInvalidInput, "invalid request body"))
		return
	}
	l.ID = chi.URLParam(r, "id")
	l.OwnerID = caller

	saved, err := h.listings.Save(r.Context(), caller, l)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller()
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.listings.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
