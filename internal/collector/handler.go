package collector

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blockedby/telememo/internal/repository"
)

// default page size of the messages endpoint
const defaultMessagesLimit = 50

// StatusFunc reports the telegram connection status.
type StatusFunc func() string

// Handler handles HTTP requests for the stored channels and background syncs.
type Handler struct {
	manager  *Manager
	store    *repository.Store
	tgStatus StatusFunc
}

// NewHandler creates a new handler. tgStatus may be nil.
func NewHandler(manager *Manager, tgStatus StatusFunc) *Handler {
	if tgStatus == nil {
		tgStatus = func() string { return "UNKNOWN" }
	}
	return &Handler{
		manager:  manager,
		store:    manager.Service().Store(),
		tgStatus: tgStatus,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"telegram": h.tgStatus(),
		"time":     time.Now().Format(time.RFC3339),
	})
}

// ListChannels handles GET /api/v1/channels
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.store.Channels.List(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, channels)
}

// GetChannel handles GET /api/v1/channels/{id}
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.manager.Service().Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}

	info, err := h.manager.Service().Stats(r.Context(), ch)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// ListMessages handles GET /api/v1/channels/{id}/messages
// ?grouped=true folds albums into display units; limit and offset then count units.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	page, err := ParsePageParams(r.URL.Query(), defaultMessagesLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ch, err := h.manager.Service().Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}

	if r.URL.Query().Get("grouped") == "true" {
		units, err := h.manager.Service().LatestUnits(r.Context(), ch, page.Limit, page.Offset)
		if err != nil {
			respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, nonNil(units))
		return
	}

	msgs, err := h.store.Messages.Latest(r.Context(), ch.ID, page.Limit, page.Offset)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(msgs))
}

// Search handles GET /api/v1/search?q=...&channel=...&limit=...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSearchRequest(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := repository.SearchQuery{Text: req.Query, Limit: req.Limit}
	if req.Channel != "" {
		ch, err := h.manager.Service().Lookup(r.Context(), req.Channel)
		if err != nil {
			respondErr(w, err)
			return
		}
		q.ChannelID = &ch.ID
	}

	msgs, err := h.store.Messages.Search(r.Context(), q)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(msgs))
}

// StartSync handles POST /api/v1/channels/{id}/sync, id being any channel reference
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.StartSync(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// SyncStatus handles GET /api/v1/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	jobs := h.manager.Jobs()
	status := "idle"
	for _, j := range jobs {
		if j.Status == JobRunning {
			status = "running"
			break
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"telegram": h.tgStatus(),
		"jobs":     jobs,
	})
}

// GetJob handles GET /api/v1/sync/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := h.manager.Job(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// helper functions

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// statusFor maps domain errors to http status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, ErrNoPriorDump),
		errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, ErrChannelRequired),
		errors.Is(err, ErrInvalidChannelRef),
		errors.Is(err, ErrInvalidLimit),
		errors.Is(err, ErrInvalidOffset),
		errors.Is(err, repository.ErrEmptyQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

