package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/focusguard/internal/apperr"
	"github.com/starford/focusguard/internal/engine"
	"github.com/starford/focusguard/internal/policy"
	"github.com/starford/focusguard/internal/triage"
)

// Handler holds API route handlers.
type Handler struct {
	svc *triage.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *triage.Service) *Handler {
	return &Handler{svc: svc}
}

// senderKey extracts the sender key from the URL wildcard. Sender keys
// contain a colon ("app:name") and may arrive percent-encoded.
func senderKey(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// IngestEvent handles POST /api/events: the host notification callback
// boundary. The decision is returned so the caller can cancel the
// notification on its side; calling cancel twice is a no-op by contract.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.PackageName == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("package_name is required"))
		return
	}

	decision := h.svc.HandleEvent(r.Context(), engine.RawEvent{
		PackageName:  req.PackageName,
		Title:        req.Title,
		Clearable:    req.Clearable,
		GroupSummary: req.GroupSummary,
	})
	writeJSON(w, http.StatusOK, IngestEventResponse{Decision: string(decision)})
}

// ListSenders handles GET /api/senders.
func (h *Handler) ListSenders(w http.ResponseWriter, r *http.Request) {
	senders, err := h.svc.Senders(r.Context())
	if err != nil {
		slog.Error("list senders failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	items := make([]SenderItem, len(senders))
	for i, s := range senders {
		items[i] = senderItem(s)
	}
	writeJSON(w, http.StatusOK, SenderListResponse{Senders: items})
}

// CategorizeSender handles PUT /api/senders/*.
func (h *Handler) CategorizeSender(w http.ResponseWriter, r *http.Request) {
	key := senderKey(r)
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("sender key is required"))
		return
	}
	var req CategorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	cat, err := policy.ParseCategory(req.Category)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.CategorizeSender(r.Context(), key, cat); err != nil {
		slog.Error("categorize failed", slog.String("sender", key), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	rec, err := h.svc.Sender(r.Context(), key)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, senderItem(*rec))
}

// GetView handles GET /api/views/{category}.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	cat, err := policy.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rows := h.svc.View(r.Context(), cat)
	writeJSON(w, http.StatusOK, ViewResponse{Category: string(cat), Notifications: rows})
}

// ListNotifications handles GET /api/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.svc.Notifications(r.Context(), limit)
	if err != nil {
		slog.Error("list notifications failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NotificationListResponse{Notifications: rows})
}

// ClearNotifications handles DELETE /api/notifications. Only the log is
// wiped; the sender directory is untouched.
func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAllNotifications(r.Context()); err != nil {
		slog.Error("clear notifications failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFocus handles GET /api/focus and GET /api/focus/metrics.
func (h *Handler) GetFocus(w http.ResponseWriter, r *http.Request) {
	m, summary, err := h.svc.FocusMetrics(r.Context())
	if err != nil {
		slog.Error("focus metrics failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, FocusResponse{
		Active:           m.Active,
		CurrentSessionMs: m.CurrentSession.Milliseconds(),
		DailyTotalMs:     m.DailyTotal.Milliseconds(),
		Summary:          summary,
	})
}

// SetFocus handles PUT /api/focus.
func (h *Handler) SetFocus(w http.ResponseWriter, r *http.Request) {
	var req FocusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SetFocusActive(r.Context(), req.Active); err != nil {
		slog.Error("set focus failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.GetFocus(w, r)
}

// SetMilestones handles PUT /api/milestones.
func (h *Handler) SetMilestones(w http.ResponseWriter, r *http.Request) {
	var req MilestonesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SetMilestonesEnabled(r.Context(), req.Enabled); err != nil {
		slog.Error("set milestones failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBanner handles GET /api/banner.
func (h *Handler) GetBanner(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.NextBannerCandidate(r.Context())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		slog.Error("banner candidate failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	resp := BannerResponse{}
	if rec != nil {
		item := senderItem(*rec)
		resp.Sender = &item
	}
	writeJSON(w, http.StatusOK, resp)
}

// DismissBanner handles POST /api/banner/dismiss.
func (h *Handler) DismissBanner(w http.ResponseWriter, r *http.Request) {
	var req DismissBannerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.SenderID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("sender_id is required"))
		return
	}
	h.svc.DismissBanner(r.Context(), req.SenderID)
	w.WriteHeader(http.StatusNoContent)
}
