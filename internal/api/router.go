package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/focusguard/internal/triage"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// feedHandler, if non-nil, is mounted at GET /feed inside the auth group.
func NewRouter(svc *triage.Service, authEnabled bool, token string, feedHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Host boundary: raw notification events in.
	r.Post("/events", h.IngestEvent)

	// Sender directory.
	r.Get("/senders", h.ListSenders)
	r.Put("/senders/*", h.CategorizeSender)

	// Notification log and derived views.
	r.Get("/notifications", h.ListNotifications)
	r.Delete("/notifications", h.ClearNotifications)
	r.Get("/views/{category}", h.GetView)

	// Focus session.
	r.Get("/focus", h.GetFocus)
	r.Put("/focus", h.SetFocus)
	r.Get("/focus/metrics", h.GetFocus)
	r.Put("/milestones", h.SetMilestones)

	// Classification prompt.
	r.Get("/banner", h.GetBanner)
	r.Post("/banner/dismiss", h.DismissBanner)

	// Change feed (protected by the same auth middleware).
	if feedHandler != nil {
		r.Get("/feed", feedHandler.ServeHTTP)
	}

	return r
}
