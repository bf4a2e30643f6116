package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"membershare/src/auth"
	"membershare/src/lib"
	"membershare/src/services"
)

// API holds the collaborators behind the HTTP routes.
type API struct {
	Groups         *services.GroupService
	Sync           *services.SyncService
	Invitations    *services.InvitationService
	Webhooks       *services.WebhookIngestService
	Verifier       *services.WebhookVerifier
	Sessions       *auth.Sessions
	Metrics        *lib.Metrics
	Logger         *slog.Logger
	AllowedOrigins []string
}

func NewRouter(a *API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.Metrics.Snapshot())
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/purchases", a.handlePurchaseWebhook)
		r.Post("/memberships", a.handleMembershipWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.authenticate)

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", a.handleListOwned)
			r.Get("/shared", a.handleListShared)
			r.Route("/{groupID}", func(r chi.Router) {
				r.Get("/", a.handleViewGroup)
				r.Patch("/", a.handleRenameGroup)
				r.Post("/invitations", a.handleInvite)
				r.Post("/join", a.handleJoin)
				r.Post("/leave", a.handleLeave)
				r.Delete("/members/{memberID}", a.handleRemoveMember)
			})
		})

		// {ref} is an invitation id for remind and a token elsewhere.
		r.Route("/invitations/{ref}", func(r chi.Router) {
			r.Get("/", a.handleLookupInvitation)
			r.Post("/accept", a.handleAccept)
			r.Post("/decline", a.handleDecline)
			r.Post("/remind", a.handleRemind)
		})

		r.Get("/access", a.handleSharedAccess)
		r.Get("/users/{userID}/access", a.handleAccessSummary)

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.requireAdmin)
			r.Get("/groups", a.handleAdminListGroups)
			r.Put("/groups/{groupID}/status", a.handleAdminSetStatus)
			r.Delete("/groups/{groupID}", a.handleAdminDeleteGroup)
			r.Post("/invitations/{invitationID}/revoke", a.handleAdminRevoke)
			r.Get("/stats", a.handleAdminStats)
			r.Post("/sync", a.handleAdminSync)
			r.Post("/sweep", a.handleAdminSweep)
		})
	})
	return r
}
