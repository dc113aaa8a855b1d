package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sharepairs/internal/platform/middleware"
)

// NewRouter wires all endpoints. Health and metrics are public; everything
// else sits behind bearer auth, with back-office routes additionally behind
// the admin guard.
func NewRouter(h *Handler, validator middleware.TokenValidator) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, h.logger))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", h.handleCreateConversation)
			r.Get("/", h.handleListConversations)
			r.Post("/support", h.handleSupportConversation)
			r.Route("/{conversationID}", func(r chi.Router) {
				r.Get("/", h.handleGetConversation)
				r.Post("/accept", h.handleAcceptConversation)
				r.Post("/seen", h.handleMarkConversationSeen)
				r.Post("/close", h.handleCloseConversation)
				r.Post("/messages", h.handleSendMessage)
				r.Get("/messages", h.handleFetchMessages)
			})
		})

		r.Post("/distress", h.handleSubmitDistress)
		r.Post("/me/match/seen", h.handleMarkMatchSeen)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(h.logger))
			r.Post("/matches", h.handlePairUsers)
			r.Post("/matches/unpair", h.handleUnpairUsers)
			r.Post("/users/{userID}/chat-access", h.handleToggleChatAccess)
			r.Post("/messages/{messageID}/hide", h.handleHideMessage)
			r.Get("/distress/{eventID}", h.handleGetDistressEvent)
			r.Get("/audit", h.handleListAudit)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
