package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/requestcontext"
)

type pairRequest struct {
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}

func (h *Handler) handlePairUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	if err := h.matches.PairUsers(ctx, req.UserA, req.UserB); err != nil {
		h.logger.WarnContext(ctx, "pairing failed",
			"userA", req.UserA,
			"userB", req.UserB,
			"request_id", chimw.GetReqID(ctx),
			"error", err,
		)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnpairUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	if err := h.matches.UnpairUsers(ctx, req.UserA, req.UserB); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleToggleChatAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := chi.URLParam(r, "userID")

	var req struct {
		Disabled bool `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	if err := h.matches.ToggleChatAccess(ctx, uid, req.Disabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkMatchSeen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.matches.MarkMatchSeen(ctx, requestcontext.UserID(ctx)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
