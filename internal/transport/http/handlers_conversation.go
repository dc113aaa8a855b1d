package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/requestcontext"
)

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ParticipantID string `json:"participantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	conv, err := h.conversations.Create(ctx, requestcontext.UserID(ctx), req.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleSupportConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uid := requestcontext.UserID(ctx)
	conv, err := h.conversations.EnsureSupportConversation(ctx, uid)
	if err != nil {
		writeError(w, err)
		return
	}

	// Contact provisioning is cosmetic; the conversation is the deliverable.
	if err := h.matches.EnsureSupportContact(ctx, uid, h.conversations.SupportID()); err != nil {
		h.logger.WarnContext(ctx, "support contact provisioning failed", "userId", uid, "error", err)
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	convs, err := h.conversations.ListForUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conv, err := h.conversations.Get(ctx, chi.URLParam(r, "conversationID"), requestcontext.UserID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleAcceptConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conv, err := h.conversations.Accept(ctx, chi.URLParam(r, "conversationID"), requestcontext.UserID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleMarkConversationSeen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.conversations.MarkSeen(ctx, chi.URLParam(r, "conversationID"), requestcontext.UserID(ctx)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCloseConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.conversations.Close(ctx, chi.URLParam(r, "conversationID"), requestcontext.UserID(ctx)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
