package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/requestcontext"
)

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Body        string `json:"body"`
		ClientToken string `json:"clientToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	msg, err := h.messages.Send(ctx, chi.URLParam(r, "conversationID"), requestcontext.UserID(ctx), req.Body, req.ClientToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleFetchMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pageSize := 0
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "pageSize must be an integer"))
			return
		}
		pageSize = n
	}

	page, err := h.messages.Fetch(ctx,
		chi.URLParam(r, "conversationID"),
		requestcontext.UserID(ctx),
		r.URL.Query().Get("cursor"),
		pageSize,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":   page.Messages,
		"nextCursor": page.NextCursor,
	})
}

func (h *Handler) handleHideMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.messages.Hide(ctx, chi.URLParam(r, "messageID"), requestcontext.UserID(ctx)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
