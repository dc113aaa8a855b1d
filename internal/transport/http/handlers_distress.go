package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/requestcontext"
)

func (h *Handler) handleSubmitDistress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Score   int               `json:"score"`
		Message string            `json:"message"`
		Context map[string]string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	ev, err := h.distress.Submit(ctx, requestcontext.UserID(ctx), req.Score, req.Message, req.Context)
	if err != nil {
		h.logger.WarnContext(ctx, "distress submission rejected",
			"request_id", chimw.GetReqID(ctx),
			"error", err,
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleGetDistressEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ev, err := h.distress.Get(ctx, chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
