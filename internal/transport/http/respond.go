package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "sharepairs/pkg/domainerrors"
)

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	ConflictID string `json:"conflictId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError centralizes domain error translation to HTTP responses. Keeping
// it here ensures consistent JSON error envelopes.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{
		Error:      string(code),
		ConflictID: dErrors.Field(err, "conflictId"),
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		body.Message = coded.Message
	}
	writeJSON(w, dErrors.ToHTTPStatus(code), body)
}
