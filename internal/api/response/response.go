package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the uniform failure envelope. OK is always false so
// clients can branch on a single field; Error is a short reason and
// Message carries optional human-readable detail.
type ErrorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, reason string) {
	WriteJSON(w, status, ErrorBody{Error: reason})
}

// WriteErrorDetail writes the failure envelope with an additional
// human-readable message.
func WriteErrorDetail(w http.ResponseWriter, status int, reason, message string) {
	WriteJSON(w, status, ErrorBody{Error: reason, Message: message})
}
