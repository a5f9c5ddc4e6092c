package api

import (
	"encoding/json"
	"net/http"

	"github.com/spherical/bill-assistant/internal/domain"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps a domain error to its HTTP status and user-facing message.
func StatusFor(err error) (int, string) {
	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest, err.Error()
	case domain.ErrorTypeNotFound:
		return http.StatusNotFound, err.Error()
	case domain.ErrorTypeNoContext:
		return http.StatusConflict, domain.NoContextUserMessage
	case domain.ErrorTypeExtraction:
		return http.StatusUnprocessableEntity, err.Error()
	case domain.ErrorTypeTranslation, domain.ErrorTypeBackend:
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, message := StatusFor(err)
	kind := string(domain.TypeOf(err))
	if kind == "" {
		kind = "internal"
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}
