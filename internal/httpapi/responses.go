package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/weararcstarz/arcstar/internal/domain"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type messageEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, messageEnvelope{Status: statusError, Message: message})
}

func WriteSuccess(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, messageEnvelope{Status: statusSuccess, Message: message})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRateLimited sets Retry-After (whole seconds, at least 1) and writes 429.
func WriteRateLimited(w http.ResponseWriter, retryAfterSeconds int, message string) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteError(w, http.StatusTooManyRequests, message)
}

func WriteDomainError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		rerr *domain.RateLimitError
	)
	switch {
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, verr.Message())
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, "Invalid request")
	case errors.As(err, &rerr):
		WriteRateLimited(w, rerr.RetryAfterSeconds(), "Too many requests. Please try again later.")
	case errors.Is(err, domain.ErrRateLimited):
		WriteRateLimited(w, 1, "Too many requests. Please try again later.")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrForbiddenOrigin):
		WriteError(w, http.StatusForbidden, "Forbidden origin")
	case errors.Is(err, domain.ErrAlreadySubscribed):
		WriteError(w, http.StatusConflict, "This email is already on the waitlist")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrNoRecipients):
		WriteError(w, http.StatusBadRequest, "No subscribers found")
	case errors.Is(err, domain.ErrMailNotConfigured):
		WriteError(w, http.StatusInternalServerError, "Email service not configured")
	case errors.Is(err, domain.ErrMisconfigured):
		WriteError(w, http.StatusInternalServerError, "Server not configured")
	default:
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
