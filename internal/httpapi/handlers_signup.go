package httpapi

import (
	"errors"
	"net/http"

	"github.com/weararcstarz/arcstar/internal/domain"
)

type joinRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a *api) handleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeMethodNotAllowed(w)
		return
	}

	if !a.origins.IsAllowedRequest(r) {
		WriteDomainError(w, domain.ErrForbiddenOrigin)
		return
	}
	if !a.allow(w, r, a.signupLimiter) {
		return
	}

	var req joinRequest
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	_, err := a.waitlist.Join(r.Context(), req.Name, req.Email)
	switch {
	case err == nil:
		WriteSuccess(w, "Successfully joined waitlist")
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrAlreadySubscribed):
		WriteDomainError(w, err)
	default:
		a.logger.Error("waitlist signup failed", "email", domain.RedactEmail(req.Email), "err", err)
		WriteError(w, http.StatusInternalServerError, "Failed to join waitlist. Please try again later.")
	}
}
