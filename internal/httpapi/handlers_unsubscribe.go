package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/weararcstarz/arcstar/internal/domain"
)

const unsubscribedMessage = "You have been unsubscribed."

func (a *api) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet, http.MethodPost:
	default:
		writeMethodNotAllowed(w)
		return
	}

	if !a.allow(w, r, a.apiLimiter) {
		return
	}

	params, err := readParams(w, r, "email", "token")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	html := wantsHTML(r)
	err = a.waitlist.Unsubscribe(r.Context(), params["email"], params["token"])
	status, msg := http.StatusOK, unsubscribedMessage
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation):
		status, msg = http.StatusBadRequest, "Invalid email"
	case errors.Is(err, domain.ErrMisconfigured):
		a.logger.Error("unsubscribe misconfigured", "err", err)
		status, msg = http.StatusInternalServerError, "Server not configured"
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "Invalid unsubscribe link"
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "Subscriber not found"
	default:
		a.logger.Error("unsubscribe failed", "email", domain.RedactEmail(params["email"]), "err", err)
		status, msg = http.StatusInternalServerError, "Failed to update subscription"
	}

	if html {
		title := "Unsubscribed"
		if status != http.StatusOK {
			title = "Unsubscribe failed"
		}
		renderPublicPage(w, status, title, msg)
		return
	}
	if status != http.StatusOK {
		WriteError(w, status, msg)
		return
	}
	WriteSuccess(w, msg)
}

// wantsHTML is true for a browser following the link in an email.
func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
