package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/domain"
	"github.com/weararcstarz/arcstar/internal/service"
)

const maxDiagnosticLength = 200

type adminRequest struct {
	Action   string          `json:"action"`
	Password string          `json:"password"`
	Subject  string          `json:"subject"`
	Message  string          `json:"message"`
	Rows     json.RawMessage `json:"rows"`
}

// handleAdmin serves the single admin endpoint. Checks run in a fixed order:
// preflight, configuration, origin, rate limit, then the action itself.
func (a *api) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := auth.ValidateAdminConfig(a.adminPassword, a.tokenSecret); err != nil {
		a.logger.Error("admin auth misconfigured", "err", err)
		WriteError(w, http.StatusInternalServerError, "Admin auth is not configured")
		return
	}
	if !a.origins.IsAllowedRequest(r) {
		WriteDomainError(w, domain.ErrForbiddenOrigin)
		return
	}
	if !a.allow(w, r, a.apiLimiter) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.requireAdmin(a.handleAdminList)(w, r)
	case http.MethodPost:
		var req adminRequest
		if err := decodeJSON(w, r, &req, maxAdminBodyBytes); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		switch req.Action {
		case "login":
			a.handleAdminLogin(w, r, req)
		case "logout":
			a.handleAdminLogout(w, r)
		default:
			a.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
				a.handleAdminAction(w, r, req)
			})(w, r)
		}
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *api) handleAdminAction(w http.ResponseWriter, r *http.Request, req adminRequest) {
	switch req.Action {
	case "send-broadcast":
		a.handleAdminBroadcast(w, r, req)
	case "merge-subscribers":
		a.handleAdminMerge(w, r, req)
	default:
		writeMethodNotAllowed(w)
	}
}

type subscribersResponse struct {
	Status      string              `json:"status"`
	Count       int                 `json:"count"`
	Subscribers []domain.Subscriber `json:"subscribers"`
}

func (a *api) handleAdminList(w http.ResponseWriter, r *http.Request) {
	subs, err := a.admin.ListSubscribers(r.Context())
	if err != nil {
		a.writeStoreError(w, "Failed to load subscribers", err)
		return
	}
	if subs == nil {
		subs = []domain.Subscriber{}
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		filename := fmt.Sprintf("waitlist-%s.csv", a.now().UTC().Format("2006-01-02"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if err := service.WriteCSV(w, subs); err != nil {
			a.logger.Warn("write csv export", "err", err)
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, subscribersResponse{
		Status:      statusSuccess,
		Count:       len(subs),
		Subscribers: subs,
	})
}

type broadcastResponse struct {
	Status string `json:"status"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

func (a *api) handleAdminBroadcast(w http.ResponseWriter, r *http.Request, req adminRequest) {
	res, err := a.admin.Broadcast(r.Context(), req.Subject, req.Message)
	if err != nil {
		if isDomainError(err) {
			WriteDomainError(w, err)
			return
		}
		a.writeStoreError(w, "Failed to send broadcast", err)
		return
	}
	WriteJSON(w, http.StatusOK, broadcastResponse{Status: statusSuccess, Sent: res.Sent, Failed: res.Failed})
}

type mergeResponse struct {
	Status   string `json:"status"`
	Count    int    `json:"count"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

type mergeRowJSON struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a *api) handleAdminMerge(w http.ResponseWriter, r *http.Request, req adminRequest) {
	var (
		res service.MergeResult
		err error
	)
	text, rows, structured, perr := parseRowsField(req.Rows)
	switch {
	case perr != nil:
		err = perr
	case structured:
		res, err = a.admin.MergeRows(r.Context(), rows, 0)
	default:
		res, err = a.admin.Merge(r.Context(), text)
	}
	if err != nil {
		if isDomainError(err) {
			WriteDomainError(w, err)
			return
		}
		a.writeStoreError(w, "Failed to merge subscribers", err)
		return
	}

	WriteJSON(w, http.StatusOK, mergeResponse{
		Status:   statusSuccess,
		Count:    res.Count,
		Imported: res.Imported,
		Skipped:  res.Skipped,
	})
}

// parseRowsField accepts rows as one newline-delimited string, an array of
// lines or an array of {name, email} objects.
func parseRowsField(raw json.RawMessage) (string, []domain.MergeRow, bool, error) {
	required := domain.NewValidationError(map[string]string{"rows": "Rows are required"})
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil, false, required
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return "", nil, false, required
		}
		return text, nil, false, nil
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "\n"), nil, false, nil
	}

	var objs []mergeRowJSON
	if err := json.Unmarshal(raw, &objs); err == nil {
		rows := make([]domain.MergeRow, 0, len(objs))
		for _, o := range objs {
			rows = append(rows, domain.MergeRow{Name: service.SanitizeName(o.Name), Email: o.Email})
		}
		return "", rows, true, nil
	}

	return "", nil, false, domain.NewValidationError(map[string]string{"rows": "Rows must be text or a list"})
}

// writeStoreError hides the cause in prod and otherwise appends a truncated
// diagnostic.
func (a *api) writeStoreError(w http.ResponseWriter, msg string, err error) {
	a.logger.Error(strings.ToLower(msg), "err", err)
	if !a.isProd {
		msg = msg + ": " + truncate(err.Error(), maxDiagnosticLength)
	}
	WriteError(w, http.StatusInternalServerError, msg)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrNoRecipients,
		domain.ErrMailNotConfigured,
		domain.ErrUnauthorized,
		domain.ErrNotFound,
		domain.ErrRateLimited,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
