package httpapi

import (
	"net/http"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/domain"
)

type loginResponse struct {
	Status    string `json:"status"`
	ExpiresAt string `json:"expiresAt"`
}

func (a *api) handleAdminLogin(w http.ResponseWriter, r *http.Request, req adminRequest) {
	if !a.checkLogin(w, r) {
		return
	}

	if req.Password == "" || !auth.VerifyAdminPassword(a.adminPassword, req.Password) {
		a.loginFailed(w, r)
		return
	}
	a.loginSucceeded(r)

	token, claims, err := a.signer.Mint(a.now())
	if err != nil {
		a.logger.Error("mint admin token", "err", err)
		WriteDomainError(w, err)
		return
	}

	auth.SetSessionCookie(w, token, a.signer.TTL(), a.secureCookies(r))
	a.logger.Info("admin login", "ip", a.clientIP(r))
	WriteJSON(w, http.StatusOK, loginResponse{
		Status:    statusSuccess,
		ExpiresAt: domain.FormatTimestamp(claims.Expiry()),
	})
}

func (a *api) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, a.secureCookies(r))
	WriteSuccess(w, "Logged out")
}
