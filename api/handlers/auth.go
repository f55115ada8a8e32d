package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/profitwave/support-chat-api/api"
	"github.com/profitwave/support-chat-api/config"
	"github.com/profitwave/support-chat-api/models"
)

// Auth mints realtime handshake tokens for authenticated callers
type Auth struct {
	Issuer *api.SocketTokenIssuer
}

// SocketTokenHandler returns a short-lived token binding the caller's
// verified identity for the realtime handshake
func (a Auth) SocketTokenHandler(w http.ResponseWriter, r *http.Request) {
	info := api.AuthInfo(r)
	if info == nil {
		config.ErrorStatus("no authenticated identity", http.StatusUnauthorized, w, errForbidden)
		return
	}

	token, err := a.Issuer.Issue(info.ID(), api.IsAdmin(info))
	if err != nil {
		config.ErrorStatus("failed to issue socket token", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(models.SocketTokenResponse{Token: token})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
