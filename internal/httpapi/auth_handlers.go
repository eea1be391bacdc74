package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"elevate.org/internal/audit"
	"elevate.org/internal/auth"
	"elevate.org/internal/identity"
)

type tokenRequest struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleAuthToken issues a development token for a user known to the
// directory. Session handling belongs to the upstream identity provider.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.devTokens {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	if _, err := a.directory.GetStaffIdentity(r.Context(), userID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown user")
			return
		}
		writeInternal(w, r, err)
		return
	}

	token, expiresAt, err := auth.GenerateToken(userID, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"subject":    userID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
