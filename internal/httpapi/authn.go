package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"elevate.org/internal/auth"
	"elevate.org/internal/elevation"
	"elevate.org/internal/identity"
	"elevate.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
}

// withAuth authenticates the bearer token and attaches a principal built from
// the caller's effective identity. The permanent identity is never consulted
// directly; an in-window grant changes the role whose permissions apply.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeInternal(w, r, err)
			return
		}

		eff, err := a.resolver.Resolve(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, elevation.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "unknown user")
				return
			}
			writeInternal(w, r, err)
			return
		}
		perms, err := a.directory.RolePermissions(r.Context(), eff.RoleID)
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				obs.Logger().WithError(err).
					WithField("request_id", RequestIDFromContext(r.Context())).
					WithField("user_id", eff.UserID).
					WithField("role_id", eff.RoleID).
					Error("effective role missing from directory")
				writeError(w, r, http.StatusForbidden, "effective role "+eff.RoleID+" is not configured")
				return
			}
			writeInternal(w, r, err)
			return
		}

		principal := auth.NewPrincipal(eff.UserID, eff.StaffID, eff.RoleID, eff.BranchID, eff.IsTemporary, eff.GrantID, perms)
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// ensurePermission writes 401/403 and returns false when the caller lacks perm.
func ensurePermission(w http.ResponseWriter, r *http.Request, perm string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	if !principal.HasPermission(perm) {
		writeError(w, r, http.StatusForbidden, "missing permission "+perm)
		return auth.Principal{}, false
	}
	return principal, true
}

func currentPrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
