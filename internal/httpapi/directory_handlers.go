package httpapi

import (
	"errors"
	"net/http"

	"elevate.org/internal/auth"
	"elevate.org/internal/elevation"
	"elevate.org/internal/identity"
)

type rolesResponse struct {
	Items []identity.Role `json:"items"`
}

type branchesResponse struct {
	Items []identity.Branch `json:"items"`
}

type effectiveBranchesResponse struct {
	UserID   string                      `json:"user_id"`
	Branches []elevation.EffectiveBranch `json:"branches"`
}

func (a *API) handleEffectiveIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := currentPrincipal(w, r)
	if !ok {
		return
	}
	eff, err := a.resolver.Resolve(r.Context(), principal.UserID)
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eff)
}

func (a *API) handleEffectiveBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := currentPrincipal(w, r)
	if !ok {
		return
	}
	branches, err := a.resolver.EffectiveBranches(r.Context(), principal.UserID)
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, effectiveBranchesResponse{UserID: principal.UserID, Branches: branches})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := ensurePermission(w, r, auth.PermElevationView); !ok {
		return
	}
	roles, err := a.directory.ListRoles(r.Context())
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	if roles == nil {
		roles = []identity.Role{}
	}
	writeJSON(w, http.StatusOK, rolesResponse{Items: roles})
}

func (a *API) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := ensurePermission(w, r, auth.PermElevationView); !ok {
		return
	}
	branches, err := a.directory.ListBranches(r.Context())
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	if branches == nil {
		branches = []identity.Branch{}
	}
	writeJSON(w, http.StatusOK, branchesResponse{Items: branches})
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, identity.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeInternal(w, r, err)
}
