package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"elevate.org/internal/auth"
	"elevate.org/internal/dates"
	"elevate.org/internal/elevation"
	"elevate.org/internal/identity"
)

type cancelRequest struct {
	Reason string `json:"reason"`
}

type listResponse struct {
	Items  []elevation.Grant `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type delegatesResponse struct {
	Items []identity.StaffIdentity `json:"items"`
}

func (a *API) handleElevationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listElevations(w, r)
	case http.MethodPost:
		a.createElevation(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleElevationResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/elevations/"), "/")
	if rest == "" {
		a.handleElevationsCollection(w, r)
		return
	}
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] == "stats":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.elevationStats(w, r)
	case len(parts) == 1 && parts[0] == "eligible-delegates":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.eligibleDelegates(w, r)
	case len(parts) == 1 && parts[0] == "events":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if _, ok := ensurePermission(w, r, auth.PermElevationView); !ok {
			return
		}
		a.Stream(w, r)
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getElevation(w, r, parts[0])
		case http.MethodPut:
			a.updateElevation(w, r, parts[0])
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	case len(parts) == 2 && parts[1] == "cancel":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.cancelElevation(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "complete":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.completeElevation(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createElevation(w http.ResponseWriter, r *http.Request) {
	principal, ok := ensurePermission(w, r, auth.PermElevationManage)
	if !ok {
		return
	}
	var req elevation.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		if dates.IsParseError(err) {
			handleElevationError(w, r, fmt.Errorf("%w: %v", elevation.ErrValidation, err))
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := a.elevations.Create(r.Context(), req, principal.UserID)
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	w.Header().Set("Location", "/elevations/"+grant.ID)
	writeJSON(w, http.StatusCreated, grant)
}

func (a *API) updateElevation(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := ensurePermission(w, r, auth.PermElevationManage)
	if !ok {
		return
	}
	var req elevation.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		if dates.IsParseError(err) {
			handleElevationError(w, r, fmt.Errorf("%w: %v", elevation.ErrValidation, err))
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := a.elevations.Update(r.Context(), id, req, principal.UserID)
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) cancelElevation(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := ensurePermission(w, r, auth.PermElevationManage)
	if !ok {
		return
	}
	var req cancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := a.elevations.Cancel(r.Context(), id, req.Reason, principal.UserID)
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) completeElevation(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := ensurePermission(w, r, auth.PermElevationManage)
	if !ok {
		return
	}
	grant, err := a.elevations.Complete(r.Context(), id, principal.UserID)
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) getElevation(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := ensurePermission(w, r, auth.PermElevationView); !ok {
		return
	}
	grant, err := a.elevations.Get(r.Context(), id)
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) listElevations(w http.ResponseWriter, r *http.Request) {
	if _, ok := ensurePermission(w, r, auth.PermElevationView); !ok {
		return
	}
	q := r.URL.Query()

	filter := elevation.ListFilter{
		UserID: strings.TrimSpace(q.Get("user_id")),
		Search: strings.TrimSpace(q.Get("search")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := elevation.ParseStatus(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "status must be one of Active, Completed, Cancelled")
			return
		}
		filter.Status = st
	}
	var err error
	if filter.From, err = parseOptionalDate(q.Get("from")); err != nil {
		handleElevationError(w, r, fmt.Errorf("%w: from: %v", elevation.ErrValidation, err))
		return
	}
	if filter.To, err = parseOptionalDate(q.Get("to")); err != nil {
		handleElevationError(w, r, fmt.Errorf("%w: to: %v", elevation.ErrValidation, err))
		return
	}
	if filter.Limit, err = parsePositiveInt("limit", q.Get("limit"), 50, 1, 500); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = parsePositiveInt("offset", q.Get("offset"), 0, 0, 1_000_000); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, err := a.elevations.List(r.Context(), filter)
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	if items == nil {
		items = []elevation.Grant{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Limit: filter.Limit, Offset: filter.Offset})
}

func (a *API) elevationStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := ensurePermission(w, r, auth.PermElevationView); !ok {
		return
	}
	stats, err := a.elevations.Stats(r.Context())
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) eligibleDelegates(w http.ResponseWriter, r *http.Request) {
	if _, ok := ensurePermission(w, r, auth.PermElevationManage); !ok {
		return
	}
	q := r.URL.Query()
	staff, err := a.elevations.EligibleDelegates(r.Context(), identity.DelegateFilter{
		BranchID: strings.TrimSpace(q.Get("branch_id")),
		Search:   strings.TrimSpace(q.Get("search")),
	})
	if err != nil {
		handleElevationError(w, r, err)
		return
	}
	if staff == nil {
		staff = []identity.StaffIdentity{}
	}
	writeJSON(w, http.StatusOK, delegatesResponse{Items: staff})
}

func (a *API) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := ensurePermission(w, r, auth.PermAdminSweep); !ok {
		return
	}
	if a.sweeper == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sweeper not configured")
		return
	}
	res, err := a.sweeper.Sweep(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseOptionalDate(raw string) (dates.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return dates.Date{}, nil
	}
	return dates.Parse(raw)
}

func handleElevationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, elevation.ErrValidation):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, elevation.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, elevation.ErrInvalidState):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, elevation.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeInternal(w, r, err)
	}
}
