package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"elevate.org/internal/auth"
	"elevate.org/internal/dates"
	"elevate.org/internal/schedule"
)

type skipRequest struct {
	CenterID string       `json:"center_id"`
	LoanID   string       `json:"loan_id"`
	Dates    []dates.Date `json:"dates"`
	Reason   string       `json:"reason"`
}

type moveRequest struct {
	LoanID       string     `json:"loan_id"`
	OriginalDate dates.Date `json:"original_date"`
	NewDate      dates.Date `json:"new_date"`
	Reason       string     `json:"reason"`
}

type pendingDatesResponse struct {
	CenterID string                 `json:"center_id"`
	From     dates.Date             `json:"from"`
	To       dates.Date             `json:"to"`
	Dates    []schedule.PendingDate `json:"dates"`
}

type historyResponse struct {
	LoanID string                `json:"loan_id"`
	Items  []schedule.Adjustment `json:"items"`
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := ensurePermission(w, r, auth.PermScheduleAdjust)
	if !ok {
		return
	}
	var req skipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if dates.IsParseError(err) {
			handleScheduleError(w, r, fmt.Errorf("%w: %v", schedule.ErrValidation, err))
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	scope := schedule.Scope{
		CenterID: strings.TrimSpace(req.CenterID),
		LoanID:   strings.TrimSpace(req.LoanID),
	}
	res, err := a.schedule.RecordSkip(r.Context(), scope, req.Dates, req.Reason, principal.UserID)
	if err != nil {
		handleScheduleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := ensurePermission(w, r, auth.PermScheduleAdjust)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if dates.IsParseError(err) {
			handleScheduleError(w, r, fmt.Errorf("%w: %v", schedule.ErrValidation, err))
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	adj, err := a.schedule.RecordMove(r.Context(), strings.TrimSpace(req.LoanID), req.OriginalDate, req.NewDate, req.Reason, principal.UserID)
	if err != nil {
		handleScheduleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, adj)
}

func (a *API) handlePendingDates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := ensurePermission(w, r, auth.PermScheduleView); !ok {
		return
	}
	q := r.URL.Query()
	centerID := strings.TrimSpace(q.Get("center_id"))
	if centerID == "" {
		writeError(w, r, http.StatusBadRequest, "center_id is required")
		return
	}
	from, err := dates.Parse(q.Get("from"))
	if err != nil {
		handleScheduleError(w, r, fmt.Errorf("%w: from: %v", schedule.ErrValidation, err))
		return
	}
	to, err := dates.Parse(q.Get("to"))
	if err != nil {
		handleScheduleError(w, r, fmt.Errorf("%w: to: %v", schedule.ErrValidation, err))
		return
	}
	pending, err := a.schedule.PendingDates(r.Context(), centerID, from, to)
	if err != nil {
		handleScheduleError(w, r, err)
		return
	}
	if pending == nil {
		pending = []schedule.PendingDate{}
	}
	writeJSON(w, http.StatusOK, pendingDatesResponse{CenterID: centerID, From: from, To: to, Dates: pending})
}

func (a *API) handleNextDue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := ensurePermission(w, r, auth.PermScheduleView); !ok {
		return
	}
	q := r.URL.Query()
	loanID := strings.TrimSpace(q.Get("loan_id"))
	if loanID == "" {
		writeError(w, r, http.StatusBadRequest, "loan_id is required")
		return
	}
	nominal, err := dates.Parse(q.Get("date"))
	if err != nil {
		handleScheduleError(w, r, fmt.Errorf("%w: date: %v", schedule.ErrValidation, err))
		return
	}
	proj, err := a.schedule.ProjectNextDueDate(r.Context(), loanID, nominal)
	if err != nil {
		handleScheduleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (a *API) handleAdjustmentHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := ensurePermission(w, r, auth.PermScheduleView); !ok {
		return
	}
	loanID := strings.TrimSpace(r.URL.Query().Get("loan_id"))
	if loanID == "" {
		writeError(w, r, http.StatusBadRequest, "loan_id is required")
		return
	}
	items, err := a.schedule.History(r.Context(), loanID)
	if err != nil {
		handleScheduleError(w, r, err)
		return
	}
	if items == nil {
		items = []schedule.Adjustment{}
	}
	writeJSON(w, http.StatusOK, historyResponse{LoanID: loanID, Items: items})
}

func handleScheduleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, schedule.ErrValidation):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, schedule.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeInternal(w, r, err)
	}
}
