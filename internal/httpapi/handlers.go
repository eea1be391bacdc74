package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"elevate.org/internal/audit"
	"elevate.org/internal/elevation"
	"elevate.org/internal/identity"
	"elevate.org/internal/obs"
	"elevate.org/internal/schedule"
	"elevate.org/internal/stream"
)

const serviceName = "elevate-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database; a nil DB is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the domain services behind the HTTP surface.
type Deps struct {
	Elevations *elevation.Service
	Resolver   *elevation.Resolver
	Sweeper    *elevation.Sweeper
	Schedule   *schedule.Ledger
	Directory  identity.Directory
	Stream     *stream.Stream
}

// Options tune the HTTP layer.
type Options struct {
	Version        string
	RateBurst      int
	RatePerSecond  int
	MaxBodyBytes   int64
	AllowDevTokens bool
	TokenTTL       time.Duration
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string

	elevations *elevation.Service
	resolver   *elevation.Resolver
	sweeper    *elevation.Sweeper
	schedule   *schedule.Ledger
	directory  identity.Directory
	stream     *stream.Stream

	rateBurst  int
	ratePerSec int
	maxBody    int64
	devTokens  bool
	tokenTTL   time.Duration
}

func New(rp readinessChecker, deps Deps, opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    opts.Version,
		elevations: deps.Elevations,
		resolver:   deps.Resolver,
		sweeper:    deps.Sweeper,
		schedule:   deps.Schedule,
		directory:  deps.Directory,
		stream:     deps.Stream,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSecond,
		maxBody:    opts.MaxBodyBytes,
		devTokens:  opts.AllowDevTokens,
		tokenTTL:   opts.TokenTTL,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 50
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 25
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 15 * time.Minute
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/elevations", a.handleElevationsCollection)
	a.mux.HandleFunc("/elevations/", a.handleElevationResource)
	a.mux.HandleFunc("/admin/elevations/sweep", a.handleSweep)

	a.mux.HandleFunc("/me/effective-identity", a.handleEffectiveIdentity)
	a.mux.HandleFunc("/me/effective-branches", a.handleEffectiveBranches)
	a.mux.HandleFunc("/roles", a.handleRoles)
	a.mux.HandleFunc("/branches", a.handleBranches)

	a.mux.HandleFunc("/schedule-adjustments", a.handleAdjustmentHistory)
	a.mux.HandleFunc("/schedule-adjustments/skip", a.handleSkip)
	a.mux.HandleFunc("/schedule-adjustments/move", a.handleMove)
	a.mux.HandleFunc("/schedule-adjustments/pending-dates", a.handlePendingDates)
	a.mux.HandleFunc("/schedule-adjustments/next-due", a.handleNextDue)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the full middleware chain around the routes.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeInternal logs err and hides it from the client.
func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	obs.Logger().WithError(err).
		WithField("request_id", RequestIDFromContext(r.Context())).
		WithField("path", r.URL.Path).
		Error("request failed")
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(name, raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New(name + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

// RequestIDFromContext returns the request id set by the RequestID middleware.
func RequestIDFromContext(ctx context.Context) string {
	return audit.RequestIDFromContext(ctx)
}
