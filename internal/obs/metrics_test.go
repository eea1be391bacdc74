package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                             "/",
		"/metrics":                     "/metrics",
		"/elevations":                  "/elevations",
		"/elevations/stats":            "/elevations/stats",
		"/elevations/elv_01abc":        "/elevations/:id",
		"/elevations/elv_01abc/cancel": "/elevations/:id/cancel",
		"/elevations?status=Active":    "/elevations",
		"/me/effective-identity":       "/me/effective-identity",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentPassesStatus(t *testing.T) {
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/elevations/stats", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
}

func TestLogRequestWritesJSON(t *testing.T) {
	logger := Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	LogRequest(map[string]any{"method": "GET", "status": 200})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	if entry["msg"] != "request_complete" || entry["method"] != "GET" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing ts key: %v", entry)
	}
}
