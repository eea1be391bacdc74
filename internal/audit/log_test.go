package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"elevate.org/internal/auth"
	"elevate.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.NewPrincipal("user-42", "S-42", "branch_manager", "B1", true, "elv_7", nil))

	if err := LogEvent(ctx, "elevation.created", map[string]any{"grant_id": "elv_1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "elevation.created" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	if entry["acting_role_id"] != "branch_manager" || entry["acting_grant_id"] != "elv_7" {
		t.Fatalf("acting identity missing: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["grant_id"] != "elv_1" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}
