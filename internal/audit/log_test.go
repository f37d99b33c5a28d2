package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"aftervisit.org/internal/auth"
	"aftervisit.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEventUserContext(t *testing.T) {
	buf := captureLog(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.UserPrincipal(&auth.Claims{
		UserID:   "u-42",
		TenantID: "mercy-general",
		Username: "s.johnson",
		Role:     auth.RoleClinician,
	}))

	if err := LogEvent(ctx, "auth.login.succeeded", map[string]any{"username": "s.johnson"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (line %q)", err, buf.String())
	}
	if entry["type"] != "audit" || entry["event"] != "auth.login.succeeded" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "u-42" || entry["tenant_id"] != "mercy-general" {
		t.Fatalf("caller context missing: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["username"] != "s.johnson" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventServiceContext(t *testing.T) {
	buf := captureLog(t)

	ctx := auth.ContextWithPrincipal(context.Background(), auth.ServicePrincipal(&auth.DelegatedIdentity{
		Email:         "reports@aftervisit-prod.iam.gserviceaccount.com",
		EmailVerified: true,
	}))

	if err := LogEvent(ctx, "auth.user.unlocked", nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["service_email"] != "reports@aftervisit-prod.iam.gserviceaccount.com" {
		t.Fatalf("service context missing: %v", entry)
	}
	if _, hasUser := entry["user_id"]; hasUser {
		t.Fatalf("service entries must not carry a user id: %v", entry)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected error for empty event name")
	}
}
