package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestJSONLoggerAddsServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "retriever-api", "info")
	logger.Debug("hidden")
	logger.Info("visible", "k", 1)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if record["service"] != "retriever-api" {
		t.Fatalf("expected service attribute, got %v", record["service"])
	}
	if record["msg"] != "visible" {
		t.Fatalf("unexpected message %v", record["msg"])
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}
