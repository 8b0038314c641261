//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"x402-subscriptions/internal/config"
)

func TestWith(t *testing.T) {
	t.Run("attaches ids found in context", func(t *testing.T) {
		// --- Arrange ---
		var buf bytes.Buffer
		base := newLogger(&buf, config.LogConfig{Level: "info", Format: "json"}, false)
		ctx := WithTraceID(context.Background(), "req-1")
		ctx = WithSubscriptionID(ctx, "sub-1")

		// --- Act ---
		With(ctx, base).Info().Msg("hello")

		// --- Assert ---
		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("log line is not json: %v (%q)", err, buf.String())
		}
		if line["trace_id"] != "req-1" || line["subscription_id"] != "sub-1" {
			t.Errorf("missing context fields: %v", line)
		}
		if _, ok := line["provider_id"]; ok {
			t.Errorf("provider_id should be absent: %v", line)
		}
	})

	t.Run("trace id round trips", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "abc")
		if got := TraceID(ctx); got != "abc" {
			t.Errorf("expected abc, got %q", got)
		}
		if got := TraceID(context.Background()); got != "" {
			t.Errorf("expected empty trace id, got %q", got)
		}
	})
}

func TestRedact(t *testing.T) {
	addr := "0x1111111111111111111111111111111111111111"
	tests := []struct {
		name string
		in   string
		dev  bool
		want string
	}{
		{"dev keeps value", addr, true, addr},
		{"short value hidden", "0x1234", false, "***"},
		{"address shortened", addr, false, "0x1111...1111"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Redact(tc.in, tc.dev); got != tc.want {
				t.Errorf("Redact(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
