package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"nil", nil, false, false},
		{"canceled", context.Canceled, false, false},
		{"no reply", fmt.Errorf("respond: %w", nats.ErrMsgNoReply), false, false},
		{"payload", nats.ErrMaxPayload, false, false},
		{"timeout", nats.ErrTimeout, true, true},
		{"closed", fmt.Errorf("respond: %w", nats.ErrConnectionClosed), true, true},
		{"reconnecting", nats.ErrConnectionReconnecting, true, true},
		{"other", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyNATSError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("classifyNATSError(%v) = %+v", tc.err, got)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	wrapped := wrapTemporaryIfNeeded(nats.ErrTimeout)
	if !domain.IsKind(wrapped, domain.ErrTemporary) || !errors.Is(wrapped, nats.ErrTimeout) {
		t.Fatalf("expected temporary wrap preserving cause, got %v", wrapped)
	}

	fatal := errors.New("boom")
	if got := wrapTemporaryIfNeeded(fatal); got != fatal {
		t.Fatalf("expected fatal error unchanged, got %v", got)
	}
}
