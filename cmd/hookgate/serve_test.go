package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/smykla-skalski/hookgate/internal/engine"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

func newServeEngine(t *testing.T) *engine.Engine {
	t.Helper()

	disabled := false

	e, err := engine.New(&config.Config{Audit: &config.AuditConfig{Enabled: &disabled}})
	if err != nil {
		t.Fatalf("engine.New() error: %v", err)
	}

	t.Cleanup(func() { _ = e.Close() })

	return e
}

func TestServeLoopAnswersEveryLine(t *testing.T) {
	e := newServeEngine(t)
	in := strings.NewReader("{\"id\":\"a\",\"event\":\"SessionEnd\"}\n\n{\"id\":\"b\",\"event\":\"SessionStart\"}\n")

	var out bytes.Buffer

	if err := serveLoop(context.Background(), e, logger.NewNoOpLogger(), in, &out); err != nil {
		t.Fatalf("serveLoop() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d responses, want 2: %q", len(lines), out.String())
	}

	if !strings.Contains(lines[0], `"id":"a"`) || !strings.Contains(lines[1], `"id":"b"`) {
		t.Errorf("responses out of order: %q", lines)
	}
}

func TestServeLoopReturnsWhenCancelledWhileStdinIdle(t *testing.T) {
	e := newServeEngine(t)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- serveLoop(ctx, e, logger.NewNoOpLogger(), pr, io.Discard)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveLoop() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveLoop() still waiting on stdin after cancellation")
	}
}
