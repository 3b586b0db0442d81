package logging

import (
	"context"
	"testing"
)

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("EnsureRunID returned an empty id")
	}
	if got := RunIDFromContext(ctx); got != id {
		t.Fatalf("context round-trip: want %q, got %q", id, got)
	}

	// A second call must keep the existing id.
	_, again := EnsureRunID(ctx)
	if again != id {
		t.Fatalf("EnsureRunID replaced an existing id: %q -> %q", id, again)
	}
}

func TestRunIDFromContextMissing(t *testing.T) {
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Fatalf("want empty id on a bare context, got %q", got)
	}
	if got := RunIDFromContext(nil); got != "" {
		t.Fatalf("nil context must yield an empty id, got %q", got)
	}
}

func TestWithRunLoggerNilBase(t *testing.T) {
	ctx, log := WithRunLogger(context.Background(), nil)
	if log == nil {
		t.Fatalf("WithRunLogger returned a nil logger")
	}
	if RunIDFromContext(ctx) == "" {
		t.Fatalf("WithRunLogger must ensure a run id")
	}
	// Must not panic.
	log.Info(ctx, "hello", String("k", "v"), Int("n", 1))
}

func TestLoggerFromContextRoundTrip(t *testing.T) {
	l := Noop()
	ctx := ContextWithLogger(context.Background(), l)
	if got := LoggerFromContext(ctx); got == nil {
		t.Fatalf("logger did not round-trip through context")
	}
	if got := LoggerFromContext(context.Background()); got != nil {
		t.Fatalf("bare context must yield nil logger")
	}
}
