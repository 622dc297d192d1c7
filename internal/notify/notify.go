// Package notify separates critical pipeline effects from best-effort side
// effects. A notification or audience-sync failure must never nack the
// message that triggered it; persistence failures must.
package notify

import (
	"context"
	"log/slog"
)

// Effect is one non-critical side effect.
type Effect func(ctx context.Context) error

// BestEffort runs the effect, logging and swallowing any error or panic.
// The label names the effect in logs.
func BestEffort(ctx context.Context, label string, effect Effect) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[Notify] Best-effort effect panicked", "effect", label, "panic", r)
		}
	}()
	if err := effect(ctx); err != nil {
		slog.Warn("[Notify] Best-effort effect failed", "effect", label, "error", err)
	}
}
