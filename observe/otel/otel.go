package otel

import (
	"context"
	"time"

	"github.com/rivergrove/nursery/nursery"
)

// Nop is a no-op implementation of nursery.Observer. It serves as a
// placeholder for an OpenTelemetry-backed observer without adding a
// go.opentelemetry.io dependency nothing else in the module needs.
type Nop struct{}

var _ nursery.Observer = (*Nop)(nil)

// NewNop returns a no-op observer.
func NewNop() *Nop { return &Nop{} }

// ScopeCreated is a no-op.
func (*Nop) ScopeCreated(context.Context) {}

// ScopeCancelled is a no-op.
func (*Nop) ScopeCancelled(context.Context, error) {}

// GroupJoined is a no-op.
func (*Nop) GroupJoined(context.Context, time.Duration, int) {}

// TaskStarted is a no-op.
func (*Nop) TaskStarted(context.Context, string) {}

// TaskFinished is a no-op.
func (*Nop) TaskFinished(context.Context, string, time.Duration, error, bool) {}
