// Package signalstream turns os.Signal delivery into a checkpointed
// iterator usable from a nursery task: signal handlers are installed for
// the stream's lifetime and removed as soon as the caller stops consuming
// it.
package signalstream

import (
	"context"
	"os"
	"os/signal"

	"github.com/rivergrove/nursery/nursery"
)

// Stream yields signals registered at Receive time until its Close is
// called or the owning context is cancelled.
type Stream struct {
	ch     chan os.Signal
	cancel func()
}

// Receive registers sigs with the OS and returns a Stream to consume them.
// Callers must call Close once done, typically via defer, to deregister the
// handlers.
func Receive(sigs ...os.Signal) *Stream {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, sigs...)
	return &Stream{ch: ch, cancel: func() { signal.Stop(ch) }}
}

// Next blocks for the next received signal, checkpointing cancellation
// before and during the wait.
func (s *Stream) Next(ctx context.Context) (os.Signal, error) {
	if err := nursery.Checkpoint(ctx); err != nil {
		return nil, err
	}
	select {
	case sig := <-s.ch:
		return sig, nil
	case <-ctx.Done():
		return nil, nursery.ErrCancelled
	}
}

// Close deregisters the stream's signal handlers. Idempotent.
func (s *Stream) Close() {
	s.cancel()
}
