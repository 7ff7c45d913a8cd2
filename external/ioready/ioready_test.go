package ioready

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rivergrove/nursery/nursery"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func listenLoopback(t *testing.T) (net.Listener, func() net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	dial := func() net.Conn {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return conn
	}
	return ln, dial
}

func TestWaitReadableUnblocksOnData(t *testing.T) {
	t.Parallel()
	ln, dial := listenLoopback(t)
	client := dial()
	defer client.Close()

	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer server.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = client.Write([]byte("x"))
	}()

	err = nursery.Run(context.Background(), func(ctx context.Context) error {
		return WaitReadable(ctx, server)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitReadableCancelled(t *testing.T) {
	t.Parallel()
	ln, dial := listenLoopback(t)
	client := dial()
	defer client.Close()

	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer server.Close()

	err = nursery.Run(context.Background(), func(ctx context.Context) error {
		ctx, scope := nursery.FailAfter(ctx, 20*time.Millisecond, false)
		bodyErr := WaitReadable(ctx, server)
		return scope.Close(bodyErr)
	})
	if !errors.Is(err, nursery.ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestWaitReadableClosedResource(t *testing.T) {
	t.Parallel()
	ln, dial := listenLoopback(t)
	client := dial()
	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	_ = client

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = server.Close()
	}()

	err = nursery.Run(context.Background(), func(ctx context.Context) error {
		return WaitReadable(ctx, server)
	})
	if !errors.Is(err, nursery.ErrClosedResource) {
		t.Fatalf("expected ErrClosedResource, got %v", err)
	}
}
