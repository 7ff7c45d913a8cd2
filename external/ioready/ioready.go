// Package ioready lets a nursery task wait for a net.Conn to become
// readable or writable without consuming bytes and without blocking the
// checkpoint loop. Go's runtime netpoller already multiplexes socket
// readiness the way an event loop's add_reader does, so the adapter rides
// syscall.RawConn instead of reimplementing a reactor.
package ioready

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rivergrove/nursery/nursery"
)

type syscallConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// WaitReadable blocks until conn has data available to read, ctx is
// cancelled, or conn is closed concurrently by another task.
func WaitReadable(ctx context.Context, conn net.Conn) error {
	return wait(ctx, conn, unix.POLLIN)
}

// WaitWritable blocks until conn is ready to accept a write.
func WaitWritable(ctx context.Context, conn net.Conn) error {
	return wait(ctx, conn, unix.POLLOUT)
}

func wait(ctx context.Context, conn net.Conn, events int16) error {
	if err := nursery.Checkpoint(ctx); err != nil {
		return err
	}
	sc, ok := conn.(syscallConn)
	if !ok {
		return errors.New("ioready: connection does not support raw fd access")
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return classifyClose(err)
	}

	// ready probes the fd with a zero-timeout poll. The raw Read/Write
	// callback contract runs it before parking: returning false hands the
	// goroutine to the netpoller until the next readiness transition,
	// returning true reports the fd as ready right now. Error and hang-up
	// conditions count as ready so the caller's next I/O observes them.
	ready := func(fd uintptr) bool {
		pfd := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, perr := unix.Poll(pfd, 0)
		if perr != nil {
			return true
		}
		return n > 0
	}

	done := make(chan error, 1)
	go func() {
		if events == unix.POLLIN {
			done <- rc.Read(ready)
		} else {
			done <- rc.Write(ready)
		}
	}()

	select {
	case err := <-done:
		return classifyClose(err)
	case <-ctx.Done():
		// Arm an immediate deadline to force the parked poll to return; the
		// netpoller wakes it with a timeout error we discard. The deadline
		// is cleared afterwards so the connection stays usable.
		_ = conn.SetDeadline(time.Now())
		<-done
		_ = conn.SetDeadline(time.Time{})
		return nursery.ErrCancelled
	}
}

func classifyClose(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nursery.ErrClosedResource
	}
	return err
}
