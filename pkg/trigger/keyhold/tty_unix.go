//go:build unix

package keyhold

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Compile-time assertion that TTY satisfies Terminal.
var _ Terminal = (*TTY)(nil)

// TTY is a [Terminal] over a file descriptor attached to a terminal,
// normally standard input.
type TTY struct {
	fd int
}

// NewTTY wraps f. Whether f really is a terminal is checked by MakeRaw.
func NewTTY(f *os.File) *TTY {
	return &TTY{fd: int(f.Fd())}
}

// MakeRaw implements Terminal.
func (t *TTY) MakeRaw() (func() error, error) {
	if !term.IsTerminal(t.fd) {
		return nil, fmt.Errorf("fd %d is not a terminal", t.fd)
	}
	prev, err := term.MakeRaw(t.fd)
	if err != nil {
		return nil, err
	}
	return func() error { return term.Restore(t.fd, prev) }, nil
}

// PollByte implements Terminal using poll(2) so the wait is bounded.
func (t *TTY) PollByte(timeout time.Duration) (byte, bool, error) {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}

	var buf [1]byte
	m, err := unix.Read(t.fd, buf[:])
	switch {
	case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("read: %w", err)
	case m == 0:
		return 0, false, io.EOF
	}
	return buf[0], true, nil
}
