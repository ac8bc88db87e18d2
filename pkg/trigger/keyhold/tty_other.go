//go:build !unix

package keyhold

import (
	"errors"
	"os"
	"time"
)

var errUnsupported = errors.New("raw terminal input is only supported on unix systems")

// TTY is unavailable on this platform; MakeRaw always fails.
type TTY struct{}

// NewTTY returns a TTY whose MakeRaw reports the platform as unsupported.
func NewTTY(*os.File) *TTY { return &TTY{} }

// MakeRaw implements Terminal.
func (*TTY) MakeRaw() (func() error, error) { return nil, errUnsupported }

// PollByte implements Terminal.
func (*TTY) PollByte(time.Duration) (byte, bool, error) { return 0, false, errUnsupported }
