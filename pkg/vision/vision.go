// Package vision holds the camera-side data model used by the gesture
// trigger: frames and per-hand landmark sets. Concrete OpenCV-backed
// implementations live in the cv subpackage so that consumers of these types
// do not need cgo.
package vision

import (
	"io"
	"time"
)

// NumLandmarks is the number of points in a [HandLandmarkSet]. The indexes
// follow the MediaPipe hand topology:
//
//	0       wrist
//	1..4    thumb  (CMC, MCP, IP, tip)
//	5..8    index  (MCP, PIP, DIP, tip)
//	9..12   middle
//	13..16  ring
//	17..20  pinky
const NumLandmarks = 21

// Landmark indexes used by finger counting.
const (
	ThumbIP   = 3
	ThumbTip  = 4
	IndexTip  = 8
	MiddleTip = 12
	RingTip   = 16
	PinkyTip  = 20
)

// Landmark is one normalized point. X and Y are in [0, 1] relative to the
// frame, with Y increasing downwards. Z is relative depth and may be zero.
type Landmark struct {
	X, Y, Z float64
}

// HandLandmarkSet is the landmark output for one detected hand in one frame.
// A valid set has exactly [NumLandmarks] points.
type HandLandmarkSet []Landmark

// Frame is one camera sample. Pixels owns the native image buffer and must be
// released with Release once detection has run.
type Frame struct {
	Seq    int64
	At     time.Time
	Pixels io.Closer
}

// Release frees the pixel buffer. Safe on a zero Frame.
func (f Frame) Release() error {
	if f.Pixels == nil {
		return nil
	}
	return f.Pixels.Close()
}

// FrameSource yields camera frames. Read blocks until a frame is available
// or the read fails; failures are transient from the caller's point of view.
type FrameSource interface {
	Read() (Frame, error)
	Close() error
}

// HandDetector runs the external hand-landmark model on a frame and returns
// zero or more detected hands, most confident first.
type HandDetector interface {
	Detect(Frame) ([]HandLandmarkSet, error)
	Close() error
}
