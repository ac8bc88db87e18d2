// Package cv implements the vision collaborators on top of OpenCV (gocv):
// a [Camera] frame source and a DNN-backed [LandmarkModel] hand detector.
//
// Building this package requires OpenCV 4 headers and libraries (see the
// gocv installation notes).
package cv

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/MrWong99/voxtrigger/pkg/vision"
)

// Compile-time assertion that Camera satisfies vision.FrameSource.
var _ vision.FrameSource = (*Camera)(nil)

// errEmptyFrame is returned by Camera.Read when the device delivered nothing.
var errEmptyFrame = errors.New("cv: camera returned an empty frame")

// Camera reads frames from a local capture device.
type Camera struct {
	vc  *gocv.VideoCapture
	seq atomic.Int64
}

// OpenCamera opens the capture device with the given index (0 is the default
// camera). The caller must Close the camera.
func OpenCamera(device int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("cv: open camera %d: %w", device, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("cv: camera %d did not open", device)
	}
	return &Camera{vc: vc}, nil
}

// Read grabs the next frame. The returned frame owns a native Mat that must
// be released by the caller.
func (c *Camera) Read() (vision.Frame, error) {
	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok || mat.Empty() {
		_ = mat.Close()
		return vision.Frame{}, errEmptyFrame
	}
	return vision.Frame{
		Seq:    c.seq.Add(1),
		At:     time.Now(),
		Pixels: &mat,
	}, nil
}

// Close releases the capture device.
func (c *Camera) Close() error {
	return c.vc.Close()
}
