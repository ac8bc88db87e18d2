// Package mock provides scripted implementations of the vision interfaces for
// tests that must not touch a camera or a native model.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/voxtrigger/pkg/vision"
)

// FrameSource yields frames with increasing sequence numbers starting at 1.
// Read calls listed in Errs (1-based call index) fail instead of producing a
// frame and do not consume a sequence number.
type FrameSource struct {
	Errs map[int]error

	mu       sync.Mutex
	reads    int
	seq      int64
	released int
	closed   bool
}

// Read returns the next scripted frame or error.
func (s *FrameSource) Read() (vision.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if err, ok := s.Errs[s.reads]; ok {
		return vision.Frame{}, err
	}
	s.seq++
	return vision.Frame{
		Seq:    s.seq,
		At:     time.Unix(0, 0).Add(time.Duration(s.seq) * time.Millisecond),
		Pixels: pixels{s},
	}, nil
}

// Close marks the source closed.
func (s *FrameSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Reads returns the number of Read calls.
func (s *FrameSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Produced returns how many frames were handed out.
func (s *FrameSource) Produced() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Released returns how many frames had their pixel buffer released.
func (s *FrameSource) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Closed reports whether Close was called.
func (s *FrameSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type pixels struct{ s *FrameSource }

func (p pixels) Close() error {
	p.s.mu.Lock()
	p.s.released++
	p.s.mu.Unlock()
	return nil
}

// HandDetector returns Hands[frame.Seq] when present and Default otherwise.
// Errs makes detection fail for specific frames.
type HandDetector struct {
	Hands   map[int64][]vision.HandLandmarkSet
	Default []vision.HandLandmarkSet
	Errs    map[int64]error

	mu    sync.Mutex
	calls []int64
}

// Detect implements vision.HandDetector.
func (d *HandDetector) Detect(f vision.Frame) ([]vision.HandLandmarkSet, error) {
	d.mu.Lock()
	d.calls = append(d.calls, f.Seq)
	d.mu.Unlock()
	if err, ok := d.Errs[f.Seq]; ok {
		return nil, err
	}
	if h, ok := d.Hands[f.Seq]; ok {
		return h, nil
	}
	return d.Default, nil
}

// Close is a no-op.
func (d *HandDetector) Close() error { return nil }

// Calls returns the sequence numbers of every frame passed to Detect.
func (d *HandDetector) Calls() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int64, len(d.calls))
	copy(out, d.calls)
	return out
}

var (
	_ vision.FrameSource  = (*FrameSource)(nil)
	_ vision.HandDetector = (*HandDetector)(nil)
)
