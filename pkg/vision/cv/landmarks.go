package cv

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/MrWong99/voxtrigger/pkg/vision"
)

// Compile-time assertion that LandmarkModel satisfies vision.HandDetector.
var _ vision.HandDetector = (*LandmarkModel)(nil)

const (
	defaultInputSize      = 224
	defaultMinConfidence  = 0.5
	defaultLandmarksLayer = "Identity"
	defaultPresenceLayer  = "Identity_1"
)

// LandmarkOption is a functional option for [NewLandmarkModel].
type LandmarkOption func(*LandmarkModel)

// WithInputSize sets the square input resolution expected by the network.
// Defaults to 224.
func WithInputSize(px int) LandmarkOption {
	return func(m *LandmarkModel) { m.inputSize = px }
}

// WithMinConfidence sets the hand-presence score below which a detection is
// discarded. Defaults to 0.5.
func WithMinConfidence(c float64) LandmarkOption {
	return func(m *LandmarkModel) { m.minConfidence = c }
}

// WithOutputLayers overrides the names of the landmark and presence output
// layers.
func WithOutputLayers(landmarks, presence string) LandmarkOption {
	return func(m *LandmarkModel) {
		m.landmarksLayer = landmarks
		m.presenceLayer = presence
	}
}

// WithAccelerator runs the network on CUDA, in half precision when fp16 is
// true.
func WithAccelerator(fp16 bool) LandmarkOption {
	return func(m *LandmarkModel) {
		m.cuda = true
		m.fp16 = fp16
	}
}

// LandmarkModel runs a single-hand landmark network (a MediaPipe hand
// landmark export in NCHW layout) through the OpenCV DNN module. It returns
// at most one hand per frame.
//
// LandmarkModel is not safe for concurrent use; the underlying Net holds
// per-inference state.
type LandmarkModel struct {
	net            gocv.Net
	inputSize      int
	minConfidence  float64
	landmarksLayer string
	presenceLayer  string
	cuda           bool
	fp16           bool
}

// NewLandmarkModel loads the network at modelPath (any format gocv.ReadNet
// accepts, typically .onnx).
func NewLandmarkModel(modelPath string, opts ...LandmarkOption) (*LandmarkModel, error) {
	if modelPath == "" {
		return nil, errors.New("cv: landmark model path must not be empty")
	}
	m := &LandmarkModel{
		inputSize:      defaultInputSize,
		minConfidence:  defaultMinConfidence,
		landmarksLayer: defaultLandmarksLayer,
		presenceLayer:  defaultPresenceLayer,
	}
	for _, o := range opts {
		o(m)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("cv: load landmark model %q", modelPath)
	}
	if m.cuda {
		target := gocv.NetTargetCUDA
		if m.fp16 {
			target = gocv.NetTargetCUDAFP16
		}
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
			_ = net.Close()
			return nil, fmt.Errorf("cv: select CUDA backend: %w", err)
		}
		if err := net.SetPreferableTarget(target); err != nil {
			_ = net.Close()
			return nil, fmt.Errorf("cv: select CUDA target: %w", err)
		}
	}
	m.net = net
	return m, nil
}

// Detect runs the network on frame. It returns nil when no hand is present.
func (m *LandmarkModel) Detect(frame vision.Frame) ([]vision.HandLandmarkSet, error) {
	img, ok := frame.Pixels.(*gocv.Mat)
	if !ok || img == nil || img.Empty() {
		return nil, errors.New("cv: frame does not carry an OpenCV image")
	}

	blob := gocv.BlobFromImage(*img, 1.0/255.0,
		image.Pt(m.inputSize, m.inputSize),
		gocv.NewScalar(0, 0, 0, 0),
		true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	outs := m.net.ForwardLayers([]string{m.landmarksLayer, m.presenceLayer})
	defer func() {
		for i := range outs {
			_ = outs[i].Close()
		}
	}()
	if len(outs) != 2 {
		return nil, fmt.Errorf("cv: expected 2 output layers, got %d", len(outs))
	}

	presence, err := outs[1].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("cv: read presence output: %w", err)
	}
	if len(presence) == 0 || float64(presence[0]) < m.minConfidence {
		return nil, nil
	}

	raw, err := outs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("cv: read landmark output: %w", err)
	}
	set, err := decodeLandmarks(raw, float64(m.inputSize))
	if err != nil {
		return nil, err
	}
	return []vision.HandLandmarkSet{set}, nil
}

// Close releases the network.
func (m *LandmarkModel) Close() error {
	return m.net.Close()
}

// decodeLandmarks turns a flat (x, y, z) * 21 vector in input-pixel units
// into a normalized landmark set.
func decodeLandmarks(raw []float32, size float64) (vision.HandLandmarkSet, error) {
	if len(raw) < vision.NumLandmarks*3 {
		return nil, fmt.Errorf("cv: landmark output has %d values, want %d", len(raw), vision.NumLandmarks*3)
	}
	set := make(vision.HandLandmarkSet, vision.NumLandmarks)
	for i := range vision.NumLandmarks {
		set[i] = vision.Landmark{
			X: float64(raw[i*3]) / size,
			Y: float64(raw[i*3+1]) / size,
			Z: float64(raw[i*3+2]) / size,
		}
	}
	return set, nil
}
