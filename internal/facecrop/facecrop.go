// Package facecrop detects and crops faces with the OpenCV res10 SSD face
// detector. The detector is a process-wide capability initialized once.
package facecrop

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/features"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/registry"
	"github.com/five82/marlin/internal/video"
)

const (
	// DetectionThreshold is the minimum confidence for a face.
	DetectionThreshold = 0.5
	// DefaultSize is the square output resolution of crops and resizes.
	DefaultSize = 224

	inputSize = 300
)

// detectorMean is the per-channel BGR mean the res10 model was trained with.
var detectorMean = gocv.NewScalar(104, 177, 123, 0)

// Detector crops faces from frames. It satisfies features.FaceCropper.
type Detector struct {
	mu     sync.Mutex
	net    gocv.Net
	ready  bool
	size   int
	device string
}

var (
	shared     *Detector
	sharedOnce sync.Once
)

// Shared returns the process-wide detector.
func Shared() *Detector {
	sharedOnce.Do(func() {
		shared = New(DefaultSize)
	})
	return shared
}

// New creates an uninitialized detector producing size x size frames.
func New(size int) *Detector {
	return &Detector{size: size}
}

// Initialized reports whether Init has completed.
func (d *Detector) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Init loads the detection network from bundlePath onto device. Repeated
// calls after a successful Init are no-ops.
func (d *Detector) Init(bundlePath, device string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return nil
	}

	modelPath := filepath.Join(bundlePath, registry.FaceModelFile)
	configPath := filepath.Join(bundlePath, registry.FaceConfigFile)
	for _, p := range []string{modelPath, configPath} {
		if _, err := os.Stat(p); err != nil {
			return merrors.NewIOError(fmt.Sprintf("face detector file not found: %s", p), err)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load face detection network from %s", bundlePath)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if device == "cuda" {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	errBackend := net.SetPreferableBackend(backend)
	errTarget := net.SetPreferableTarget(target)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set face detector backend for device %s", device)
	}

	d.net = net
	d.device = device
	d.ready = true
	logging.Info("face detector initialized", "bundle", bundlePath, "device", device)
	return nil
}

// Close releases the network. The detector must be re-initialized before use.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil
	}
	d.ready = false
	return d.net.Close()
}

// Detect returns every face candidate the network reports for the frame.
func (d *Detector) Detect(frame video.Frame) ([]features.Detection, error) {
	bgr, err := toBGR(frame)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil, merrors.NewUsageError("face detector used before initialization")
	}
	return d.detect(bgr), nil
}

func (d *Detector) detect(bgr gocv.Mat) []features.Detection {
	blob := gocv.BlobFromImage(bgr, 1.0, image.Pt(inputSize, inputSize), detectorMean, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	dets := make([]features.Detection, 0, rows.Rows())
	for i := 0; i < rows.Rows(); i++ {
		dets = append(dets, features.Detection{
			Confidence: rows.GetFloatAt(i, 2),
			X0:         rows.GetFloatAt(i, 3),
			Y0:         rows.GetFloatAt(i, 4),
			X1:         rows.GetFloatAt(i, 5),
			Y1:         rows.GetFloatAt(i, 6),
		})
	}
	return dets
}

// Crop returns the most confident face resized to the output resolution, or
// features.ErrNoFace.
func (d *Detector) Crop(frame video.Frame) (video.Frame, error) {
	dets, err := d.Detect(frame)
	if err != nil {
		return video.Frame{}, err
	}
	best, ok := features.BestDetection(dets, DetectionThreshold)
	if !ok {
		return video.Frame{}, features.ErrNoFace
	}
	rect := features.FaceRect(best, frame.Width, frame.Height)
	if rect.Empty() {
		return video.Frame{}, features.ErrNoFace
	}

	src, err := toRGB(frame)
	if err != nil {
		return video.Frame{}, err
	}
	defer src.Close()

	face := src.Region(rect)
	defer face.Close()
	return d.resize(face)
}

// Resize scales the whole frame to the output resolution.
func (d *Detector) Resize(frame video.Frame) (video.Frame, error) {
	src, err := toRGB(frame)
	if err != nil {
		return video.Frame{}, err
	}
	defer src.Close()
	return d.resize(src)
}

func (d *Detector) resize(src gocv.Mat) (video.Frame, error) {
	dst := gocv.NewMat()
	defer dst.Close()
	if err := gocv.Resize(src, &dst, image.Pt(d.size, d.size), 0, 0, gocv.InterpolationLinear); err != nil {
		return video.Frame{}, fmt.Errorf("failed to resize frame: %w", err)
	}
	return video.FrameFromRGB24(dst.Cols(), dst.Rows(), dst.ToBytes())
}

func toRGB(frame video.Frame) (gocv.Mat, error) {
	m, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.RGB24())
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to wrap frame: %w", err)
	}
	return m, nil
}

func toBGR(frame video.Frame) (gocv.Mat, error) {
	rgb, err := toRGB(frame)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	if err := gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR); err != nil {
		bgr.Close()
		return gocv.Mat{}, fmt.Errorf("failed to convert frame to BGR: %w", err)
	}
	return bgr, nil
}
