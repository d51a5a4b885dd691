// Package onnx runs exported encoder and reconstruction graphs through
// onnxruntime.
package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/util"
)

// Graph tensor names.
const (
	InputVideo           = "video"
	InputMask            = "mask"
	OutputFeatures       = "features"
	OutputReconstruction = "reconstruction"
)

// Options configures a session.
type Options struct {
	// Graph is the path of the .onnx file.
	Graph string
	// Library is the onnxruntime shared library; empty uses the platform default.
	Library string
	// Device is "cpu" or "cuda". CUDA falls back to CPU when unavailable.
	Device string
	// Threads bounds intra-op threads; 0 uses the physical core count.
	Threads int
}

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initializes the shared onnxruntime environment on first
// use. Every successful call must be paired with releaseEnvironment.
func acquireEnvironment(library string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		logging.Debug("onnxruntime initialized", "library", library)
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			logging.Warn("failed to destroy ONNX environment", "error", err)
		}
	}
}

// newSession opens a graph with the requested device and thread settings.
func newSession(opts Options, inputs, outputs []string) (*ort.DynamicAdvancedSession, error) {
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer so.Destroy()

	if err := so.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("failed to set graph optimization: %w", err)
	}

	if opts.Device == "cuda" {
		if err := appendCUDA(so); err != nil {
			logging.Warn("CUDA not available, using CPU", "error", err)
		} else {
			logging.Info("CUDA execution provider enabled", "graph", opts.Graph)
		}
	}

	threads := util.InferenceThreads(opts.Threads)
	if err := so.SetIntraOpNumThreads(threads); err != nil {
		logging.Warn("failed to set thread count", "threads", threads, "error", err)
	}

	session, err := ort.NewDynamicAdvancedSession(opts.Graph, inputs, outputs, so)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", opts.Graph, err)
	}
	return session, nil
}

func appendCUDA(so *ort.SessionOptions) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOpts.Destroy()

	if err := cudaOpts.Update(map[string]string{"device_id": "0"}); err != nil {
		return err
	}
	return so.AppendExecutionProviderCUDA(cudaOpts)
}

// run executes one inference and returns the float32 output when the graph
// produces one. The caller owns the returned data.
func run(session *ort.DynamicAdvancedSession, inputs []ort.Value) ([]float32, ort.Shape, error) {
	outputs := make([]ort.Value, 1)
	if err := session.Run(inputs, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("output tensor is not float32 type")
	}
	shape := append(ort.Shape(nil), t.GetShape()...)
	data := make([]float32, len(t.GetData()))
	copy(data, t.GetData())
	return data, shape, nil
}
