package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/five82/marlin/internal/features"
	"github.com/five82/marlin/internal/video"
)

// Reconstructor runs an exported encoder-decoder graph taking video
// [1,3,T,H,W] and mask [1,N] (nonzero marks a visible patch) and producing
// reconstruction [1,M,P] for the M masked patches.
type Reconstructor struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewReconstructor opens the full graph.
func NewReconstructor(opts Options) (*Reconstructor, error) {
	if err := acquireEnvironment(opts.Library); err != nil {
		return nil, err
	}
	session, err := newSession(opts, []string{InputVideo, InputMask}, []string{OutputReconstruction})
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	return &Reconstructor{session: session}, nil
}

// Reconstruct returns one row of pixel values per masked patch.
func (r *Reconstructor) Reconstruct(ctx context.Context, clip video.Clip, mask []bool) (features.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := clipTensor(clip)
	if err != nil {
		return nil, err
	}
	defer input.Destroy()

	visible := make([]int64, len(mask))
	for i, v := range mask {
		if v {
			visible[i] = 1
		}
	}
	maskTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(mask))), visible)
	if err != nil {
		return nil, fmt.Errorf("failed to create mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, fmt.Errorf("reconstructor is closed")
	}
	data, shape, err := run(r.session, []ort.Value{input, maskTensor})
	if err != nil {
		return nil, err
	}
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("reconstruction output shape %v, want [1 M P]", shape)
	}
	return features.FromTokens(data, int(shape[1]), int(shape[2]), true)
}

// Close destroys the session and releases the runtime.
func (r *Reconstructor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	err := r.session.Destroy()
	r.session = nil
	releaseEnvironment()
	return err
}
