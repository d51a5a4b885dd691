package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/five82/marlin/internal/features"
	"github.com/five82/marlin/internal/video"
)

// Encoder extracts clip features with an exported encoder graph taking
// video [1,3,T,H,W] and producing features [1,N,D].
type Encoder struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewEncoder opens the encoder graph.
func NewEncoder(opts Options) (*Encoder, error) {
	if err := acquireEnvironment(opts.Library); err != nil {
		return nil, err
	}
	session, err := newSession(opts, []string{InputVideo}, []string{OutputFeatures})
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	return &Encoder{session: session}, nil
}

// Extract satisfies features.Extractor.
func (e *Encoder) Extract(ctx context.Context, clip video.Clip, keepSeq bool) (features.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := clipTensor(clip)
	if err != nil {
		return nil, err
	}
	defer input.Destroy()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("encoder is closed")
	}
	data, shape, err := run(e.session, []ort.Value{input})
	if err != nil {
		return nil, err
	}
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("encoder output shape %v, want [1 N D]", shape)
	}
	return features.FromTokens(data, int(shape[1]), int(shape[2]), keepSeq)
}

// Close destroys the session and releases the runtime.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	releaseEnvironment()
	return err
}

func clipTensor(clip video.Clip) (*ort.Tensor[float32], error) {
	data, shape, err := clip.Tensor()
	if err != nil {
		return nil, err
	}
	t, err := ort.NewTensor(ort.NewShape(1, shape[0], shape[1], shape[2], shape[3]), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	return t, nil
}
