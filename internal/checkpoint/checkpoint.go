// Package checkpoint reads persisted model weights and classifies them as
// encoder-only or full encoder+decoder checkpoints.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	merrors "github.com/five82/marlin/internal/errors"
)

// Reserved key prefixes.
const (
	DiscriminatorPrefix = "discriminator"
	DecoderPrefix       = "decoder."
)

// File extensions of the supported container formats.
const (
	ExtSafetensors = ".safetensors"
	ExtCheckpoint  = ".ckpt"
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NumElements returns the product of the shape.
func (t Tensor) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// State maps parameter names to weights.
type State map[string]Tensor

// Keys returns the parameter names in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Container is one of the supported on-disk layouts: *PlainState or
// *NestedCheckpoint.
type Container interface {
	// Weights returns the parameter mapping held by the container.
	Weights() State
	container()
}

// PlainState is a bare parameter mapping.
type PlainState struct {
	State State
}

// Weights returns the mapping.
func (p *PlainState) Weights() State { return p.State }
func (*PlainState) container()       {}

// NestedCheckpoint is a trainer checkpoint whose parameter mapping is one
// field among several. Only StateDict is used for inference.
type NestedCheckpoint struct {
	Epoch           int
	GlobalStep      int64
	HyperParameters map[string]string
	StateDict       State
}

// Weights returns the nested state dict.
func (n *NestedCheckpoint) Weights() State { return n.StateDict }
func (*NestedCheckpoint) container()       {}

// Kind is the classification of a filtered checkpoint.
type Kind int

const (
	// EncoderOnly checkpoints carry no decoder weights.
	EncoderOnly Kind = iota
	// Full checkpoints carry encoder and decoder weights.
	Full
)

// String returns the kind name.
func (k Kind) String() string {
	if k == Full {
		return "full"
	}
	return "encoder-only"
}

// Loaded is a filtered, classified checkpoint ready for model construction.
type Loaded struct {
	Path    string
	State   State
	Kind    Kind
	Dropped int // discriminator entries removed
}

// Read opens path and decodes it according to its extension.
func Read(path string) (Container, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtSafetensors && ext != ExtCheckpoint {
		name := strings.TrimPrefix(ext, ".")
		if name == "" {
			name = filepath.Base(path)
		}
		return nil, merrors.NewUnsupportedFormatError(name)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, merrors.NewIOError(fmt.Sprintf("failed to open checkpoint %s", path), err)
	}
	defer func() { _ = f.Close() }()

	switch ext {
	case ExtSafetensors:
		state, err := ReadSafetensors(f)
		if err != nil {
			return nil, err
		}
		return &PlainState{State: state}, nil
	default:
		return ReadNested(f)
	}
}

// Load reads a checkpoint, removes discriminator entries, and classifies it.
func Load(path string) (*Loaded, error) {
	c, err := Read(path)
	if err != nil {
		return nil, err
	}
	state, dropped := FilterDiscriminator(c.Weights())
	if len(state) == 0 {
		return nil, merrors.NewCheckpointError(fmt.Sprintf("checkpoint %s holds no model weights", path), nil)
	}
	return &Loaded{
		Path:    path,
		State:   state,
		Kind:    Classify(state),
		Dropped: dropped,
	}, nil
}

// FilterDiscriminator returns a copy of s without discriminator entries and
// the number of entries removed.
func FilterDiscriminator(s State) (State, int) {
	out := make(State, len(s))
	dropped := 0
	for k, v := range s {
		if strings.HasPrefix(k, DiscriminatorPrefix) {
			dropped++
			continue
		}
		out[k] = v
	}
	return out, dropped
}

// Classify reports Full when any key has the decoder prefix.
func Classify(s State) Kind {
	for k := range s {
		if strings.HasPrefix(k, DecoderPrefix) {
			return Full
		}
	}
	return EncoderOnly
}
