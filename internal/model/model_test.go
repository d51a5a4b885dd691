package model

import (
	"testing"

	"github.com/five82/marlin/internal/checkpoint"
	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/registry"
)

func smallConfig(t *testing.T) registry.Config {
	t.Helper()
	c, err := registry.New("").Resolve("marlin_vit_small_ytf")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func tensor(shape ...int64) checkpoint.Tensor {
	t := checkpoint.Tensor{Shape: shape}
	t.Data = make([]float32, t.NumElements())
	return t
}

func loaded(state checkpoint.State) *checkpoint.Loaded {
	return &checkpoint.Loaded{State: state, Kind: checkpoint.Classify(state)}
}

func TestBuildEncoderOnly(t *testing.T) {
	m, err := Build(smallConfig(t), loaded(checkpoint.State{
		"encoder.norm.weight": tensor(384),
		"encoder.norm.bias":   tensor(384),
	}))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !m.FeatureExtractor() {
		t.Error("FeatureExtractor() = false, want true")
	}
	if m.Decoder != nil || m.Projection != nil {
		t.Error("encoder-only model should not build decoder components")
	}
	if m.Params() != 768 {
		t.Errorf("Params() = %d, want 768", m.Params())
	}
	if m.ClipFrames() != 16 {
		t.Errorf("ClipFrames() = %d, want 16", m.ClipFrames())
	}
}

func TestBuildFull(t *testing.T) {
	m, err := Build(smallConfig(t), loaded(checkpoint.State{
		"encoder.norm.weight": tensor(384),
		"decoder.norm.weight": tensor(192),
		ProjectionWeight:      tensor(192, 384),
	}))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if m.FeatureExtractor() {
		t.Error("FeatureExtractor() = true, want false")
	}
	if len(m.Decoder.Weights) != 1 || len(m.Projection.Weights) != 1 {
		t.Errorf("decoder=%d projection=%d weights, want 1/1", len(m.Decoder.Weights), len(m.Projection.Weights))
	}
}

func TestBuildStrictErrors(t *testing.T) {
	tests := []struct {
		name  string
		state checkpoint.State
	}{
		{
			name: "projection in encoder-only checkpoint",
			state: checkpoint.State{
				"encoder.norm.weight": tensor(384),
				ProjectionWeight:      tensor(192, 384),
			},
		},
		{
			name: "unknown prefix",
			state: checkpoint.State{
				"encoder.norm.weight": tensor(384),
				"head.weight":         tensor(2),
			},
		},
		{
			name:  "no encoder weights",
			state: checkpoint.State{"decoder.norm.weight": tensor(192), ProjectionWeight: tensor(192, 384)},
		},
		{
			name: "missing projection",
			state: checkpoint.State{
				"encoder.norm.weight": tensor(384),
				"decoder.norm.weight": tensor(192),
			},
		},
		{
			name: "projection shape mismatch",
			state: checkpoint.State{
				"encoder.norm.weight": tensor(384),
				"decoder.norm.weight": tensor(192),
				ProjectionWeight:      tensor(384, 768),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(smallConfig(t), loaded(tt.state))
			if !merrors.IsKind(err, merrors.KindCheckpoint) {
				t.Errorf("Build() error = %v, want checkpoint error", err)
			}
		})
	}
}
