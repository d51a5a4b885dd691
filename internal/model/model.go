// Package model assembles the encoder, decoder, and projection components of
// a model from a classified checkpoint.
package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/five82/marlin/internal/checkpoint"
	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/registry"
)

// Component parameter prefixes.
const (
	EncoderPrefix    = "encoder."
	DecoderPrefix    = "decoder."
	ProjectionPrefix = "enc_dec_proj."
)

// ProjectionWeight is the bias-free linear layer mapping encoder tokens to the
// decoder width, shaped [decoder_dim, encoder_dim].
const ProjectionWeight = ProjectionPrefix + "weight"

// Component is the weight subset of one sub-network.
type Component struct {
	Name    string
	Weights checkpoint.State
}

// Params returns the total number of scalar parameters.
func (c *Component) Params() int64 {
	if c == nil {
		return 0
	}
	var n int64
	for _, t := range c.Weights {
		n += t.NumElements()
	}
	return n
}

// Model is a constructed model. Decoder and Projection are nil for
// encoder-only (feature extractor) models.
type Model struct {
	Config     registry.Config
	Kind       checkpoint.Kind
	Encoder    *Component
	Decoder    *Component
	Projection *Component
}

// FeatureExtractor reports whether the model lacks a decoder.
func (m *Model) FeatureExtractor() bool {
	return m.Kind == checkpoint.EncoderOnly
}

// ClipFrames returns the number of frames per clip the encoder consumes.
func (m *Model) ClipFrames() int {
	return m.Config.NFrames
}

// Params returns the total parameter count across components.
func (m *Model) Params() int64 {
	return m.Encoder.Params() + m.Decoder.Params() + m.Projection.Params()
}

// Build splits a classified checkpoint into components. Loading is strict:
// every key must belong to a component the classification instantiates.
func Build(cfg registry.Config, loaded *checkpoint.Loaded) (*Model, error) {
	m := &Model{
		Config:  cfg,
		Kind:    loaded.Kind,
		Encoder: &Component{Name: "encoder", Weights: checkpoint.State{}},
	}
	if loaded.Kind == checkpoint.Full {
		m.Decoder = &Component{Name: "decoder", Weights: checkpoint.State{}}
		m.Projection = &Component{Name: "enc_dec_proj", Weights: checkpoint.State{}}
	}

	var unexpected []string
	for key, t := range loaded.State {
		var c *Component
		switch {
		case strings.HasPrefix(key, EncoderPrefix):
			c = m.Encoder
		case strings.HasPrefix(key, DecoderPrefix):
			c = m.Decoder
		case strings.HasPrefix(key, ProjectionPrefix):
			c = m.Projection
		}
		if c == nil {
			unexpected = append(unexpected, key)
			continue
		}
		c.Weights[key] = t
	}

	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, merrors.NewCheckpointError(
			fmt.Sprintf("unexpected keys in %s checkpoint: %s", loaded.Kind, strings.Join(unexpected, ", ")), nil)
	}
	if len(m.Encoder.Weights) == 0 {
		return nil, merrors.NewCheckpointError("checkpoint has no encoder weights", nil)
	}
	if m.Projection != nil {
		if err := checkProjection(cfg, m.Projection); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func checkProjection(cfg registry.Config, p *Component) error {
	w, ok := p.Weights[ProjectionWeight]
	if !ok {
		return merrors.NewCheckpointError(fmt.Sprintf("full checkpoint is missing %s", ProjectionWeight), nil)
	}
	want := []int64{int64(cfg.DecoderEmbedDim), int64(cfg.EncoderEmbedDim)}
	if len(w.Shape) != 2 || w.Shape[0] != want[0] || w.Shape[1] != want[1] {
		return merrors.NewCheckpointError(
			fmt.Sprintf("%s has shape %v, want %v for %s", ProjectionWeight, w.Shape, want, cfg.Name), nil)
	}
	return nil
}
