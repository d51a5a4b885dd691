// Package registry holds the architecture configurations of published models
// and resolves their download locations.
package registry

import (
	"fmt"
	"sort"
	"strings"

	merrors "github.com/five82/marlin/internal/errors"
)

// Config describes a model architecture. Models with both URLs set are
// downloadable.
type Config struct {
	Name string

	ImgSize     int
	PatchSize   int
	NFrames     int
	TubeletSize int

	EncoderEmbedDim int
	EncoderDepth    int
	EncoderNumHeads int

	DecoderEmbedDim int
	DecoderDepth    int
	DecoderNumHeads int

	MLPRatio     float64
	QKVBias      bool
	QKScale      float64 // 0 means head_dim^-0.5
	DropRate     float64
	AttnDropRate float64
	NormLayer    string
	InitValues   float64

	EncoderURL string
	FullURL    string
}

// Downloadable reports whether both checkpoint URLs are known.
func (c Config) Downloadable() bool {
	return c.EncoderURL != "" && c.FullURL != ""
}

// URL returns the encoder-only or full checkpoint URL.
func (c Config) URL(full bool) (string, error) {
	if !c.Downloadable() {
		return "", merrors.NewNotDownloadableError(c.Name)
	}
	if full {
		return c.FullURL, nil
	}
	return c.EncoderURL, nil
}

// Patches returns the number of spatio-temporal patches in one clip.
func (c Config) Patches() int {
	side := c.ImgSize / c.PatchSize
	return side * side * (c.NFrames / c.TubeletSize)
}

// FileName returns the cache file name of the checkpoint.
func (c Config) FileName(full bool) string {
	return CheckpointFileName(c.Name, full)
}

// CheckpointFileName returns "<name>.<full|encoder>.safetensors".
func CheckpointFileName(name string, full bool) string {
	variant := "encoder"
	if full {
		variant = "full"
	}
	return fmt.Sprintf("%s.%s.safetensors", name, variant)
}

// Registry maps model names to configurations.
type Registry struct {
	configs map[string]Config
}

// New returns a registry preloaded with the published YouTube Faces models.
// Download URLs are rooted at baseURL.
func New(baseURL string) *Registry {
	r := &Registry{configs: make(map[string]Config)}
	for _, c := range youTubeFaces() {
		c.EncoderURL = joinURL(baseURL, c.FileName(false))
		c.FullURL = joinURL(baseURL, c.FileName(true))
		r.Register(c)
	}
	return r
}

// Register adds or replaces a configuration.
func (r *Registry) Register(c Config) {
	r.configs[c.Name] = c
}

// Resolve returns the configuration registered under name.
func (r *Registry) Resolve(name string) (Config, error) {
	c, ok := r.configs[name]
	if !ok {
		return Config{}, merrors.NewUnknownModelError(name)
	}
	return c, nil
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for n := range r.configs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func joinURL(base, file string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + file
}

func youTubeFaces() []Config {
	shared := Config{
		ImgSize:     224,
		PatchSize:   16,
		NFrames:     16,
		TubeletSize: 2,
		MLPRatio:    4.0,
		QKVBias:     true,
		NormLayer:   "LayerNorm",
	}

	small := shared
	small.Name = "marlin_vit_small_ytf"
	small.EncoderEmbedDim, small.EncoderDepth, small.EncoderNumHeads = 384, 12, 6
	small.DecoderEmbedDim, small.DecoderDepth, small.DecoderNumHeads = 192, 4, 3

	base := shared
	base.Name = "marlin_vit_base_ytf"
	base.EncoderEmbedDim, base.EncoderDepth, base.EncoderNumHeads = 768, 12, 12
	base.DecoderEmbedDim, base.DecoderDepth, base.DecoderNumHeads = 384, 4, 6

	large := shared
	large.Name = "marlin_vit_large_ytf"
	large.EncoderEmbedDim, large.EncoderDepth, large.EncoderNumHeads = 1024, 24, 16
	large.DecoderEmbedDim, large.DecoderDepth, large.DecoderNumHeads = 512, 4, 8

	return []Config{small, base, large}
}
