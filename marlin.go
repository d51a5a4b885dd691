// Package marlin extracts clip-level features from videos with MARLIN
// masked autoencoder checkpoints.
//
// A video of any length is cut into fixed-length clips, each clip is passed
// to the encoder, and the per-clip features are returned as a batch or
// reduced to a single vector.
//
// Basic usage:
//
//	model, err := marlin.FromOnline(ctx, "marlin_vit_base_ytf", false,
//	    marlin.WithExtractor(encoder),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	feats, err := model.ExtractVideo(ctx, "video.mp4",
//	    marlin.WithReduction("mean"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("features: %d x %d\n", feats.Len(), feats.Dim())
package marlin

import (
	"context"
	"fmt"
	"io"
	"iter"
	"math/rand/v2"

	"github.com/five82/marlin/internal/cache"
	"github.com/five82/marlin/internal/checkpoint"
	"github.com/five82/marlin/internal/clip"
	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/features"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/model"
	"github.com/five82/marlin/internal/registry"
	"github.com/five82/marlin/internal/reporter"
	"github.com/five82/marlin/internal/video"
)

// Re-exported data types.
type (
	Frame  = video.Frame
	Clip   = video.Clip
	Source = video.Source
	Batch  = features.Batch

	// Extractor maps one clip to feature rows.
	Extractor = features.Extractor
	// FaceDetector is the initialize-once face cropping capability.
	FaceDetector = features.FaceCropper
	// Reporter receives progress events.
	Reporter = reporter.Reporter
)

// ErrNoFace is returned by face detectors when a frame has no face.
var ErrNoFace = features.ErrNoFace

// Reconstructor runs the encoder, projection, and decoder of a full model on
// one clip. Visible patches are marked true in mask.
type Reconstructor interface {
	Reconstruct(ctx context.Context, clip video.Clip, mask []bool) (features.Batch, error)
}

// Model is a constructed MARLIN model bound to its runtime collaborators.
type Model struct {
	arch     registry.Config
	net      *model.Model
	settings settings
}

// FromFile builds a model from a local checkpoint. The checkpoint's
// discriminator entries are removed and the presence of decoder weights
// decides whether the decoder is constructed.
func FromFile(modelName, path string, opts ...Option) (*Model, error) {
	s := newSettings(opts)
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	arch, err := registry.New(s.cfg.RegistryBaseURL).Resolve(modelName)
	if err != nil {
		return nil, err
	}

	loaded, err := checkpoint.Load(path)
	if err != nil {
		return nil, err
	}

	net, err := model.Build(arch, loaded)
	if err != nil {
		return nil, err
	}

	logging.Info("model constructed",
		"model", arch.Name,
		"checkpoint", path,
		"kind", net.Kind.String(),
		"params", net.Params(),
		"dropped", loaded.Dropped,
	)
	s.reporter.ModelLoaded(reporter.ModelSummary{
		Name:       arch.Name,
		Checkpoint: path,
		Kind:       net.Kind.String(),
		Params:     net.Params(),
		Dropped:    loaded.Dropped,
		Device:     s.cfg.Device,
	})

	return &Model{arch: arch, net: net, settings: s}, nil
}

// FromOnline downloads the encoder-only or full checkpoint of a registered
// model into the cache directory, unless already cached, and builds it.
func FromOnline(ctx context.Context, modelName string, full bool, opts ...Option) (*Model, error) {
	s := newSettings(opts)
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	arch, err := registry.New(s.cfg.RegistryBaseURL).Resolve(modelName)
	if err != nil {
		return nil, err
	}
	url, err := arch.URL(full)
	if err != nil {
		return nil, err
	}

	dir := cache.New(s.cfg.CacheDir)
	if err := dir.Ensure(); err != nil {
		return nil, err
	}
	path := dir.Path(arch.FileName(full))
	if err := s.downloader().Fetch(ctx, url, path); err != nil {
		return nil, err
	}

	return FromFile(modelName, path, opts...)
}

// CleanCache removes the cache directory and everything in it. Cleaning a
// missing cache does nothing. With verbose set a confirmation is printed
// once something was removed.
func CleanCache(verbose bool, opts ...Option) error {
	s := newSettings(opts)
	removed, err := cache.New(s.cfg.CacheDir).Clean()
	if err != nil {
		return err
	}
	if removed && verbose {
		fmt.Println(cache.CleanedMessage)
	}
	return nil
}

// Models returns the names of the registered model configurations.
func Models() []string {
	return registry.New("").Names()
}

// Name returns the registry name of the model.
func (m *Model) Name() string {
	return m.arch.Name
}

// FeatureExtractor reports whether the model was built without a decoder.
func (m *Model) FeatureExtractor() bool {
	return m.net.FeatureExtractor()
}

// ClipFrames returns the number of frames in one clip.
func (m *Model) ClipFrames() int {
	return m.net.ClipFrames()
}

// ImgSize returns the square input resolution of the encoder.
func (m *Model) ImgSize() int {
	return m.arch.ImgSize
}

// Params returns the number of loaded parameters.
func (m *Model) Params() int64 {
	return m.net.Params()
}

// Close releases the extractor and reconstructor runtimes. The face
// detector is process-wide and stays initialized.
func (m *Model) Close() error {
	var firstErr error
	for _, c := range []any{m.settings.extractor, m.settings.reconstructor} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Forward reconstructs the masked patches of one clip. It requires a full
// model; encoder-only models extract features through ExtractFeatures and
// ExtractVideo.
func (m *Model) Forward(ctx context.Context, c Clip, mask []bool) (Batch, error) {
	if m.net.FeatureExtractor() {
		return nil, merrors.NewUsageError("model is a feature extractor, use ExtractFeatures or ExtractVideo")
	}
	if mask == nil {
		return nil, merrors.NewUsageError("forward requires a patch mask")
	}
	if want := m.arch.Patches(); len(mask) != want {
		return nil, merrors.NewUsageError(fmt.Sprintf("mask has %d entries, model has %d patches", len(mask), want))
	}
	if err := m.checkClip(c); err != nil {
		return nil, err
	}
	if m.settings.reconstructor == nil {
		return nil, merrors.NewUsageError("no reconstruction runtime configured")
	}
	return m.settings.reconstructor.Reconstruct(ctx, c, mask)
}

// ExtractFeatures runs the encoder on one clip. With keepSeq the result has
// one row per token; otherwise a single row mean pooled over tokens.
func (m *Model) ExtractFeatures(ctx context.Context, c Clip, keepSeq bool) (Batch, error) {
	if m.settings.extractor == nil {
		return nil, merrors.NewUsageError("no feature extractor configured")
	}
	if err := m.checkClip(c); err != nil {
		return nil, err
	}
	return features.ExtractClip(ctx, c, m.settings.extractor, features.Options{
		ImgSize: m.arch.ImgSize,
		KeepSeq: keepSeq,
	})
}

func (m *Model) checkClip(c Clip) error {
	if len(c) != m.ClipFrames() {
		return merrors.NewUsageError(fmt.Sprintf("clip has %d frames, model takes %d", len(c), m.ClipFrames()))
	}
	return features.CheckResolution(c, m.arch.ImgSize)
}

// Clips returns the lazy clip sequence of a video as the model would see it.
// The decoder is released when iteration ends, including early breaks.
func (m *Model) Clips(ctx context.Context, path string, opts ...Option) iter.Seq2[Clip, error] {
	s := m.settings.with(opts)
	return func(yield func(Clip, error) bool) {
		if err := s.cfg.Validate(); err != nil {
			yield(nil, err)
			return
		}
		seg, err := clip.New(s.source, clip.Params{
			ClipLength: m.ClipFrames(),
			SampleRate: s.cfg.SampleRate,
			Stride:     s.cfg.Stride,
		})
		if err != nil {
			yield(nil, err)
			return
		}
		for c, err := range seg.Segment(ctx, path) {
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

// TubeMask returns a patch mask for Forward that hides the same spatial
// patches in every temporal slice. ratio is the hidden fraction; true marks
// a visible patch. Patches are ordered temporal slice first.
func (m *Model) TubeMask(ratio float64, seed uint64) []bool {
	side := m.arch.ImgSize / m.arch.PatchSize
	spatial := side * side
	slices := m.arch.NFrames / m.arch.TubeletSize

	ratio = min(max(ratio, 0), 1)
	visible := spatial - int(float64(spatial)*ratio+0.5)

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	keep := make([]bool, spatial)
	for _, i := range rng.Perm(spatial)[:visible] {
		keep[i] = true
	}

	mask := make([]bool, 0, spatial*slices)
	for range slices {
		mask = append(mask, keep...)
	}
	return mask
}
