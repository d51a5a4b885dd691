package marlin

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/five82/marlin/internal/cache"
	"github.com/five82/marlin/internal/clip"
	"github.com/five82/marlin/internal/discovery"
	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/features"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/processing"
	"github.com/five82/marlin/internal/registry"
	"github.com/five82/marlin/internal/reporter"
	"github.com/five82/marlin/internal/store"
)

// FileResult is the outcome of one file in a batch.
type FileResult struct {
	Filename   string
	OutputPath string
	Clips      int
	Rows       int
	Dim        int
	Err        error
}

// BatchResult contains the results of a batch extraction.
type BatchResult struct {
	Results         []FileResult
	SuccessfulCount int
	TotalFiles      int
	SkippedCount    int
}

// ExtractVideo cuts the video into clips, extracts every clip, and returns
// the features in clip order, reduced when a reduction is configured. The
// options apply to this call only.
func (m *Model) ExtractVideo(ctx context.Context, path string, opts ...Option) (Batch, error) {
	s := m.settings.with(opts)
	p, err := m.pipeline(ctx, s)
	if err != nil {
		return nil, err
	}

	ex, err := p.ExtractVideo(ctx, path, "")
	if err != nil {
		return nil, err
	}

	s.reporter.ExtractionComplete(reporter.ExtractionOutcome{
		InputFile: filepath.Base(path),
		Clips:     ex.Clips,
		Rows:      ex.Features.Len(),
		Dim:       ex.Features.Dim(),
		Reduction: p.Options.Reduction.String(),
		KeepSeq:   p.Options.KeepSeq,
		TotalTime: ex.Duration,
	})
	return ex.Features, nil
}

// ExtractFiles extracts each file into "<outputDir>/<stem>.features.safetensors".
// Files that fail are recorded in the result and the batch continues.
func (m *Model) ExtractFiles(ctx context.Context, files []string, outputDir string, opts ...Option) (*BatchResult, error) {
	s := m.settings.with(opts)
	p, err := m.pipeline(ctx, s)
	if err != nil {
		return nil, err
	}

	batchOpts := processing.BatchOptions{
		OutputDir: outputDir,
		Overwrite: s.overwrite,
		Model:     m.arch.Name,
		RunID:     s.runID,
	}
	if batchOpts.RunID == "" {
		batchOpts.RunID = uuid.NewString()
	}
	if s.databasePath != "" {
		db, err := store.New(s.databasePath)
		if err != nil {
			return nil, merrors.NewIOError("failed to open feature database", err)
		}
		defer func() { _ = db.Close() }()
		batchOpts.Store = db
	}

	results, err := processing.ProcessVideos(ctx, p, files, batchOpts)
	batch := &BatchResult{TotalFiles: len(files)}
	for _, r := range results {
		batch.Results = append(batch.Results, FileResult{
			Filename:   r.Filename,
			OutputPath: r.OutputPath,
			Clips:      r.Clips,
			Rows:       r.Rows,
			Dim:        r.Dim,
			Err:        r.Err,
		})
		if r.Err == nil {
			batch.SuccessfulCount++
		}
	}
	batch.SkippedCount = len(files) - len(results)
	return batch, err
}

// ExtractDirectory extracts every video file found in dir.
func (m *Model) ExtractDirectory(ctx context.Context, dir, outputDir string, opts ...Option) (*BatchResult, error) {
	s := m.settings.with(opts)
	found, err := discovery.Find(dir, s.recursive)
	if err != nil {
		return nil, err
	}
	return m.ExtractFiles(ctx, found.Files, outputDir, opts...)
}

// FindVideos finds video files directly inside a directory.
func FindVideos(dir string) ([]string, error) {
	return discovery.FindVideoFiles(dir)
}

func (m *Model) pipeline(ctx context.Context, s settings) (*processing.Pipeline, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	reduction, err := features.ParseReduction(s.cfg.Reduction)
	if err != nil {
		return nil, err
	}
	miss, err := features.ParseFaceMiss(s.cfg.FaceMissPolicy)
	if err != nil {
		return nil, err
	}

	seg, err := clip.New(s.source, clip.Params{
		ClipLength: m.ClipFrames(),
		SampleRate: s.cfg.SampleRate,
		Stride:     s.cfg.Stride,
	})
	if err != nil {
		return nil, err
	}

	opts := features.Options{
		ImgSize:   m.arch.ImgSize,
		KeepSeq:   s.cfg.KeepSeq,
		Reduction: reduction,
		FaceMiss:  miss,
	}
	if s.cfg.CropFace {
		if err := ensureDetector(ctx, s); err != nil {
			return nil, err
		}
		opts.Detector = s.detector
	}

	return &processing.Pipeline{
		Segmenter: seg,
		Extractor: s.extractor,
		Options:   opts,
		Reporter:  s.reporter,
	}, nil
}

// ensureDetector initializes the face detector on first use, installing its
// bundle into the cache directory. An initialized detector is left alone.
func ensureDetector(ctx context.Context, s settings) error {
	if s.detector == nil {
		return merrors.NewUsageError("face cropping requested but no face detector configured")
	}
	if s.detector.Initialized() {
		return nil
	}

	dir := cache.New(s.cfg.CacheDir)
	if err := dir.Ensure(); err != nil {
		return err
	}
	bundle, err := s.downloader().FetchBundle(ctx, dir.FaceBundlePath(), registry.FaceBundle())
	if err != nil {
		return err
	}

	device := s.cfg.GetDetectorDevice()
	logging.Info("initializing face detector", "bundle", bundle, "device", device)
	return s.detector.Init(bundle, device)
}
