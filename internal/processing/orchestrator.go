package processing

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/features"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/reporter"
	"github.com/five82/marlin/internal/store"
	"github.com/five82/marlin/internal/util"
)

// BatchOptions controls where batch results go.
type BatchOptions struct {
	OutputDir string
	// Overwrite re-extracts videos whose feature file already exists.
	Overwrite bool
	// Store additionally receives every batch when non-nil.
	Store *store.DB
	Model string
	RunID string
}

// Result contains the result of a single file.
type Result struct {
	Filename   string
	OutputPath string
	Clips      int
	Rows       int
	Dim        int
	Duration   time.Duration
	Err        error
}

// ProcessVideos extracts features for a list of video files. Per-file
// failures are reported and recorded in the results; cancellation stops the
// batch and is returned.
func ProcessVideos(ctx context.Context, p *Pipeline, files []string, opts BatchOptions) ([]Result, error) {
	rep := p.reporter()

	if err := util.EnsureDirectory(opts.OutputDir); err != nil {
		return nil, merrors.NewIOError(fmt.Sprintf("failed to create output directory %s", opts.OutputDir), err)
	}

	if len(files) > 1 {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = filepath.Base(f)
		}
		rep.BatchStarted(reporter.BatchStartInfo{
			TotalFiles: len(files),
			FileList:   names,
			OutputDir:  opts.OutputDir,
		})
	}

	var results []Result
	for i, inputPath := range files {
		if err := ctx.Err(); err != nil {
			rep.Warning(fmt.Sprintf("Extraction cancelled: %v", err))
			return results, merrors.NewCancelledError()
		}

		if len(files) > 1 {
			rep.FileProgress(reporter.FileProgressContext{
				CurrentFile: i + 1,
				TotalFiles:  len(files),
			})
		}

		name := filepath.Base(inputPath)
		outputPath := util.FeatureOutputPath(inputPath, opts.OutputDir)
		if !opts.Overwrite && util.FileExists(outputPath) {
			rep.Warning(fmt.Sprintf("Feature file already exists: %s. Skipping.", outputPath))
			continue
		}

		result, err := processOne(ctx, p, inputPath, outputPath, opts)
		if err != nil {
			if merrors.IsCancelled(err) || ctx.Err() != nil {
				return results, merrors.NewCancelledError()
			}
			logging.Error("feature extraction failed", "path", inputPath, "error", err)
			rep.Error(reporter.ReporterError{
				Title:      "Extraction Error",
				Message:    fmt.Sprintf("Could not extract features from %s: %v", name, err),
				Context:    fmt.Sprintf("File: %s", inputPath),
				Suggestion: suggestion(err),
			})
			results = append(results, Result{Filename: name, Err: err})
			continue
		}
		results = append(results, result)
	}

	summarize(rep, results, len(files))
	return results, nil
}

// rowsPerClip is the token count of unreduced per-token batches, 1 otherwise.
func rowsPerClip(ex *Extraction, opts features.Options) int {
	if !opts.KeepSeq || opts.Reduction != features.ReductionNone || ex.Clips == 0 {
		return 1
	}
	return ex.Features.Len() / ex.Clips
}

func processOne(ctx context.Context, p *Pipeline, inputPath, outputPath string, opts BatchOptions) (Result, error) {
	ex, err := p.ExtractVideo(ctx, inputPath, outputPath)
	if err != nil {
		return Result{}, err
	}

	if err := WriteFeatures(outputPath, ex.Features, rowsPerClip(ex, p.Options)); err != nil {
		return Result{}, err
	}

	if opts.Store != nil {
		rec := store.Record{
			Key: store.Key{
				VideoPath: inputPath,
				Model:     opts.Model,
				Reduction: p.Options.Reduction.String(),
				KeepSeq:   p.Options.KeepSeq,
			},
			RunID: opts.RunID,
			Batch: ex.Features,
		}
		if err := opts.Store.Save(ctx, rec); err != nil {
			return Result{}, err
		}
	}

	p.reporter().ExtractionComplete(reporter.ExtractionOutcome{
		InputFile:  filepath.Base(inputPath),
		OutputFile: outputPath,
		Clips:      ex.Clips,
		Rows:       ex.Features.Len(),
		Dim:        ex.Features.Dim(),
		Reduction:  p.Options.Reduction.String(),
		KeepSeq:    p.Options.KeepSeq,
		TotalTime:  ex.Duration,
	})

	return Result{
		Filename:   filepath.Base(inputPath),
		OutputPath: outputPath,
		Clips:      ex.Clips,
		Rows:       ex.Features.Len(),
		Dim:        ex.Features.Dim(),
		Duration:   ex.Duration,
	}, nil
}

func summarize(rep reporter.Reporter, results []Result, totalFiles int) {
	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}

	switch {
	case succeeded == 0:
		rep.Warning("No files were successfully processed")
	case totalFiles == 1:
		rep.OperationComplete(fmt.Sprintf("Successfully extracted %s", results[0].Filename))
	default:
		summary := reporter.BatchSummary{
			SuccessfulCount: succeeded,
			TotalFiles:      totalFiles,
		}
		for _, r := range results {
			summary.TotalClips += r.Clips
			summary.TotalDuration += r.Duration
			fr := reporter.FileResult{Filename: r.Filename, Rows: r.Rows, Dim: r.Dim}
			if r.Err != nil {
				fr.Err = r.Err.Error()
			}
			summary.FileResults = append(summary.FileResults, fr)
		}
		rep.BatchComplete(summary)
	}
}

func suggestion(err error) string {
	switch {
	case merrors.IsKind(err, merrors.KindProbe):
		return "Check that the file is a valid video and ffprobe is installed"
	case merrors.IsKind(err, merrors.KindDecode):
		return "Check that the file decodes with ffmpeg"
	case merrors.IsKind(err, merrors.KindEmptyVideo):
		return "The video has no decodable frames"
	case merrors.IsUsage(err):
		return "Check the model input resolution and face cropping options"
	default:
		return ""
	}
}
