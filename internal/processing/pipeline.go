// Package processing runs feature extraction for single videos and batches.
package processing

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/five82/marlin/internal/clip"
	"github.com/five82/marlin/internal/features"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/reporter"
)

// Pipeline extracts features from one video at a time. It is not safe for
// concurrent use: the segmenter's decoder and the extractor are driven
// strictly one clip after another.
type Pipeline struct {
	Segmenter *clip.Segmenter
	Extractor features.Extractor
	Options   features.Options
	Reporter  reporter.Reporter
}

// Extraction is the result of one video.
type Extraction struct {
	Path     string
	Plan     clip.Plan
	Features features.Batch
	Clips    int
	Duration time.Duration
}

func (p *Pipeline) reporter() reporter.Reporter {
	if p.Reporter == nil {
		return reporter.NullReporter{}
	}
	return p.Reporter
}

// ExtractVideo segments the video at path, extracts every clip, and returns
// the aggregated features.
func (p *Pipeline) ExtractVideo(ctx context.Context, path, outputPath string) (*Extraction, error) {
	rep := p.reporter()
	start := time.Now()

	plan, err := p.Segmenter.Plan(ctx, path)
	if err != nil {
		return nil, err
	}

	rep.Initialization(reporter.InitializationSummary{
		InputFile:     filepath.Base(path),
		OutputFile:    filepath.Base(outputPath),
		Resolution:    fmt.Sprintf("%dx%d", plan.Info.Width, plan.Info.Height),
		TotalFrames:   plan.Info.TotalFrames,
		Regime:        plan.Regime.String(),
		ExpectedClips: plan.ExpectedClips,
		CropFace:      p.Options.Detector != nil,
	})
	rep.ExtractionStarted(plan.ExpectedClips)

	clips := 0
	opts := p.Options
	userOnClip := opts.OnClip
	opts.OnClip = func(index, rows int) {
		clips = index + 1
		rep.ClipProgress(clipProgress(clips, plan.ExpectedClips, rows, time.Since(start)))
		if userOnClip != nil {
			userOnClip(index, rows)
		}
	}

	batch, err := features.Aggregate(ctx, p.Segmenter.Clips(ctx, plan), p.Extractor, opts)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	logging.Info("extracted video features",
		"path", path,
		"clips", clips,
		"rows", batch.Len(),
		"dim", batch.Dim(),
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return &Extraction{
		Path:     path,
		Plan:     plan,
		Features: batch,
		Clips:    clips,
		Duration: elapsed,
	}, nil
}

// clipProgress converts a clip count into a progress snapshot. The probed
// clip count can undershoot what the decoder delivers, so the total never
// drops below the current clip.
func clipProgress(current, expected, rows int, elapsed time.Duration) reporter.ClipProgress {
	total := max(expected, current)
	progress := reporter.ClipProgress{
		CurrentClip: current,
		TotalClips:  total,
		Rows:        rows,
	}
	if total > 0 {
		progress.Percent = float32(current) * 100 / float32(total)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		progress.ClipsPerSec = float32(float64(current) / secs)
		if progress.ClipsPerSec > 0 {
			remaining := float64(total-current) / float64(progress.ClipsPerSec)
			progress.ETA = time.Duration(remaining * float64(time.Second))
		}
	}
	return progress
}
