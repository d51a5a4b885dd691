package features

import (
	"context"
	"errors"
	"fmt"
	"iter"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/video"
)

// ErrNoFace is returned by a FaceCropper when a frame contains no face.
var ErrNoFace = errors.New("no face detected")

// Extractor maps one clip to feature rows. With keepSeq false it returns a
// single row mean pooled over tokens; otherwise one row per token.
type Extractor interface {
	Extract(ctx context.Context, clip video.Clip, keepSeq bool) (Batch, error)
}

// FaceCropper is an initialize-once face detection capability. Callers check
// Initialized and call Init themselves; the aggregator never initializes it.
type FaceCropper interface {
	// Initialized reports whether Init has completed.
	Initialized() bool
	// Init loads the detection bundle onto the given device.
	Init(bundlePath, device string) error
	// Crop returns the largest face resized to the model resolution, or ErrNoFace.
	Crop(frame video.Frame) (video.Frame, error)
	// Resize scales the whole frame to the model resolution.
	Resize(frame video.Frame) (video.Frame, error)
}

// FaceMiss selects what happens to a frame without a detected face.
type FaceMiss int

const (
	// FaceMissResize falls back to resizing the whole frame.
	FaceMissResize FaceMiss = iota
	// FaceMissFail aborts extraction.
	FaceMissFail
)

// ParseFaceMiss converts a policy name. The empty string means resize.
func ParseFaceMiss(s string) (FaceMiss, error) {
	switch s {
	case "", "resize":
		return FaceMissResize, nil
	case "fail":
		return FaceMissFail, nil
	default:
		return FaceMissResize, fmt.Errorf("unknown face miss policy '%s'", s)
	}
}

// Options controls aggregation.
type Options struct {
	// ImgSize is the square input resolution every frame must have.
	ImgSize int
	// KeepSeq keeps one row per encoder token instead of one per clip.
	KeepSeq   bool
	Reduction Reduction

	// Detector crops faces when non-nil. It must already be initialized.
	Detector FaceCropper
	FaceMiss FaceMiss

	// OnClip is called after each clip is extracted with its 0-based index
	// and the number of rows it contributed.
	OnClip func(index, rows int)
}

// Aggregate pulls clips one at a time, extracts their features, and returns
// the concatenated rows in clip order. A mean or max reduction collapses the
// rows across clips, per token when KeepSeq is set. Clip sequence
// errors are returned unchanged.
func Aggregate(ctx context.Context, clips iter.Seq2[video.Clip, error], ex Extractor, opts Options) (Batch, error) {
	if ex == nil {
		return nil, merrors.NewUsageError("no feature extractor configured")
	}
	if opts.Detector != nil && !opts.Detector.Initialized() {
		return nil, merrors.NewUsageError("face detector used before initialization")
	}

	var batch Batch
	index, rowsPerClip := 0, 0
	for c, err := range clips {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := ExtractClip(ctx, c, ex, opts)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", index, err)
		}
		if index == 0 {
			rowsPerClip = len(rows)
		} else if len(rows) != rowsPerClip && opts.Reduction != ReductionNone {
			return nil, fmt.Errorf("clip %d produced %d feature rows, earlier clips produced %d", index, len(rows), rowsPerClip)
		}
		batch = append(batch, rows...)
		if opts.OnClip != nil {
			opts.OnClip(index, len(rows))
		}
		index++
	}

	if len(batch) == 0 {
		return nil, merrors.NewUsageError("clip sequence produced no features")
	}
	return ReduceClips(batch, rowsPerClip, opts.Reduction)
}

// ExtractClip applies the optional face crop, checks the clip resolution, and
// runs the extractor on one clip.
func ExtractClip(ctx context.Context, c video.Clip, ex Extractor, opts Options) (Batch, error) {
	if opts.Detector != nil {
		cropped, err := CropClip(c, opts.Detector, opts.FaceMiss)
		if err != nil {
			return nil, err
		}
		c = cropped
	}
	if err := CheckResolution(c, opts.ImgSize); err != nil {
		return nil, err
	}
	return ex.Extract(ctx, c, opts.KeepSeq)
}

// CropClip crops the face out of every frame. Frames without a face are
// resized whole or rejected according to the miss policy.
func CropClip(c video.Clip, d FaceCropper, miss FaceMiss) (video.Clip, error) {
	out := make(video.Clip, len(c))
	for i, f := range c {
		cropped, err := d.Crop(f)
		switch {
		case err == nil:
			out[i] = cropped
		case errors.Is(err, ErrNoFace) && miss == FaceMissResize:
			resized, rerr := d.Resize(f)
			if rerr != nil {
				return nil, fmt.Errorf("frame %d: %w", i, rerr)
			}
			out[i] = resized
		default:
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return out, nil
}

// CheckResolution fails with a usage error when any frame is not
// size by size pixels.
func CheckResolution(c video.Clip, size int) error {
	for i, f := range c {
		if !f.SameSize(size, size) {
			return merrors.NewUsageError(fmt.Sprintf("frame %d is %dx%d, model input is %dx%d", i, f.Width, f.Height, size, size))
		}
	}
	return nil
}
