package features

import (
	"context"
	"errors"
	"iter"
	"testing"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/video"
)

func TestParseReduction(t *testing.T) {
	tests := []struct {
		in      string
		want    Reduction
		wantErr bool
	}{
		{"", ReductionNone, false},
		{"none", ReductionNone, false},
		{"mean", ReductionMean, false},
		{"MAX", ReductionMax, false},
		{"median", ReductionNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReduction(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseReduction(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseReduction(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func equalRow(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if d := a[i] - b[i]; d > 1e-6 || d < -1e-6 {
			return false
		}
	}
	return true
}

func TestMeanOfIdenticalRows(t *testing.T) {
	row := []float32{0.25, -1, 3}
	b := Batch{row, row, row, row}
	got, err := Mean(b)
	if err != nil {
		t.Fatalf("Mean() error = %v", err)
	}
	if !equalRow(got, row) {
		t.Errorf("Mean() = %v, want %v", got, row)
	}
}

func TestMaxOfDominatingRow(t *testing.T) {
	dominant := []float32{5, 5, 5}
	b := Batch{{1, 2, 3}, dominant, {4, -1, 0}}
	got, err := Max(b)
	if err != nil {
		t.Fatalf("Max() error = %v", err)
	}
	if !equalRow(got, dominant) {
		t.Errorf("Max() = %v, want %v", got, dominant)
	}
}

func TestReduce(t *testing.T) {
	b := Batch{{0, 2}, {2, 0}}

	none, err := Reduce(b, ReductionNone)
	if err != nil || none.Len() != 2 {
		t.Fatalf("Reduce(none) = %v, %v; want the full batch", none, err)
	}

	mean, err := Reduce(b, ReductionMean)
	if err != nil {
		t.Fatalf("Reduce(mean) error = %v", err)
	}
	if mean.Len() != 1 || !equalRow(mean[0], []float32{1, 1}) {
		t.Errorf("Reduce(mean) = %v, want [[1 1]]", mean)
	}

	maxed, err := Reduce(b, ReductionMax)
	if err != nil {
		t.Fatalf("Reduce(max) error = %v", err)
	}
	if maxed.Len() != 1 || !equalRow(maxed[0], []float32{2, 2}) {
		t.Errorf("Reduce(max) = %v, want [[2 2]]", maxed)
	}
}

func TestReduceClipsPerToken(t *testing.T) {
	// Two clips of two token rows each.
	b := Batch{{1, 0}, {10, 0}, {3, 0}, {30, 0}}
	got, err := ReduceClips(b, 2, ReductionMean)
	if err != nil {
		t.Fatalf("ReduceClips() error = %v", err)
	}
	if got.Len() != 2 || !equalRow(got[0], []float32{2, 0}) || !equalRow(got[1], []float32{20, 0}) {
		t.Errorf("ReduceClips(mean) = %v, want [[2 0] [20 0]]", got)
	}

	if _, err := ReduceClips(b, 3, ReductionMax); err == nil {
		t.Error("ReduceClips() expected error when rows do not split into clips")
	}
}

func TestReduceRejectsBadBatches(t *testing.T) {
	if _, err := Reduce(nil, ReductionMean); err == nil {
		t.Error("Reduce(empty, mean) expected error")
	}
	if _, err := Reduce(Batch{{1, 2}, {1}}, ReductionMax); err == nil {
		t.Error("Reduce(ragged, max) expected error")
	}
}

// fakeExtractor returns one row per clip holding its call index, or one row
// per frame when keepSeq is set.
type fakeExtractor struct {
	calls int
}

func (e *fakeExtractor) Extract(ctx context.Context, c video.Clip, keepSeq bool) (Batch, error) {
	e.calls++
	if !keepSeq {
		return Batch{{float32(e.calls), 0}}, nil
	}
	b := make(Batch, len(c))
	for i := range c {
		b[i] = []float32{float32(e.calls), float32(i)}
	}
	return b, nil
}

func clipsOf(n, size, length int) iter.Seq2[video.Clip, error] {
	return func(yield func(video.Clip, error) bool) {
		for range n {
			c := make(video.Clip, length)
			for i := range c {
				c[i] = video.NewFrame(size, size)
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestAggregateConcatenatesInOrder(t *testing.T) {
	ex := &fakeExtractor{}
	var seen []int
	opts := Options{
		ImgSize: 4,
		OnClip:  func(index, rows int) { seen = append(seen, index) },
	}

	b, err := Aggregate(context.Background(), clipsOf(3, 4, 2), ex, opts)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("batch rows = %d, want 3", b.Len())
	}
	for i, row := range b {
		if row[0] != float32(i+1) {
			t.Errorf("row %d came from call %v, want %d", i, row[0], i+1)
		}
	}
	if len(seen) != 3 || seen[2] != 2 {
		t.Errorf("OnClip indexes = %v, want [0 1 2]", seen)
	}
}

func TestAggregateKeepSeq(t *testing.T) {
	b, err := Aggregate(context.Background(), clipsOf(2, 4, 3), &fakeExtractor{}, Options{ImgSize: 4, KeepSeq: true})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if b.Len() != 6 {
		t.Errorf("batch rows = %d, want 6", b.Len())
	}
}

func TestAggregateKeepSeqReducesPerToken(t *testing.T) {
	b, err := Aggregate(context.Background(), clipsOf(3, 4, 2), &fakeExtractor{}, Options{ImgSize: 4, KeepSeq: true, Reduction: ReductionMax})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if b.Len() != 2 || !equalRow(b[0], []float32{3, 0}) || !equalRow(b[1], []float32{3, 1}) {
		t.Errorf("Aggregate(keepSeq, max) = %v, want [[3 0] [3 1]]", b)
	}
}

func TestAggregateReduces(t *testing.T) {
	b, err := Aggregate(context.Background(), clipsOf(3, 4, 2), &fakeExtractor{}, Options{ImgSize: 4, Reduction: ReductionMean})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if b.Len() != 1 || !equalRow(b[0], []float32{2, 0}) {
		t.Errorf("Aggregate(mean) = %v, want [[2 0]]", b)
	}
}

func TestAggregateResolutionMismatch(t *testing.T) {
	ex := &fakeExtractor{}
	_, err := Aggregate(context.Background(), clipsOf(2, 8, 2), ex, Options{ImgSize: 4})
	if !merrors.IsUsage(err) {
		t.Errorf("error = %v, want usage error", err)
	}
	if ex.calls != 0 {
		t.Errorf("extractor called %d times after a usage error", ex.calls)
	}
}

func TestAggregatePropagatesClipError(t *testing.T) {
	boom := errors.New("decoder failed")
	clips := func(yield func(video.Clip, error) bool) {
		yield(nil, boom)
	}
	_, err := Aggregate(context.Background(), clips, &fakeExtractor{}, Options{ImgSize: 4})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestAggregateNilExtractor(t *testing.T) {
	if _, err := Aggregate(context.Background(), clipsOf(1, 4, 1), nil, Options{ImgSize: 4}); !merrors.IsUsage(err) {
		t.Errorf("error = %v, want usage error", err)
	}
}

// fakeCropper finds a face only in frames whose first value is 1.
type fakeCropper struct {
	ready   bool
	crops   int
	resizes int
}

func (c *fakeCropper) Initialized() bool { return c.ready }

func (c *fakeCropper) Init(bundlePath, device string) error {
	c.ready = true
	return nil
}

func (c *fakeCropper) Crop(f video.Frame) (video.Frame, error) {
	if f.Pix[0] != 1 {
		return video.Frame{}, ErrNoFace
	}
	c.crops++
	return video.NewFrame(4, 4), nil
}

func (c *fakeCropper) Resize(f video.Frame) (video.Frame, error) {
	c.resizes++
	return video.NewFrame(4, 4), nil
}

func faceClip() video.Clip {
	face := video.NewFrame(16, 16)
	face.Pix[0] = 1
	return video.Clip{face, video.NewFrame(16, 16)}
}

func TestCropClipPolicies(t *testing.T) {
	d := &fakeCropper{ready: true}
	out, err := CropClip(faceClip(), d, FaceMissResize)
	if err != nil {
		t.Fatalf("CropClip(resize) error = %v", err)
	}
	if d.crops != 1 || d.resizes != 1 {
		t.Errorf("crops=%d resizes=%d, want 1/1", d.crops, d.resizes)
	}
	if err := CheckResolution(out, 4); err != nil {
		t.Errorf("cropped clip resolution: %v", err)
	}

	if _, err := CropClip(faceClip(), d, FaceMissFail); !errors.Is(err, ErrNoFace) {
		t.Errorf("CropClip(fail) error = %v, want %v", err, ErrNoFace)
	}
}

func TestAggregateRequiresInitializedDetector(t *testing.T) {
	d := &fakeCropper{}
	_, err := Aggregate(context.Background(), clipsOf(1, 4, 1), &fakeExtractor{}, Options{ImgSize: 4, Detector: d})
	if !merrors.IsUsage(err) {
		t.Errorf("error = %v, want usage error", err)
	}
}

func TestParseFaceMiss(t *testing.T) {
	if m, err := ParseFaceMiss("fail"); err != nil || m != FaceMissFail {
		t.Errorf("ParseFaceMiss(fail) = %v, %v", m, err)
	}
	if m, err := ParseFaceMiss(""); err != nil || m != FaceMissResize {
		t.Errorf("ParseFaceMiss(\"\") = %v, %v", m, err)
	}
	if _, err := ParseFaceMiss("skip"); err == nil {
		t.Error("ParseFaceMiss(skip) expected error")
	}
}
