package clip

import (
	"context"
	"errors"
	"io"
	"testing"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/video"
)

// numbered returns n 1x1 frames whose first channel holds the raw frame index.
func numbered(n int) []video.Frame {
	frames := make([]video.Frame, n)
	for i := range frames {
		f := video.NewFrame(1, 1)
		f.Pix[0] = float32(i)
		frames[i] = f
	}
	return frames
}

func rawIndex(f video.Frame) int {
	return int(f.Pix[0])
}

type fakeStream struct {
	frames []video.Frame
	pos    int
	closed int
	err    error
	errAt  int
}

func (s *fakeStream) Next() (video.Frame, error) {
	if s.err != nil && s.pos == s.errAt {
		return video.Frame{}, s.err
	}
	if s.pos >= len(s.frames) {
		return video.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *fakeStream) Skip() error {
	if s.pos >= len(s.frames) {
		return io.EOF
	}
	s.pos++
	return nil
}

func (s *fakeStream) Close() error {
	s.closed++
	return nil
}

type fakeSource struct {
	probed  int
	decoded []video.Frame
	stream  *fakeStream
	opened  int
	readAll int
}

func newFakeSource(probed, decoded int) *fakeSource {
	frames := numbered(decoded)
	return &fakeSource{
		probed:  probed,
		decoded: frames,
		stream:  &fakeStream{frames: frames},
	}
}

func (s *fakeSource) Probe(ctx context.Context, path string) (video.Info, error) {
	return video.Info{TotalFrames: s.probed, Width: 1, Height: 1}, nil
}

func (s *fakeSource) ReadAll(ctx context.Context, path string) ([]video.Frame, error) {
	s.readAll++
	return s.decoded, nil
}

func (s *fakeSource) Open(ctx context.Context, path string) (video.Stream, error) {
	s.opened++
	return s.stream, nil
}

func collect(t *testing.T, seg *Segmenter, ctx context.Context) ([]video.Clip, error) {
	t.Helper()
	var clips []video.Clip
	for c, err := range seg.Segment(ctx, "video.mp4") {
		if err != nil {
			return clips, err
		}
		clips = append(clips, c)
	}
	return clips, nil
}

func mustSegmenter(t *testing.T, src video.Source, length, rate int) *Segmenter {
	t.Helper()
	seg, err := New(src, Params{ClipLength: length, SampleRate: rate, Stride: 16})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return seg
}

func TestSelectRegime(t *testing.T) {
	tests := []struct {
		total int
		want  Regime
	}{
		{1, RegimeShort},
		{10, RegimeShort},
		{16, RegimeShort},
		{17, RegimeMedium},
		{32, RegimeMedium},
		{33, RegimeLong},
		{400, RegimeLong},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := SelectRegime(tt.total, 16, 2); got != tt.want {
				t.Errorf("SelectRegime(%d, 16, 2) = %v, want %v", tt.total, got, tt.want)
			}
		})
	}
}

func TestExpectedClips(t *testing.T) {
	p := Params{ClipLength: 16, SampleRate: 2, Stride: 16}
	tests := []struct {
		total int
		want  int
	}{
		{10, 1},
		{20, 1},
		{33, 17},
		{400, 200},
		{401, 201},
	}

	for _, tt := range tests {
		if got := ExpectedClips(tt.total, p); got != tt.want {
			t.Errorf("ExpectedClips(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"valid", Params{16, 2, 16}, false},
		{"zero clip length", Params{0, 2, 16}, true},
		{"zero sample rate", Params{16, 0, 16}, true},
		{"zero stride", Params{16, 2, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.params.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShortVideoPadsLastFrame(t *testing.T) {
	src := newFakeSource(10, 10)
	clips, err := collect(t, mustSegmenter(t, src, 16, 2), context.Background())
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(clips) != 1 {
		t.Fatalf("got %d clips, want 1", len(clips))
	}

	c := clips[0]
	if c.Len() != 16 {
		t.Fatalf("clip length = %d, want 16", c.Len())
	}
	for i := 0; i < 10; i++ {
		if rawIndex(c[i]) != i {
			t.Errorf("frame %d = raw %d, want %d", i, rawIndex(c[i]), i)
		}
	}
	for i := 10; i < 16; i++ {
		if rawIndex(c[i]) != 9 {
			t.Errorf("padded frame %d = raw %d, want 9", i, rawIndex(c[i]))
		}
	}
	if src.opened != 0 {
		t.Error("short video should not open a streaming decoder")
	}
}

func TestMediumVideoTakesFirstFrames(t *testing.T) {
	src := newFakeSource(20, 20)
	clips, err := collect(t, mustSegmenter(t, src, 16, 2), context.Background())
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(clips) != 1 {
		t.Fatalf("got %d clips, want 1", len(clips))
	}
	for i, f := range clips[0] {
		if rawIndex(f) != i {
			t.Errorf("frame %d = raw %d, want %d (no decimation)", i, rawIndex(f), i)
		}
	}
}

func TestMediumVideoShortDecodeIsPadded(t *testing.T) {
	src := newFakeSource(20, 12)
	clips, err := collect(t, mustSegmenter(t, src, 16, 2), context.Background())
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	c := clips[0]
	if c.Len() != 16 {
		t.Fatalf("clip length = %d, want 16", c.Len())
	}
	if rawIndex(c[15]) != 11 {
		t.Errorf("last frame = raw %d, want 11", rawIndex(c[15]))
	}
}

func TestWholeVideoNoFrames(t *testing.T) {
	src := newFakeSource(10, 0)
	_, err := collect(t, mustSegmenter(t, src, 16, 2), context.Background())
	if !merrors.IsKind(err, merrors.KindEmptyVideo) {
		t.Errorf("error = %v, want empty video error", err)
	}
}

func TestLongVideoSlidingWindow(t *testing.T) {
	src := newFakeSource(400, 400)
	clips, err := collect(t, mustSegmenter(t, src, 16, 2), context.Background())
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(clips) != 200 {
		t.Fatalf("got %d clips, want 200", len(clips))
	}
	for i, c := range clips {
		if c.Len() != 16 {
			t.Fatalf("clip %d length = %d, want 16", i, c.Len())
		}
	}

	// The first window is centered on the first sample.
	first := clips[0]
	for i := 0; i < 8; i++ {
		if rawIndex(first[i]) != 0 {
			t.Errorf("first clip frame %d = raw %d, want 0", i, rawIndex(first[i]))
		}
	}
	for i := 8; i < 16; i++ {
		if want := (i - 7) * 2; rawIndex(first[i]) != want {
			t.Errorf("first clip frame %d = raw %d, want %d", i, rawIndex(first[i]), want)
		}
	}

	// The final flush clip ends with repeats of the last sample.
	final := clips[len(clips)-1]
	if rawIndex(final[0]) != 384 {
		t.Errorf("final clip first frame = raw %d, want 384", rawIndex(final[0]))
	}
	for i := 8; i < 16; i++ {
		if rawIndex(final[i]) != 398 {
			t.Errorf("final clip frame %d = raw %d, want 398", i, rawIndex(final[i]))
		}
	}

	// Window centers never move backwards.
	for i := 1; i < len(clips); i++ {
		if rawIndex(clips[i][8]) < rawIndex(clips[i-1][8]) {
			t.Fatalf("clip %d center moved backwards", i)
		}
	}

	if src.stream.closed == 0 {
		t.Error("decoder was not closed")
	}
	if src.readAll != 0 {
		t.Error("long video should not be decoded in full")
	}
}

func TestLongVideoAnyClipLength(t *testing.T) {
	tests := []struct {
		length int
	}{
		{1}, {2}, {3}, {5}, {15}, {16},
	}
	for _, tt := range tests {
		total := 2*tt.length + 10
		src := newFakeSource(total, total)
		clips, err := collect(t, mustSegmenter(t, src, tt.length, 2), context.Background())
		if err != nil {
			t.Fatalf("L=%d: Segment() error = %v", tt.length, err)
		}
		if len(clips) == 0 {
			t.Fatalf("L=%d: no clips", tt.length)
		}
		for i, c := range clips {
			if c.Len() != tt.length {
				t.Errorf("L=%d: clip %d length = %d, want %d", tt.length, i, c.Len(), tt.length)
			}
		}

		// The center frame of the first clip is the first sample.
		half := tt.length / 2
		first := clips[0]
		for i := 0; i < tt.length-half; i++ {
			if rawIndex(first[i]) != 0 {
				t.Errorf("L=%d: first clip frame %d = raw %d, want 0", tt.length, i, rawIndex(first[i]))
			}
		}
		for i := tt.length - half; i < tt.length; i++ {
			if want := (i - (tt.length - half - 1)) * 2; rawIndex(first[i]) != want {
				t.Errorf("L=%d: first clip frame %d = raw %d, want %d", tt.length, i, rawIndex(first[i]), want)
			}
		}
	}
}

func TestLongVideoShortDecodeStillFlushes(t *testing.T) {
	src := newFakeSource(400, 3)
	clips, err := collect(t, mustSegmenter(t, src, 16, 2), context.Background())
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(clips) != 8 {
		t.Fatalf("got %d clips, want 8 flush clips", len(clips))
	}
	for i, c := range clips {
		if c.Len() != 16 {
			t.Errorf("clip %d length = %d, want 16", i, c.Len())
		}
	}
}

func TestLongVideoNoFrames(t *testing.T) {
	src := newFakeSource(400, 0)
	clips, err := collect(t, mustSegmenter(t, src, 16, 2), context.Background())
	if !merrors.IsKind(err, merrors.KindEmptyVideo) {
		t.Errorf("error = %v, want empty video error", err)
	}
	if len(clips) != 0 {
		t.Errorf("got %d clips, want 0", len(clips))
	}
	if src.stream.closed == 0 {
		t.Error("decoder was not closed")
	}
}

func TestEarlyBreakClosesDecoder(t *testing.T) {
	src := newFakeSource(400, 400)
	seg := mustSegmenter(t, src, 16, 2)

	n := 0
	for _, err := range seg.Segment(context.Background(), "video.mp4") {
		if err != nil {
			t.Fatalf("Segment() error = %v", err)
		}
		n++
		if n == 3 {
			break
		}
	}

	if src.stream.closed == 0 {
		t.Error("decoder was not closed after early break")
	}
	if src.stream.pos >= 400 {
		t.Error("stream was drained despite early break")
	}
}

func TestDecodeErrorEndsSequence(t *testing.T) {
	src := newFakeSource(400, 400)
	src.stream.err = errors.New("corrupt packet")
	src.stream.errAt = 40

	clips, err := collect(t, mustSegmenter(t, src, 16, 2), context.Background())
	if err == nil || err.Error() != "corrupt packet" {
		t.Fatalf("error = %v, want corrupt packet", err)
	}
	// Samples 0..19 were read, emitting clips centered at 8..19.
	if len(clips) != 12 {
		t.Errorf("got %d clips before the error, want 12", len(clips))
	}
	if src.stream.closed == 0 {
		t.Error("decoder was not closed after an error")
	}
}

func TestCancelledContext(t *testing.T) {
	src := newFakeSource(400, 400)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := collect(t, mustSegmenter(t, src, 16, 2), ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(nil, Params{16, 2, 16}); err == nil {
		t.Error("New(nil) expected error")
	}
	if _, err := New(newFakeSource(1, 1), Params{16, 0, 16}); err == nil {
		t.Error("New() expected error for zero sample rate")
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, f := range numbered(5) {
		w.Push(f)
	}
	if !w.Full() || w.Len() != 3 {
		t.Fatalf("Len() = %d, Full() = %v, want 3/true", w.Len(), w.Full())
	}
	snap := w.Snapshot()
	for i, want := range []int{2, 3, 4} {
		if rawIndex(snap[i]) != want {
			t.Errorf("snapshot[%d] = raw %d, want %d", i, rawIndex(snap[i]), want)
		}
	}
}
