// Package ffms provides CGO bindings to FFMS2 for indexed RGB frame extraction.
package ffms

/*
#cgo pkg-config: ffms2
#include <ffms.h>
#include <stdlib.h>
#include <string.h>

#define ERR_BUF_SIZE 1024

// Helper to create an error info struct with C-allocated buffer
static FFMS_ErrorInfo* create_error_info() {
	FFMS_ErrorInfo* err = (FFMS_ErrorInfo*)malloc(sizeof(FFMS_ErrorInfo));
	err->Buffer = (char*)malloc(ERR_BUF_SIZE);
	err->BufferSize = ERR_BUF_SIZE;
	err->Buffer[0] = '\0';
	return err;
}

// Helper to free error info struct
static void free_error_info(FFMS_ErrorInfo* err) {
	if (err) {
		free(err->Buffer);
		free(err);
	}
}

// Helper to get error message from FFMS_ErrorInfo
static const char* get_error_message(FFMS_ErrorInfo* err) {
	return err->Buffer;
}

// Request packed RGB24 output at the source resolution.
static int set_rgb24_output(FFMS_VideoSource* src, int width, int height, FFMS_ErrorInfo* err) {
	int formats[2];
	formats[0] = FFMS_GetPixFmt("rgb24");
	formats[1] = -1;
	return FFMS_SetOutputFormatV2(src, formats, width, height, FFMS_RESIZER_BICUBIC, err);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

var initOnce sync.Once

// Init initializes the FFMS2 library. Safe to call multiple times.
func Init() {
	initOnce.Do(func() {
		C.FFMS_Init(0, 0)
	})
}

// Index is an FFMS2 index of the video track of one file.
type Index struct {
	ptr  *C.FFMS_Index
	path string
}

// Properties are the stream properties the segmenter needs.
type Properties struct {
	Width  int
	Height int
	FPSNum int
	FPSDen int
	Frames int
}

// FrameRate returns frames per second, or 0 when the rate is unknown.
func (p Properties) FrameRate() float64 {
	if p.FPSDen == 0 {
		return 0
	}
	return float64(p.FPSNum) / float64(p.FPSDen)
}

// RGBSource decodes frames by index into packed RGB24.
type RGBSource struct {
	ptr    *C.FFMS_VideoSource
	width  int
	height int
}

type errorInfo struct {
	c *C.FFMS_ErrorInfo
}

func newErrorInfo() errorInfo { return errorInfo{c: C.create_error_info()} }

func (e errorInfo) free() { C.free_error_info(e.c) }

func (e errorInfo) wrap(format string, args ...any) error {
	return fmt.Errorf("%s: %s", fmt.Sprintf(format, args...), C.GoString(C.get_error_message(e.c)))
}

// OpenIndex indexes the video track of the file at path. Audio is not indexed.
func OpenIndex(path string) (*Index, error) {
	Init()

	ei := newErrorInfo()
	defer ei.free()

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	indexer := C.FFMS_CreateIndexer(cPath, ei.c)
	if indexer == nil {
		return nil, ei.wrap("failed to create indexer")
	}
	C.FFMS_TrackTypeIndexSettings(indexer, C.FFMS_TYPE_AUDIO, 0, 0)

	ptr := C.FFMS_DoIndexing2(indexer, C.FFMS_IEH_ABORT, ei.c)
	if ptr == nil {
		return nil, ei.wrap("failed to index")
	}
	return &Index{ptr: ptr, path: path}, nil
}

// Close releases the index. Repeated calls are no-ops.
func (x *Index) Close() {
	if x.ptr != nil {
		C.FFMS_DestroyIndex(x.ptr)
		x.ptr = nil
	}
}

// Properties reads frame count and rate from the index and the coded size
// from the first frame. Width and height stay 0 for an empty track.
func (x *Index) Properties() (Properties, error) {
	src, err := x.videoSource(1)
	if err != nil {
		return Properties{}, err
	}
	defer C.FFMS_DestroyVideoSource(src)

	vp := C.FFMS_GetVideoProperties(src)
	if vp == nil {
		return Properties{}, fmt.Errorf("failed to get video properties")
	}
	props := Properties{
		FPSNum: int(vp.FPSNumerator),
		FPSDen: int(vp.FPSDenominator),
		Frames: int(vp.NumFrames),
	}
	if props.Frames == 0 {
		return props, nil
	}

	ei := newErrorInfo()
	defer ei.free()

	frame := C.FFMS_GetFrame(src, 0, ei.c)
	if frame == nil {
		return Properties{}, ei.wrap("failed to get first frame")
	}
	props.Width = int(frame.EncodedWidth)
	props.Height = int(frame.EncodedHeight)
	return props, nil
}

// OpenRGB creates a threaded source converting to RGB24 at the coded size.
func (x *Index) OpenRGB(props Properties, threads int) (*RGBSource, error) {
	src, err := x.videoSource(threads)
	if err != nil {
		return nil, err
	}

	ei := newErrorInfo()
	defer ei.free()

	if C.set_rgb24_output(src, C.int(props.Width), C.int(props.Height), ei.c) != 0 {
		C.FFMS_DestroyVideoSource(src)
		return nil, ei.wrap("failed to set rgb24 output")
	}
	return &RGBSource{ptr: src, width: props.Width, height: props.Height}, nil
}

func (x *Index) videoSource(threads int) (*C.FFMS_VideoSource, error) {
	if x == nil || x.ptr == nil {
		return nil, fmt.Errorf("index is closed")
	}

	ei := newErrorInfo()
	defer ei.free()

	track := C.FFMS_GetFirstTrackOfType(x.ptr, C.FFMS_TYPE_VIDEO, ei.c)
	if track < 0 {
		return nil, ei.wrap("no video track found")
	}

	cPath := C.CString(x.path)
	defer C.free(unsafe.Pointer(cPath))

	src := C.FFMS_CreateVideoSource(cPath, track, x.ptr, C.int(threads), C.FFMS_SEEK_NORMAL, ei.c)
	if src == nil {
		return nil, ei.wrap("failed to create video source")
	}
	return src, nil
}

// Close releases the video source. Repeated calls are no-ops.
func (s *RGBSource) Close() {
	if s.ptr != nil {
		C.FFMS_DestroyVideoSource(s.ptr)
		s.ptr = nil
	}
}

// FrameSize returns the packed RGB24 buffer size of one frame.
func (s *RGBSource) FrameSize() int {
	return s.width * s.height * 3
}

// ReadFrame decodes frame n into out as packed rows without padding.
func (s *RGBSource) ReadFrame(n int, out []byte) error {
	if s.ptr == nil {
		return fmt.Errorf("video source is closed")
	}
	if len(out) < s.FrameSize() {
		return fmt.Errorf("output buffer too small: need %d, got %d", s.FrameSize(), len(out))
	}

	ei := newErrorInfo()
	defer ei.free()

	frame := C.FFMS_GetFrame(s.ptr, C.int(n), ei.c)
	if frame == nil {
		return ei.wrap("failed to get frame %d", n)
	}

	rowLen := s.width * 3
	stride := int(frame.Linesize[0])
	plane := unsafe.Slice((*byte)(unsafe.Pointer(frame.Data[0])), stride*(s.height-1)+rowLen)
	for row := 0; row < s.height; row++ {
		copy(out[row*rowLen:(row+1)*rowLen], plane[row*stride:row*stride+rowLen])
	}
	return nil
}
