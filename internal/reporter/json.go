package reporter

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// envelope carries the fields shared by every JSON event.
type envelope struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Timestamp int64  `json:"timestamp"`
}

func (e *envelope) stamp(kind, runID string) {
	e.Type = kind
	e.RunID = runID
	e.Timestamp = time.Now().Unix()
}

type event interface {
	stamp(kind, runID string)
}

type messageEvent struct {
	envelope
	Message string `json:"message"`
}

type fileResultEvent struct {
	File  string `json:"file"`
	Rows  int    `json:"rows"`
	Dim   int    `json:"dim"`
	Error string `json:"error"`
}

// downloadGate passes one event per 10% of a known total, or per 10 MiB when
// the total is unknown. Completion always passes and rearms the gate.
type downloadGate struct {
	last int
}

func (g *downloadGate) allow(p DownloadProgress) bool {
	const (
		stepPercent = 10
		stepBytes   = 10 << 20
	)
	bucket := int(p.Written / stepBytes)
	if p.Total > 0 {
		bucket = int(p.Written * 100 / p.Total / stepPercent)
	}
	if p.Total > 0 && p.Written >= p.Total {
		g.last = -1
		return true
	}
	if bucket <= g.last {
		return false
	}
	g.last = bucket
	return true
}

// clipGate passes one event per whole percent, at least one every five
// seconds, and every event from 99% on.
type clipGate struct {
	last int
	at   time.Time
}

func (g *clipGate) reset() {
	g.last = -1
	g.at = time.Time{}
}

func (g *clipGate) allow(p ClipProgress, now time.Time) bool {
	const interval = 5 * time.Second
	bucket := int(p.Percent)
	stale := g.at.IsZero() || now.Sub(g.at) >= interval
	if bucket <= g.last && !stale && p.Percent < 99 {
		return false
	}
	g.last = max(g.last, bucket)
	g.at = now
	return true
}

// JSONReporter writes one JSON object per line. Every event carries the run
// id so interleaved streams from concurrent runs can be told apart.
type JSONReporter struct {
	mu       sync.Mutex
	w        io.Writer
	runID    string
	clips    clipGate
	download downloadGate
}

// NewJSONReporter creates a reporter writing to stdout.
func NewJSONReporter() *JSONReporter {
	return NewJSONReporterWithWriter(os.Stdout)
}

// NewJSONReporterWithWriter creates a reporter writing to w.
func NewJSONReporterWithWriter(w io.Writer) *JSONReporter {
	r := &JSONReporter{w: w, runID: uuid.NewString(), download: downloadGate{last: -1}}
	r.clips.reset()
	return r
}

// RunID returns the identifier stamped on every event.
func (r *JSONReporter) RunID() string {
	return r.runID
}

func (r *JSONReporter) emit(kind string, ev event) {
	ev.stamp(kind, r.runID)
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.w.Write(data)
}

func seconds(d time.Duration) int64 {
	return int64(d.Seconds())
}

func (r *JSONReporter) Hardware(s HardwareSummary) {
	r.emit("hardware", &struct {
		envelope
		Hostname      string `json:"hostname"`
		LogicalCores  int    `json:"logical_cores"`
		PhysicalCores int    `json:"physical_cores"`
		TotalMemory   uint64 `json:"total_memory"`
		Device        string `json:"device"`
	}{
		Hostname:      s.Hostname,
		LogicalCores:  s.LogicalCores,
		PhysicalCores: s.PhysicalCores,
		TotalMemory:   s.TotalMemory,
		Device:        s.Device,
	})
}

func (r *JSONReporter) ModelLoaded(s ModelSummary) {
	r.emit("model_loaded", &struct {
		envelope
		Name       string `json:"name"`
		Checkpoint string `json:"checkpoint"`
		Kind       string `json:"kind"`
		Params     int64  `json:"params"`
		Dropped    int    `json:"dropped"`
		Device     string `json:"device"`
	}{
		Name:       s.Name,
		Checkpoint: s.Checkpoint,
		Kind:       s.Kind,
		Params:     s.Params,
		Dropped:    s.Dropped,
		Device:     s.Device,
	})
}

func (r *JSONReporter) DownloadProgress(p DownloadProgress) {
	r.mu.Lock()
	ok := r.download.allow(p)
	r.mu.Unlock()
	if !ok {
		return
	}

	r.emit("download_progress", &struct {
		envelope
		URL     string `json:"url"`
		Written int64  `json:"written"`
		Total   int64  `json:"total"`
	}{URL: p.URL, Written: p.Written, Total: p.Total})
}

func (r *JSONReporter) Initialization(s InitializationSummary) {
	r.emit("initialization", &struct {
		envelope
		InputFile     string `json:"input_file"`
		OutputFile    string `json:"output_file"`
		Resolution    string `json:"resolution"`
		TotalFrames   int    `json:"total_frames"`
		Regime        string `json:"regime"`
		ExpectedClips int    `json:"expected_clips"`
		CropFace      bool   `json:"crop_face"`
	}{
		InputFile:     s.InputFile,
		OutputFile:    s.OutputFile,
		Resolution:    s.Resolution,
		TotalFrames:   s.TotalFrames,
		Regime:        s.Regime,
		ExpectedClips: s.ExpectedClips,
		CropFace:      s.CropFace,
	})
}

func (r *JSONReporter) StageProgress(u StageProgress) {
	ev := &struct {
		envelope
		Stage   string  `json:"stage"`
		Percent float32 `json:"percent"`
		Message string  `json:"message"`
		ETA     *int64  `json:"eta_seconds,omitempty"`
	}{Stage: u.Stage, Percent: u.Percent, Message: u.Message}
	if u.ETA != nil {
		eta := seconds(*u.ETA)
		ev.ETA = &eta
	}
	r.emit("stage_progress", ev)
}

func (r *JSONReporter) ExtractionStarted(totalClips int) {
	r.mu.Lock()
	r.clips.reset()
	r.mu.Unlock()

	r.emit("extraction_started", &struct {
		envelope
		TotalClips int `json:"total_clips"`
	}{TotalClips: totalClips})
}

func (r *JSONReporter) ClipProgress(p ClipProgress) {
	r.mu.Lock()
	ok := r.clips.allow(p, time.Now())
	r.mu.Unlock()
	if !ok {
		return
	}

	r.emit("clip_progress", &struct {
		envelope
		Stage       string  `json:"stage"`
		CurrentClip int     `json:"current_clip"`
		TotalClips  int     `json:"total_clips"`
		Rows        int     `json:"rows"`
		Percent     float32 `json:"percent"`
		ClipsPerSec float32 `json:"clips_per_sec"`
		ETA         int64   `json:"eta_seconds"`
	}{
		Stage:       "extraction",
		CurrentClip: p.CurrentClip,
		TotalClips:  p.TotalClips,
		Rows:        p.Rows,
		Percent:     p.Percent,
		ClipsPerSec: p.ClipsPerSec,
		ETA:         seconds(p.ETA),
	})
}

func (r *JSONReporter) ExtractionComplete(s ExtractionOutcome) {
	r.emit("extraction_complete", &struct {
		envelope
		InputFile  string `json:"input_file"`
		OutputFile string `json:"output_file"`
		Clips      int    `json:"clips"`
		Rows       int    `json:"rows"`
		Dim        int    `json:"dim"`
		Reduction  string `json:"reduction"`
		KeepSeq    bool   `json:"keep_seq"`
		Duration   int64  `json:"duration_seconds"`
	}{
		InputFile:  s.InputFile,
		OutputFile: s.OutputFile,
		Clips:      s.Clips,
		Rows:       s.Rows,
		Dim:        s.Dim,
		Reduction:  s.Reduction,
		KeepSeq:    s.KeepSeq,
		Duration:   seconds(s.TotalTime),
	})
}

func (r *JSONReporter) Warning(message string) {
	r.emit("warning", &messageEvent{Message: message})
}

func (r *JSONReporter) Error(err ReporterError) {
	r.emit("error", &struct {
		envelope
		Title      string `json:"title"`
		Message    string `json:"message"`
		Context    string `json:"context"`
		Suggestion string `json:"suggestion"`
	}{Title: err.Title, Message: err.Message, Context: err.Context, Suggestion: err.Suggestion})
}

func (r *JSONReporter) OperationComplete(message string) {
	r.emit("operation_complete", &messageEvent{Message: message})
}

func (r *JSONReporter) BatchStarted(info BatchStartInfo) {
	r.emit("batch_started", &struct {
		envelope
		TotalFiles int      `json:"total_files"`
		FileList   []string `json:"file_list"`
		OutputDir  string   `json:"output_dir"`
	}{TotalFiles: info.TotalFiles, FileList: info.FileList, OutputDir: info.OutputDir})
}

func (r *JSONReporter) FileProgress(ctx FileProgressContext) {
	r.emit("file_progress", &struct {
		envelope
		CurrentFile int `json:"current_file"`
		TotalFiles  int `json:"total_files"`
	}{CurrentFile: ctx.CurrentFile, TotalFiles: ctx.TotalFiles})
}

func (r *JSONReporter) BatchComplete(s BatchSummary) {
	results := make([]fileResultEvent, len(s.FileResults))
	for i, fr := range s.FileResults {
		results[i] = fileResultEvent{File: fr.Filename, Rows: fr.Rows, Dim: fr.Dim, Error: fr.Err}
	}
	r.emit("batch_complete", &struct {
		envelope
		SuccessfulCount int               `json:"successful_count"`
		TotalFiles      int               `json:"total_files"`
		TotalClips      int               `json:"total_clips"`
		TotalDuration   int64             `json:"total_duration_seconds"`
		FileResults     []fileResultEvent `json:"file_results"`
	}{
		SuccessfulCount: s.SuccessfulCount,
		TotalFiles:      s.TotalFiles,
		TotalClips:      s.TotalClips,
		TotalDuration:   seconds(s.TotalDuration),
		FileResults:     results,
	})
}

func (r *JSONReporter) Verbose(message string) {
	r.emit("verbose", &messageEvent{Message: message})
}
