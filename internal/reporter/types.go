package reporter

import "time"

// HardwareSummary contains hardware information.
type HardwareSummary struct {
	Hostname      string
	LogicalCores  int
	PhysicalCores int
	TotalMemory   uint64
	Device        string
}

// ModelSummary describes the constructed model.
type ModelSummary struct {
	Name       string
	Checkpoint string
	Kind       string
	Params     int64
	Dropped    int
	Device     string
}

// DownloadProgress reports bytes received for one file. Total is -1 when
// the server sends no length.
type DownloadProgress struct {
	URL     string
	Written int64
	Total   int64
}

// InitializationSummary describes the current video before extraction.
type InitializationSummary struct {
	InputFile     string
	OutputFile    string
	Resolution    string
	TotalFrames   int
	Regime        string
	ExpectedClips int
	CropFace      bool
}

// ClipProgress contains extraction progress information.
type ClipProgress struct {
	CurrentClip int
	TotalClips  int
	Rows        int
	Percent     float32
	ClipsPerSec float32
	ETA         time.Duration
}

// ExtractionOutcome contains final extraction results.
type ExtractionOutcome struct {
	InputFile  string
	OutputFile string
	Clips      int
	Rows       int
	Dim        int
	Reduction  string
	KeepSeq    bool
	TotalTime  time.Duration
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// BatchStartInfo contains batch start metadata.
type BatchStartInfo struct {
	TotalFiles int
	FileList   []string
	OutputDir  string
}

// FileProgressContext contains current file index within a batch.
type FileProgressContext struct {
	CurrentFile int
	TotalFiles  int
}

// BatchSummary contains batch completion information.
type BatchSummary struct {
	SuccessfulCount int
	TotalFiles      int
	TotalClips      int
	TotalDuration   time.Duration
	FileResults     []FileResult
}

// FileResult contains per-file extraction result.
type FileResult struct {
	Filename string
	Rows     int
	Dim      int
	Err      string
}

// StageProgress represents a generic stage update.
type StageProgress struct {
	Stage   string
	Percent float32
	Message string
	ETA     *time.Duration
}
