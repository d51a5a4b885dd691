// Package reporter delivers progress events of model loading and feature
// extraction to terminals, JSON consumers, and logs.
package reporter

// Reporter receives extraction progress events. Implementations must be safe
// to call from the goroutine running the extraction.
type Reporter interface {
	Hardware(summary HardwareSummary)
	ModelLoaded(summary ModelSummary)
	DownloadProgress(progress DownloadProgress)
	Initialization(summary InitializationSummary)
	StageProgress(update StageProgress)
	ExtractionStarted(totalClips int)
	ClipProgress(progress ClipProgress)
	ExtractionComplete(summary ExtractionOutcome)
	Warning(message string)
	Error(err ReporterError)
	OperationComplete(message string)
	BatchStarted(info BatchStartInfo)
	FileProgress(context FileProgressContext)
	BatchComplete(summary BatchSummary)
	Verbose(message string)
}

// NullReporter discards every event. Embed it to implement a subset.
type NullReporter struct{}

func (NullReporter) Hardware(HardwareSummary)             {}
func (NullReporter) ModelLoaded(ModelSummary)             {}
func (NullReporter) DownloadProgress(DownloadProgress)    {}
func (NullReporter) Initialization(InitializationSummary) {}
func (NullReporter) StageProgress(StageProgress)          {}
func (NullReporter) ExtractionStarted(int)                {}
func (NullReporter) ClipProgress(ClipProgress)            {}
func (NullReporter) ExtractionComplete(ExtractionOutcome) {}
func (NullReporter) Warning(string)                       {}
func (NullReporter) Error(ReporterError)                  {}
func (NullReporter) OperationComplete(string)             {}
func (NullReporter) BatchStarted(BatchStartInfo)          {}
func (NullReporter) FileProgress(FileProgressContext)     {}
func (NullReporter) BatchComplete(BatchSummary)           {}
func (NullReporter) Verbose(string)                       {}
