package main

import (
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/reporter"
	"github.com/five82/marlin/internal/util"
)

// runLogReporter records the outcome events of a run in the run log.
type runLogReporter struct {
	reporter.NullReporter
	log *logging.RunLog
}

func (r runLogReporter) ModelLoaded(s reporter.ModelSummary) {
	r.log.Info("Model %s loaded from %s: %s, %d parameters, %d discriminator tensors dropped",
		s.Name, s.Checkpoint, s.Kind, s.Params, s.Dropped)
}

func (r runLogReporter) Initialization(s reporter.InitializationSummary) {
	r.log.Info("%s: %d frames at %s, %s regime, %d clips expected",
		s.InputFile, s.TotalFrames, s.Resolution, s.Regime, s.ExpectedClips)
}

func (r runLogReporter) ExtractionComplete(s reporter.ExtractionOutcome) {
	r.log.Info("%s: %d clips -> %s features in %s",
		s.InputFile, s.Clips, util.FormatShape(s.Rows, s.Dim), util.FormatClock(s.TotalTime))
}

func (r runLogReporter) Warning(message string) {
	r.log.Warn("%s", message)
}

func (r runLogReporter) Error(err reporter.ReporterError) {
	r.log.Error("%s: %s", err.Title, err.Message)
}

func (r runLogReporter) BatchComplete(s reporter.BatchSummary) {
	r.log.Info("Batch complete: %d of %d succeeded, %d clips in %s",
		s.SuccessfulCount, s.TotalFiles, s.TotalClips, util.FormatClock(s.TotalDuration))
}

func (r runLogReporter) Verbose(message string) {
	r.log.Debug("%s", message)
}
