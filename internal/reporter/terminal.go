package reporter

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/five82/marlin/internal/util"
)

// row is one label/value line of a section.
type row struct {
	label string
	value string
}

// TerminalReporter prints sections of labelled values to stdout and draws
// progress bars on stderr.
type TerminalReporter struct {
	mu  sync.Mutex
	out io.Writer
	bar io.Writer

	clips       *progressbar.ProgressBar
	maxPercent  float32
	download    *progressbar.ProgressBar
	downloadURL string
	lastStage   string

	heading *color.Color
	label   *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	accent  *color.Color
	faint   *color.Color
}

// NewTerminalReporter creates a reporter writing to stdout and stderr.
func NewTerminalReporter() *TerminalReporter {
	return NewTerminalReporterWithWriters(os.Stdout, os.Stderr)
}

// NewTerminalReporterWithWriters creates a reporter printing sections to out
// and progress bars to bar.
func NewTerminalReporterWithWriters(out, bar io.Writer) *TerminalReporter {
	return &TerminalReporter{
		out:     out,
		bar:     bar,
		heading: color.New(color.FgCyan, color.Bold),
		label:   color.New(color.Bold),
		good:    color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow, color.Bold),
		bad:     color.New(color.FgRed, color.Bold),
		accent:  color.New(color.FgMagenta),
		faint:   color.New(color.Faint),
	}
}

// section prints a heading followed by aligned rows. Rows with an empty
// value are omitted.
func (r *TerminalReporter) section(title string, rows ...row) {
	width := 0
	for _, rw := range rows {
		width = max(width, len(rw.label)+1)
	}
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.heading.Fprintln(r.out, title)
	for _, rw := range rows {
		if rw.value == "" {
			continue
		}
		// Pad before styling so escape codes do not break alignment.
		_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.label.Sprintf("%-*s", width, rw.label+":"), rw.value)
	}
}

func (r *TerminalReporter) Hardware(s HardwareSummary) {
	memory := ""
	if s.TotalMemory > 0 {
		memory = util.FormatBytes(s.TotalMemory)
	}
	r.section("HARDWARE",
		row{"Hostname", s.Hostname},
		row{"CPU", fmt.Sprintf("%d cores (%d physical)", s.LogicalCores, s.PhysicalCores)},
		row{"Memory", memory},
		row{"Device", s.Device},
	)
}

func (r *TerminalReporter) ModelLoaded(s ModelSummary) {
	dropped := ""
	if s.Dropped > 0 {
		dropped = fmt.Sprintf("%d discriminator tensors", s.Dropped)
	}
	r.section("MODEL",
		row{"Name", s.Name},
		row{"Checkpoint", s.Checkpoint},
		row{"Kind", s.Kind},
		row{"Parameters", strconv.FormatInt(s.Params, 10)},
		row{"Dropped", dropped},
		row{"Device", s.Device},
	)
}

func (r *TerminalReporter) DownloadProgress(p DownloadProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.download == nil || r.downloadURL != p.URL {
		if r.download != nil {
			_ = r.download.Finish()
		}
		r.downloadURL = p.URL
		r.download = progressbar.NewOptions64(p.Total,
			progressbar.OptionSetDescription("Downloading "+lastPathElem(p.URL)),
			progressbar.OptionSetWriter(r.bar),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	_ = r.download.Set64(p.Written)
	if p.Total > 0 && p.Written >= p.Total {
		_ = r.download.Finish()
		r.download = nil
		r.downloadURL = ""
	}
}

func lastPathElem(url string) string {
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}

func (r *TerminalReporter) Initialization(s InitializationSummary) {
	faces := ""
	if s.CropFace {
		faces = "cropped"
	}
	r.section("VIDEO",
		row{"File", s.InputFile},
		row{"Output", s.OutputFile},
		row{"Resolution", s.Resolution},
		row{"Frames", fmt.Sprintf("%d (%s)", s.TotalFrames, s.Regime)},
		row{"Clips", strconv.Itoa(s.ExpectedClips)},
		row{"Faces", faces},
	)
}

func (r *TerminalReporter) StageProgress(u StageProgress) {
	r.mu.Lock()
	newStage := r.lastStage != u.Stage
	r.lastStage = u.Stage
	r.mu.Unlock()

	if newStage {
		_, _ = fmt.Fprintln(r.out)
		_, _ = r.heading.Fprintln(r.out, strings.ToUpper(u.Stage))
	}
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.accent.Sprint("›"), u.Message)
}

func (r *TerminalReporter) ExtractionStarted(totalClips int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishClipsLocked()
	r.clips = progressbar.NewOptions64(100,
		progressbar.OptionSetWriter(r.bar),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription(fmt.Sprintf("clip 0/%d", totalClips)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Extracting [",
			BarEnd:        "]",
		}),
	)
}

// ClipProgress advances the bar. The bar never moves backwards.
func (r *TerminalReporter) ClipProgress(p ClipProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clips == nil {
		return
	}
	if pct := min(max(p.Percent, 0), 100); pct >= r.maxPercent {
		r.maxPercent = pct
		_ = r.clips.Set64(int64(pct))
	}
	r.clips.Describe(fmt.Sprintf("clip %d/%d, %.1f clips/s, eta %s",
		p.CurrentClip, p.TotalClips, p.ClipsPerSec, util.FormatClock(p.ETA)))
}

func (r *TerminalReporter) finishClipsLocked() {
	if r.clips != nil {
		_ = r.clips.Finish()
		r.clips = nil
	}
	r.maxPercent = 0
}

func (r *TerminalReporter) ExtractionComplete(s ExtractionOutcome) {
	r.mu.Lock()
	r.finishClipsLocked()
	r.mu.Unlock()

	saved := ""
	if s.OutputFile != "" {
		saved = r.good.Sprint(s.OutputFile)
	}
	r.section("RESULTS",
		row{"Clips", strconv.Itoa(s.Clips)},
		row{"Features", util.FormatShape(s.Rows, s.Dim)},
		row{"Reduction", s.Reduction},
		row{"Time", fmt.Sprintf("%s (%s)", util.FormatClock(s.TotalTime), util.FormatRate(s.Clips, s.TotalTime, "clips"))},
		row{"Saved to", saved},
	)
}

func (r *TerminalReporter) Warning(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.warn.Fprintf(r.out, "WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	_, _ = fmt.Fprintln(r.bar)
	_, _ = r.bad.Fprintf(r.bar, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(r.bar, "  %s\n", err.Message)
	for _, extra := range []row{{"Context", err.Context}, {"Suggestion", err.Suggestion}} {
		if extra.value != "" {
			_, _ = fmt.Fprintf(r.bar, "  %s: %s\n", extra.label, extra.value)
		}
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.good.Sprint("✓"), r.label.Sprint(message))
}

func (r *TerminalReporter) BatchStarted(info BatchStartInfo) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.heading.Fprintln(r.out, "BATCH")
	_, _ = fmt.Fprintf(r.out, "  Processing %d files -> %s\n", info.TotalFiles, r.label.Sprint(info.OutputDir))
	for i, name := range info.FileList {
		_, _ = fmt.Fprintf(r.out, "  %d. %s\n", i+1, name)
	}
}

func (r *TerminalReporter) FileProgress(ctx FileProgressContext) {
	_, _ = fmt.Fprintf(r.out, "\nFile %s of %d\n", r.label.Sprint(ctx.CurrentFile), ctx.TotalFiles)
}

func (r *TerminalReporter) BatchComplete(s BatchSummary) {
	r.section("BATCH SUMMARY",
		row{"Succeeded", fmt.Sprintf("%d of %d", s.SuccessfulCount, s.TotalFiles)},
		row{"Time", fmt.Sprintf("%s (%s)", util.FormatClock(s.TotalDuration), util.FormatRate(s.TotalClips, s.TotalDuration, "clips"))},
	)
	for _, fr := range s.FileResults {
		if fr.Err != "" {
			_, _ = fmt.Fprintf(r.out, "  - %s %s\n", fr.Filename, r.bad.Sprint(fr.Err))
			continue
		}
		_, _ = fmt.Fprintf(r.out, "  - %s (%s)\n", fr.Filename, util.FormatShape(fr.Rows, fr.Dim))
	}
}

func (r *TerminalReporter) Verbose(message string) {
	_, _ = fmt.Fprintf(r.out, "  %s\n", r.faint.Sprint(message))
}
