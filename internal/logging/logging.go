package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
)

// RunLogName is the file name of the run log inside the log directory.
const RunLogName = "marlin.log"

// Rotation limits for the run log.
const (
	RunLogMaxSizeMB  = 20
	RunLogMaxBackups = 5
	RunLogMaxAgeDays = 30
)

// RunLog is a printf-style log of CLI runs written through a size-rotated
// file. A nil *RunLog discards everything.
type RunLog struct {
	debug    bool
	logger   *log.Logger
	out      *lumberjack.Logger
	filePath string
}

// Setup opens the run log under logDir. It returns nil when noLog is set.
func Setup(logDir string, verbose, noLog bool) (*RunLog, error) {
	if noLog {
		return nil, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	filePath := filepath.Join(logDir, RunLogName)
	out := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    RunLogMaxSizeMB,
		MaxBackups: RunLogMaxBackups,
		MaxAge:     RunLogMaxAgeDays,
		LocalTime:  true,
	}

	l := &RunLog{
		debug:    verbose,
		logger:   log.New(out, "", log.LstdFlags),
		out:      out,
		filePath: filePath,
	}

	l.Info("marlin run starting (pid %d, verbose %v)", os.Getpid(), verbose)
	return l, nil
}

// Close flushes and closes the rotating file.
func (l *RunLog) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	return l.out.Close()
}

// FilePath returns the path to the active log file.
func (l *RunLog) FilePath() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

func (l *RunLog) printf(level, format string, args []any) {
	if l == nil {
		return
	}
	l.logger.Printf("["+level+"] "+format, args...)
}

// Info writes an INFO line.
func (l *RunLog) Info(format string, args ...any) { l.printf("INFO", format, args) }

// Warn writes a WARN line.
func (l *RunLog) Warn(format string, args ...any) { l.printf("WARN", format, args) }

// Error writes an ERROR line.
func (l *RunLog) Error(format string, args ...any) { l.printf("ERROR", format, args) }

// Debug writes a DEBUG line when the log was opened verbose.
func (l *RunLog) Debug(format string, args ...any) {
	if l != nil && l.debug {
		l.printf("DEBUG", format, args)
	}
}

// Writer returns the rotating file writer, or io.Discard for a nil log.
func (l *RunLog) Writer() io.Writer {
	if l == nil || l.out == nil {
		return io.Discard
	}
	return l.out
}
