// Package errors provides structured error types for marlin operations.
package errors

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	// KindCommand is an external process that failed to start or exited non-zero.
	KindCommand
	KindConfig
	// KindUsage is a call the model cannot serve, such as a wrong input resolution.
	KindUsage
	// KindUnsupportedFormat is a checkpoint file type that cannot be loaded.
	KindUnsupportedFormat
	// KindNotDownloadable is a registered model without download URLs.
	KindNotDownloadable
	KindUnknownModel
	KindProbe
	KindDecode
	// KindEmptyVideo is a video that decoded to zero frames.
	KindEmptyVideo
	KindDownload
	// KindCheckpoint is a checkpoint whose contents do not match the model.
	KindCheckpoint
	KindNoFilesFound
	KindCancelled
)

var kindNames = map[ErrorKind]string{
	KindIO:                "I/O error",
	KindCommand:           "Command error",
	KindConfig:            "Configuration error",
	KindUsage:             "Usage error",
	KindUnsupportedFormat: "Unsupported format",
	KindNotDownloadable:   "Not downloadable",
	KindUnknownModel:      "Unknown model",
	KindProbe:             "Probe error",
	KindDecode:            "Decode error",
	KindEmptyVideo:        "Empty video",
	KindDownload:          "Download error",
	KindCheckpoint:        "Checkpoint error",
	KindNoFilesFound:      "No files found",
	KindCancelled:         "Operation cancelled",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown error"
}

// CommandError describes an external process failure. ExitCode is -1 when
// the process never started.
type CommandError struct {
	Command    string
	ExitCode   int
	Stderr     string
	Underlying error
}

// Started reports whether the process ran and exited.
func (e *CommandError) Started() bool {
	return e.ExitCode >= 0
}

func (e *CommandError) Error() string {
	switch {
	case !e.Started():
		return fmt.Sprintf("failed to execute %s: %v", e.Command, e.Underlying)
	case e.Stderr != "":
		return fmt.Sprintf("command %s failed with exit code %d: %s", e.Command, e.ExitCode, e.Stderr)
	default:
		return fmt.Sprintf("command %s failed with exit code %d", e.Command, e.ExitCode)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Underlying
}

// CoreError is the main error type for marlin operations.
type CoreError struct {
	Kind       ErrorKind
	Message    string
	Underlying error
}

func (e *CoreError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Underlying
}

// Is matches any *CoreError of the same kind.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && e.Kind == t.Kind
}

func newError(kind ErrorKind, underlying error, format string, args ...any) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: underlying}
}

func NewIOError(message string, underlying error) *CoreError {
	return newError(KindIO, underlying, "%s", message)
}

// NewConfigError wraps a validation failure; the cause stays matchable with errors.Is.
func NewConfigError(underlying error) *CoreError {
	return newError(KindConfig, underlying, "invalid configuration")
}

func NewUsageError(message string) *CoreError {
	return newError(KindUsage, nil, "%s", message)
}

// NewUnsupportedFormatError names the offending file extension.
func NewUnsupportedFormatError(ext string) *CoreError {
	return newError(KindUnsupportedFormat, nil, "unsupported file type: %s", ext)
}

func NewNotDownloadableError(model string) *CoreError {
	return newError(KindNotDownloadable, nil, "model %s is not downloadable", model)
}

func NewUnknownModelError(model string) *CoreError {
	return newError(KindUnknownModel, nil, "no configuration registered for model %s", model)
}

func NewProbeError(path string, underlying error) *CoreError {
	return newError(KindProbe, underlying, "could not probe %s", path)
}

func NewDecodeError(path string, underlying error) *CoreError {
	return newError(KindDecode, underlying, "could not decode %s", path)
}

func NewEmptyVideoError(path string) *CoreError {
	return newError(KindEmptyVideo, nil, "no frames decoded from %s", path)
}

func NewDownloadError(url string, underlying error) *CoreError {
	return newError(KindDownload, underlying, "failed to download %s", url)
}

func NewCheckpointError(message string, underlying error) *CoreError {
	return newError(KindCheckpoint, underlying, "%s", message)
}

func NewNoFilesFoundError(dir string) *CoreError {
	return newError(KindNoFilesFound, nil, "no suitable video files found in %s", dir)
}

func NewCancelledError() *CoreError {
	return newError(KindCancelled, nil, "operation was cancelled by the user")
}

// NewCommandStartError reports a process that could not be started.
func NewCommandStartError(cmd string, err error) *CoreError {
	cmdErr := &CommandError{Command: cmd, ExitCode: -1, Underlying: err}
	return newError(KindCommand, cmdErr, "%s", cmd)
}

// WrapExecError classifies an error returned by exec.Cmd Run or Wait.
func WrapExecError(cmd string, err error, stderr string) *CoreError {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return NewCommandStartError(cmd, err)
	}
	cmdErr := &CommandError{Command: cmd, ExitCode: exitErr.ExitCode(), Stderr: stderr, Underlying: err}
	return newError(KindCommand, cmdErr, "%s", cmd)
}

// IsKind reports whether err wraps a CoreError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var coreErr *CoreError
	return errors.As(err, &coreErr) && coreErr.Kind == kind
}

func IsCancelled(err error) bool {
	return IsKind(err, KindCancelled)
}

func IsUsage(err error) bool {
	return IsKind(err, KindUsage)
}
