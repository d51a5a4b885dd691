package errors

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{KindIO, "I/O error"},
		{KindCommand, "Command error"},
		{KindConfig, "Configuration error"},
		{KindUsage, "Usage error"},
		{KindUnsupportedFormat, "Unsupported format"},
		{KindNotDownloadable, "Not downloadable"},
		{KindUnknownModel, "Unknown model"},
		{KindProbe, "Probe error"},
		{KindDecode, "Decode error"},
		{KindEmptyVideo, "Empty video"},
		{KindDownload, "Download error"},
		{KindCheckpoint, "Checkpoint error"},
		{KindNoFilesFound, "No files found"},
		{KindCancelled, "Operation cancelled"},
		{ErrorKind(99), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("ErrorKind.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCoreErrorError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &CoreError{
		Kind:       KindIO,
		Message:    "test message",
		Underlying: underlying,
	}

	got := err.Error()
	expected := "I/O error: test message: underlying error"
	if got != expected {
		t.Errorf("CoreError.Error() = %v, want %v", got, expected)
	}

	err2 := &CoreError{
		Kind:    KindConfig,
		Message: "config issue",
	}

	got2 := err2.Error()
	expected2 := "Configuration error: config issue"
	if got2 != expected2 {
		t.Errorf("CoreError.Error() = %v, want %v", got2, expected2)
	}
}

func TestCoreErrorUnwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewProbeError("clip.mp4", underlying)

	if err.Unwrap() != underlying {
		t.Error("Unwrap() should return underlying error")
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), underlying) {
		t.Error("errors.Is should reach the underlying error through wrapping")
	}
}

func TestCoreErrorIs(t *testing.T) {
	err1 := &CoreError{Kind: KindIO, Message: "test1"}
	err2 := &CoreError{Kind: KindIO, Message: "test2"}
	err3 := &CoreError{Kind: KindConfig, Message: "test3"}

	if !err1.Is(err2) {
		t.Error("Same kind errors should match")
	}

	if err1.Is(err3) {
		t.Error("Different kind errors should not match")
	}
}

func TestCommandError(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			"not started",
			&CommandError{Command: "ffprobe", ExitCode: -1, Underlying: errors.New("not found")},
			"failed to execute ffprobe: not found",
		},
		{
			"exit with stderr",
			&CommandError{Command: "ffprobe", ExitCode: 1, Stderr: "Invalid data found when processing input"},
			"command ffprobe failed with exit code 1: Invalid data found when processing input",
		},
		{
			"exit without stderr",
			&CommandError{Command: "ffprobe", ExitCode: 2},
			"command ffprobe failed with exit code 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("CommandError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapExecError(t *testing.T) {
	err := exec.Command("sh", "-c", "exit 3").Run()
	wrapped := WrapExecError("sh", err, "boom")

	var cmdErr *CommandError
	if !errors.As(wrapped, &cmdErr) {
		t.Fatalf("WrapExecError() = %v, want a CommandError", wrapped)
	}
	if !cmdErr.Started() || cmdErr.ExitCode != 3 || cmdErr.Stderr != "boom" {
		t.Errorf("CommandError = %+v, want exit code 3 with stderr", cmdErr)
	}

	err = exec.Command(filepath.Join(t.TempDir(), "missing-binary")).Run()
	if !errors.As(WrapExecError("missing-binary", err, ""), &cmdErr) || cmdErr.Started() {
		t.Errorf("WrapExecError(start failure) = %+v, want not started", cmdErr)
	}
	if !IsKind(NewCommandStartError("x", err), KindCommand) {
		t.Error("NewCommandStartError kind is not KindCommand")
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name    string
		err     *CoreError
		kind    ErrorKind
		message string
	}{
		{"NewIOError", NewIOError("disk full", errors.New("no space")), KindIO, "disk full"},
		{"NewUsageError", NewUsageError("wrong size"), KindUsage, "wrong size"},
		{"NewUnsupportedFormatError", NewUnsupportedFormatError("bin"), KindUnsupportedFormat, "unsupported file type: bin"},
		{"NewNotDownloadableError", NewNotDownloadableError("custom"), KindNotDownloadable, "model custom is not downloadable"},
		{"NewUnknownModelError", NewUnknownModelError("nope"), KindUnknownModel, "no configuration registered for model nope"},
		{"NewEmptyVideoError", NewEmptyVideoError("a.mp4"), KindEmptyVideo, "no frames decoded from a.mp4"},
		{"NewDecodeError", NewDecodeError("a.mp4", nil), KindDecode, "could not decode a.mp4"},
		{"NewDownloadError", NewDownloadError("http://x", nil), KindDownload, "failed to download http://x"},
		{"NewCheckpointError", NewCheckpointError("bad header", nil), KindCheckpoint, "bad header"},
		{"NewNoFilesFoundError", NewNoFilesFoundError("/test/dir"), KindNoFilesFound, "no suitable video files found in /test/dir"},
		{"NewCancelledError", NewCancelledError(), KindCancelled, "operation was cancelled by the user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Message != tt.message {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.message)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	sentinel := errors.New("stride must be positive")
	err := NewConfigError(sentinel)
	if !errors.Is(err, sentinel) {
		t.Error("NewConfigError should keep its cause matchable")
	}

	if !IsKind(err, KindConfig) {
		t.Error("IsKind should return true for matching kind")
	}

	if IsKind(err, KindIO) {
		t.Error("IsKind should return false for non-matching kind")
	}

	if IsKind(errors.New("plain error"), KindConfig) {
		t.Error("IsKind should return false for non-CoreError")
	}

	if !IsKind(fmt.Errorf("context: %w", NewUsageError("x")), KindUsage) {
		t.Error("IsKind should see through fmt.Errorf wrapping")
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(NewCancelledError()) {
		t.Error("IsCancelled should return true for cancelled error")
	}
	if IsCancelled(NewConfigError(errors.New("test"))) {
		t.Error("IsCancelled should return false for non-cancelled error")
	}
}

func TestIsUsage(t *testing.T) {
	if !IsUsage(NewUsageError("bad")) {
		t.Error("IsUsage should return true for usage error")
	}
	if IsUsage(NewIOError("x", nil)) {
		t.Error("IsUsage should return false for I/O error")
	}
}
