// Package discovery finds the video files of a batch extraction.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/util"
)

// Result contains the results of file discovery with metadata.
type Result struct {
	Files        []string
	SkippedCount int
}

// FindVideoFiles finds video files directly inside inputDir.
// Returns files sorted alphabetically by filename.
func FindVideoFiles(inputDir string) ([]string, error) {
	result, err := Find(inputDir, false)
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// Find lists the video files in inputDir, descending into subdirectories
// when recursive is set. Hidden files and directories are skipped.
func Find(inputDir string, recursive bool) (*Result, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, merrors.NewIOError(fmt.Sprintf("directory does not exist: %s", inputDir), err)
	}
	if !info.IsDir() {
		return nil, merrors.NewUsageError(fmt.Sprintf("%s is not a directory", inputDir))
	}

	result := &Result{}
	err = filepath.WalkDir(inputDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == inputDir {
			return nil
		}
		hidden := strings.HasPrefix(entry.Name(), ".")
		if entry.IsDir() {
			if hidden || !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden {
			return nil
		}
		if util.IsVideoFile(path) {
			result.Files = append(result.Files, path)
		} else {
			result.SkippedCount++
		}
		return nil
	})
	if err != nil {
		return nil, merrors.NewIOError(fmt.Sprintf("cannot read directory %s", inputDir), err)
	}

	if len(result.Files) == 0 {
		return nil, merrors.NewNoFilesFoundError(inputDir)
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(result.Files[i])) < strings.ToLower(filepath.Base(result.Files[j]))
	})

	logDiscoveredFiles(result)
	return result, nil
}

// logDiscoveredFiles logs the first 5 discovered files plus a count.
func logDiscoveredFiles(result *Result) {
	logging.Info("found video files", "count", len(result.Files), "skipped", result.SkippedCount)

	maxToLog := min(5, len(result.Files))
	for i := range maxToLog {
		logging.Debug("discovered", "file", filepath.Base(result.Files[i]))
	}
	if len(result.Files) > 5 {
		logging.Debug("discovered more", "remaining", len(result.Files)-5)
	}
}
