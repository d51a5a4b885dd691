package util

import (
	"os"
	"path/filepath"
	"strings"
)

// FeatureFileSuffix is appended to the input stem for feature files.
const FeatureFileSuffix = ".features.safetensors"

// videoExtensions are the containers the decoders are expected to open.
var videoExtensions = map[string]bool{
	".avi": true, ".flv": true, ".m2ts": true, ".m4v": true,
	".mkv": true, ".mov": true, ".mp4": true, ".mpeg": true,
	".mpg": true, ".ogv": true, ".ts": true, ".vob": true,
	".webm": true, ".wmv": true, ".y4m": true,
}

// IsVideoFile reports whether path is a regular file with a video extension.
func IsVideoFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// GetFileStem returns the base name without its extension.
func GetFileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// EnsureDirectory creates path and any missing parents.
func EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FeatureOutputPath returns "<outputDir>/<stem>.features.safetensors".
func FeatureOutputPath(inputPath, outputDir string) string {
	return filepath.Join(outputDir, GetFileStem(inputPath)+FeatureFileSuffix)
}

// ResolveOutputDir returns the directory feature files are written to. An
// empty outputDir means next to the input file, or inside it for directories.
func ResolveOutputDir(inputPath, outputDir string) (string, error) {
	if outputDir != "" {
		return outputDir, nil
	}
	info, err := os.Stat(inputPath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return inputPath, nil
	}
	return filepath.Dir(inputPath), nil
}
