// Package config provides configuration types and defaults for marlin.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/features"
)

// Default constants
const (
	// DefaultModelName is the registry entry used when no model is named.
	DefaultModelName = "marlin_vit_base_ytf"

	// DefaultSampleRate keeps every second decoded frame for long videos.
	DefaultSampleRate = 2

	// DefaultStride is accepted for compatibility; clip emission does not use it.
	DefaultStride = 16

	// DefaultReduction returns the full per-clip feature batch.
	DefaultReduction = "none"

	// DefaultDevice is the compute target for the encoder session.
	DefaultDevice = "cpu"

	// DefaultCacheDir holds downloaded checkpoints and the face detection bundle.
	DefaultCacheDir = ".marlin"

	// DefaultFaceMissPolicy resizes the whole frame when no face is found.
	DefaultFaceMissPolicy = "resize"

	// DefaultRegistryBaseURL is the release location of published checkpoints.
	DefaultRegistryBaseURL = "https://github.com/ControlNet/MARLIN/releases/download/model_v1"

	// DefaultDecoder reads frames through the FFMS2 index.
	DefaultDecoder = DecoderFFMS

	// MaxSampleRate bounds decimation so a clip never spans an unreasonable window.
	MaxSampleRate = 64
)

// Environment variable names read by LoadEnv.
const (
	EnvModel          = "MARLIN_MODEL"
	EnvCacheDir       = "MARLIN_CACHE_DIR"
	EnvDevice         = "MARLIN_DEVICE"
	EnvDetectorDevice = "MARLIN_DETECTOR_DEVICE"
	EnvFFmpegDir      = "MARLIN_FFMPEG_DIR"
	EnvRegistryURL    = "MARLIN_REGISTRY_URL"
	EnvOnnxRuntimeLib = "MARLIN_ONNXRUNTIME_LIB"
	EnvEncoderGraph   = "MARLIN_ENCODER_GRAPH"
	EnvFullGraph      = "MARLIN_FULL_GRAPH"
	EnvSampleRate     = "MARLIN_SAMPLE_RATE"
	EnvDecoder        = "MARLIN_DECODER"
)

// Frame decoders.
const (
	DecoderFFMS   = "ffms"
	DecoderFFmpeg = "ffmpeg"
)

// Face miss policies applied when the detector finds no face in a frame.
const (
	FaceMissResize = "resize"
	FaceMissFail   = "fail"
)

// Config holds all configuration for feature extraction.
type Config struct {
	// Model selection
	ModelName      string
	CheckpointPath string // Optional local checkpoint, bypasses the registry
	FullModel      bool   // Download the encoder+decoder checkpoint

	// Runtime collaborators
	EncoderGraph   string // ONNX graph for the encoder
	FullGraph      string // Optional ONNX graph for reconstruction
	OnnxRuntimeLib string // Optional shared library path for onnxruntime
	FFmpegDir      string // Optional directory holding ffprobe/ffmpeg
	Decoder        string // Frame decoder, ffms or ffmpeg

	// Clip segmentation
	SampleRate int
	Stride     int

	// Aggregation
	Reduction string
	KeepSeq   bool

	// Face cropping
	CropFace       bool
	FaceMissPolicy string

	// Devices
	Device         string
	DetectorDevice string // Empty means same as Device

	// Storage
	CacheDir        string
	RegistryBaseURL string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ModelName:       DefaultModelName,
		SampleRate:      DefaultSampleRate,
		Stride:          DefaultStride,
		Reduction:       DefaultReduction,
		FaceMissPolicy:  DefaultFaceMissPolicy,
		Device:          DefaultDevice,
		Decoder:         DefaultDecoder,
		CacheDir:        DefaultCacheDir,
		RegistryBaseURL: DefaultRegistryBaseURL,
	}
}

// LoadEnv applies a .env file from the working directory, if present, and then
// MARLIN_* environment overrides. Variables already set in the process win over
// the file, matching godotenv semantics.
func (c *Config) LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.ModelName, EnvModel)
	setString(&c.CacheDir, EnvCacheDir)
	setString(&c.Device, EnvDevice)
	setString(&c.DetectorDevice, EnvDetectorDevice)
	setString(&c.FFmpegDir, EnvFFmpegDir)
	setString(&c.RegistryBaseURL, EnvRegistryURL)
	setString(&c.OnnxRuntimeLib, EnvOnnxRuntimeLib)
	setString(&c.EncoderGraph, EnvEncoderGraph)
	setString(&c.FullGraph, EnvFullGraph)
	setString(&c.Decoder, EnvDecoder)

	if v := strings.TrimSpace(os.Getenv(EnvSampleRate)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSampleRate, EnvSampleRate, v)
		}
		c.SampleRate = n
	}

	return nil
}

// Validate checks the configuration. Failures are KindConfig errors wrapping
// one of the sentinel errors.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return merrors.NewConfigError(err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.SampleRate < 1 || c.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: must be 1-%d, got %d", ErrInvalidSampleRate, MaxSampleRate, c.SampleRate)
	}

	if c.Stride < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidStride, c.Stride)
	}

	if _, err := features.ParseReduction(c.Reduction); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReduction, err)
	}

	switch c.FaceMissPolicy {
	case FaceMissResize, FaceMissFail:
	default:
		return fmt.Errorf("%w: '%s', valid options: %s, %s", ErrInvalidFaceMissPolicy, c.FaceMissPolicy, FaceMissResize, FaceMissFail)
	}

	switch c.Decoder {
	case DecoderFFMS, DecoderFFmpeg:
	default:
		return fmt.Errorf("%w: '%s', valid options: %s, %s", ErrInvalidDecoder, c.Decoder, DecoderFFMS, DecoderFFmpeg)
	}

	if c.ModelName == "" {
		return ErrNoModel
	}

	if c.CacheDir == "" {
		return fmt.Errorf("%w: cache directory is empty", ErrInvalidCacheDir)
	}

	return nil
}

// GetDetectorDevice returns the face detector device, falling back to Device.
func (c *Config) GetDetectorDevice() string {
	if c.DetectorDevice != "" {
		return c.DetectorDevice
	}
	return c.Device
}

// FFprobePath returns the ffprobe binary to execute.
func (c *Config) FFprobePath() string {
	return c.binary("ffprobe")
}

// FFmpegPath returns the ffmpeg binary to execute.
func (c *Config) FFmpegPath() string {
	return c.binary("ffmpeg")
}

func (c *Config) binary(name string) string {
	if c.FFmpegDir == "" {
		return name
	}
	return filepath.Join(c.FFmpegDir, name)
}
