package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.ModelName != DefaultModelName {
		t.Errorf("expected ModelName=%s, got %s", DefaultModelName, cfg.ModelName)
	}
	if cfg.SampleRate != DefaultSampleRate {
		t.Errorf("expected SampleRate=%d, got %d", DefaultSampleRate, cfg.SampleRate)
	}
	if cfg.Stride != DefaultStride {
		t.Errorf("expected Stride=%d, got %d", DefaultStride, cfg.Stride)
	}
	if cfg.Reduction != DefaultReduction {
		t.Errorf("expected Reduction=%s, got %s", DefaultReduction, cfg.Reduction)
	}
	if cfg.CacheDir != DefaultCacheDir {
		t.Errorf("expected CacheDir=%s, got %s", DefaultCacheDir, cfg.CacheDir)
	}
	if cfg.CropFace {
		t.Error("expected CropFace=false by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name         string
		modify       func(*Config)
		wantErr      bool
		wantSentinel error
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:         "sample rate 0 is invalid",
			modify:       func(c *Config) { c.SampleRate = 0 },
			wantErr:      true,
			wantSentinel: ErrInvalidSampleRate,
		},
		{
			name:         "sample rate above max is invalid",
			modify:       func(c *Config) { c.SampleRate = MaxSampleRate + 1 },
			wantErr:      true,
			wantSentinel: ErrInvalidSampleRate,
		},
		{
			name:    "sample rate 1 is valid",
			modify:  func(c *Config) { c.SampleRate = 1 },
			wantErr: false,
		},
		{
			name:         "negative stride is invalid",
			modify:       func(c *Config) { c.Stride = -1 },
			wantErr:      true,
			wantSentinel: ErrInvalidStride,
		},
		{
			name:         "unknown reduction is invalid",
			modify:       func(c *Config) { c.Reduction = "median" },
			wantErr:      true,
			wantSentinel: ErrInvalidReduction,
		},
		{
			name:    "max reduction is valid",
			modify:  func(c *Config) { c.Reduction = "max" },
			wantErr: false,
		},
		{
			name:         "unknown face miss policy is invalid",
			modify:       func(c *Config) { c.FaceMissPolicy = "skip" },
			wantErr:      true,
			wantSentinel: ErrInvalidFaceMissPolicy,
		},
		{
			name:         "unknown decoder is invalid",
			modify:       func(c *Config) { c.Decoder = "gstreamer" },
			wantErr:      true,
			wantSentinel: ErrInvalidDecoder,
		},
		{
			name:    "ffmpeg decoder is valid",
			modify:  func(c *Config) { c.Decoder = DecoderFFmpeg },
			wantErr: false,
		},
		{
			name: "checkpoint without model name is invalid",
			modify: func(c *Config) {
				c.ModelName = ""
				c.CheckpointPath = "/ckpt/model.safetensors"
			},
			wantErr:      true,
			wantSentinel: ErrNoModel,
		},
		{
			name:         "empty cache dir is invalid",
			modify:       func(c *Config) { c.CacheDir = "" },
			wantErr:      true,
			wantSentinel: ErrInvalidCacheDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantSentinel != nil && !errors.Is(err, tt.wantSentinel) {
				t.Errorf("Validate() error = %v, want sentinel %v", err, tt.wantSentinel)
			}
		})
	}
}

func TestGetDetectorDevice(t *testing.T) {
	cfg := NewConfig()
	cfg.Device = "cuda"

	if got := cfg.GetDetectorDevice(); got != "cuda" {
		t.Errorf("GetDetectorDevice() = %s, want cuda", got)
	}

	cfg.DetectorDevice = "cpu"
	if got := cfg.GetDetectorDevice(); got != "cpu" {
		t.Errorf("GetDetectorDevice() = %s, want cpu", got)
	}
}

func TestBinaryPaths(t *testing.T) {
	cfg := NewConfig()
	if got := cfg.FFprobePath(); got != "ffprobe" {
		t.Errorf("FFprobePath() = %s, want ffprobe", got)
	}

	cfg.FFmpegDir = "/opt/ffmpeg/bin"
	if got := cfg.FFprobePath(); got != filepath.Join("/opt/ffmpeg/bin", "ffprobe") {
		t.Errorf("FFprobePath() = %s", got)
	}
	if got := cfg.FFmpegPath(); got != filepath.Join("/opt/ffmpeg/bin", "ffmpeg") {
		t.Errorf("FFmpegPath() = %s", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvModel, "marlin_vit_small_ytf")
	t.Setenv(EnvDevice, "cuda")
	t.Setenv(EnvSampleRate, "4")

	cfg := NewConfig()
	if err := cfg.LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if cfg.ModelName != "marlin_vit_small_ytf" {
		t.Errorf("ModelName = %s, want marlin_vit_small_ytf", cfg.ModelName)
	}
	if cfg.Device != "cuda" {
		t.Errorf("Device = %s, want cuda", cfg.Device)
	}
	if cfg.SampleRate != 4 {
		t.Errorf("SampleRate = %d, want 4", cfg.SampleRate)
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = EnvFullGraph
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set in the environment", key)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte(key+"=/graphs/full.onnx\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := NewConfig()
	if err := cfg.LoadEnv(envFile); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.FullGraph != "/graphs/full.onnx" {
		t.Errorf("FullGraph = %q, want /graphs/full.onnx", cfg.FullGraph)
	}
}

func TestLoadEnvBadSampleRate(t *testing.T) {
	t.Setenv(EnvSampleRate, "two")

	cfg := NewConfig()
	err := cfg.LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
	if !errors.Is(err, ErrInvalidSampleRate) {
		t.Errorf("LoadEnv() error = %v, want %v", err, ErrInvalidSampleRate)
	}
}
