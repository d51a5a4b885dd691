package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/five82/marlin"
	"github.com/five82/marlin/internal/config"
	"github.com/five82/marlin/internal/decode"
	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/facecrop"
	"github.com/five82/marlin/internal/ffms"
	"github.com/five82/marlin/internal/ffprobe"
	"github.com/five82/marlin/internal/onnx"
	"github.com/five82/marlin/internal/util"
)

// extractArgs holds the parsed arguments for the extract command.
type extractArgs struct {
	inputPath string
	outputDir string
	database  string
	recursive bool
	overwrite bool
}

var ea extractArgs

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract clip features from a video file or directory",
	Long: `Extract clip features from a video file or a directory of videos.

Each video is cut into clips of the model's frame count and every clip is
passed through the encoder. Features are written to
OUTPUT/<stem>.features.safetensors as a [rows, dim] float32 tensor, or
[clips, tokens, dim] with --keep-seq and no reduction.`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&ea.inputPath, "input", "i", "", "input video file or directory (required)")
	f.StringVarP(&ea.outputDir, "output", "o", "", "output directory (default: next to the input)")
	f.StringVar(&ea.database, "db", "", "also store features in this SQLite database")
	f.BoolVarP(&ea.recursive, "recursive", "r", false, "descend into subdirectories")
	f.BoolVar(&ea.overwrite, "overwrite", false, "re-extract videos whose feature file exists")
	_ = extractCmd.MarkFlagRequired("input")

	addModelFlags(extractCmd)
	f.Int("sample-rate", config.DefaultSampleRate, "keep every n-th frame of long videos")
	f.Int("stride", config.DefaultStride, "clip stride (accepted, does not change emitted clips)")
	f.String("reduction", config.DefaultReduction, "feature reduction: none, mean, or max")
	f.Bool("keep-seq", false, "keep one feature row per encoder token")
	f.Bool("crop-face", false, "crop the face out of every frame before extraction")
	f.String("face-miss", config.DefaultFaceMissPolicy, "frames without a face: resize or fail")
	f.String("detector-device", "", "face detector device (default: --device)")
	f.String("encoder-graph", "", "ONNX graph of the encoder")
}

// addModelFlags registers the flags selecting a model and its runtime.
func addModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("model", "m", config.DefaultModelName, "registered model name")
	f.String("checkpoint", "", "local checkpoint (.safetensors or .ckpt) instead of a download")
	f.Bool("full", false, "use the encoder+decoder checkpoint")
	f.String("device", config.DefaultDevice, "compute device: cpu or cuda")
	f.String("decoder", config.DefaultDecoder, "frame decoder: ffms or ffmpeg")
	f.String("ffmpeg-dir", "", "directory holding ffprobe and ffmpeg")
	f.String("onnxruntime-lib", "", "onnxruntime shared library")
	f.String("registry-url", config.DefaultRegistryBaseURL, "base URL of published checkpoints")
}

// applyFlags overrides the environment configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	str := map[string]*string{
		"model":           &cfg.ModelName,
		"checkpoint":      &cfg.CheckpointPath,
		"device":          &cfg.Device,
		"decoder":         &cfg.Decoder,
		"ffmpeg-dir":      &cfg.FFmpegDir,
		"onnxruntime-lib": &cfg.OnnxRuntimeLib,
		"registry-url":    &cfg.RegistryBaseURL,
		"reduction":       &cfg.Reduction,
		"face-miss":       &cfg.FaceMissPolicy,
		"detector-device": &cfg.DetectorDevice,
		"encoder-graph":   &cfg.EncoderGraph,
		"full-graph":      &cfg.FullGraph,
	}
	for name, dst := range str {
		if f.Changed(name) {
			v, err := f.GetString(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	ints := map[string]*int{
		"sample-rate": &cfg.SampleRate,
		"stride":      &cfg.Stride,
	}
	for name, dst := range ints {
		if f.Changed(name) {
			v, err := f.GetInt(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	bools := map[string]*bool{
		"full":      &cfg.FullModel,
		"keep-seq":  &cfg.KeepSeq,
		"crop-face": &cfg.CropFace,
	}
	for name, dst := range bools {
		if f.Changed(name) {
			v, err := f.GetBool(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	return cfg.Validate()
}

// newSource returns the configured frame decoder.
func newSource(cfg *config.Config) marlin.Source {
	prober := ffprobe.NewProber(cfg.FFprobePath(), ffprobe.DefaultCacheTTL)
	if cfg.Decoder == config.DecoderFFmpeg {
		return decode.NewPipeSource(prober, cfg.FFmpegPath())
	}
	return ffms.NewSource(prober, util.InferenceThreads(0))
}

func onnxOptions(cfg *config.Config, graph string) onnx.Options {
	return onnx.Options{
		Graph:   graph,
		Library: cfg.OnnxRuntimeLib,
		Device:  cfg.Device,
		Threads: util.InferenceThreads(0),
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.EncoderGraph == "" {
		return merrors.NewUsageError("an encoder graph is required (--encoder-graph or " + config.EnvEncoderGraph + ")")
	}

	inputPath, err := filepath.Abs(ea.inputPath)
	if err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("input path does not exist: %s", inputPath)
	}
	outputDir, err := util.ResolveOutputDir(inputPath, ea.outputDir)
	if err != nil {
		return err
	}

	runLog.Info("Input: %s", inputPath)
	runLog.Info("Output directory: %s", outputDir)
	runLog.Info("Model: %s (device %s, decoder %s)", cfg.ModelName, cfg.Device, cfg.Decoder)
	runLog.Info("Sample rate: %d, reduction: %s, keep-seq: %v", cfg.SampleRate, cfg.Reduction, cfg.KeepSeq)
	runLog.Info("Face cropping: %v (miss policy %s)", cfg.CropFace, cfg.FaceMissPolicy)

	rep.Hardware(hardware(cfg))

	enc, err := onnx.NewEncoder(onnxOptions(cfg, cfg.EncoderGraph))
	if err != nil {
		return err
	}

	opts := append(baseOptions(cfg), marlin.WithExtractor(enc))
	if cfg.CropFace {
		// Process-wide; stays initialized until the process exits.
		opts = append(opts, marlin.WithFaceDetector(facecrop.Shared()))
	}

	m, err := loadModel(cmd.Context(), cfg, opts)
	if err != nil {
		_ = enc.Close()
		return err
	}
	defer func() { _ = m.Close() }()

	batchOpts := []marlin.Option{
		marlin.WithDatabase(ea.database),
		marlin.WithOverwrite(ea.overwrite),
		marlin.WithRecursive(ea.recursive),
		marlin.WithRunID(runID),
	}

	var result *marlin.BatchResult
	if info.IsDir() {
		result, err = m.ExtractDirectory(cmd.Context(), inputPath, outputDir, batchOpts...)
	} else {
		result, err = m.ExtractFiles(cmd.Context(), []string{inputPath}, outputDir, batchOpts...)
	}
	if err != nil {
		return err
	}

	for _, r := range result.Results {
		if r.Err != nil {
			runLog.Error("%s: %v", r.Filename, r.Err)
			continue
		}
		runLog.Info("%s: %s -> %s", r.Filename, util.FormatShape(r.Rows, r.Dim), r.OutputPath)
	}
	if len(result.Results) > 0 && result.SuccessfulCount == 0 {
		return fmt.Errorf("no files were successfully processed")
	}
	return nil
}
