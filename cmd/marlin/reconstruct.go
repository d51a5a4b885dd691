package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/marlin"
	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/onnx"
	"github.com/five82/marlin/internal/processing"
	"github.com/five82/marlin/internal/reporter"
	"github.com/five82/marlin/internal/util"
)

// ReconstructionSuffix is appended to the input stem for reconstruction output.
const ReconstructionSuffix = ".reconstruction.safetensors"

var (
	maskRatio  float64
	maskSeed   uint64
	reconInput string
	reconOut   string
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct",
	Short: "Reconstruct masked patches of every clip with a full model",
	Long: `Run the encoder, projection, and decoder of a full model over every clip
of a video. The same tube mask hides a fraction of spatial patches in every
clip. Reconstructed patches are written as one [clips, patches, dim]
float32 tensor.`,
	Args: cobra.NoArgs,
	RunE: runReconstruct,
}

func init() {
	f := reconstructCmd.Flags()
	f.StringVarP(&reconInput, "input", "i", "", "input video file (required)")
	f.StringVarP(&reconOut, "output", "o", "", "output file (default: <stem>"+ReconstructionSuffix+" next to the input)")
	f.Float64Var(&maskRatio, "mask-ratio", 0.9, "fraction of spatial patches hidden from the encoder")
	f.Uint64Var(&maskSeed, "seed", 0, "mask seed")
	f.String("full-graph", "", "ONNX graph of the full model")
	_ = reconstructCmd.MarkFlagRequired("input")
	addModelFlags(reconstructCmd)
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.FullGraph == "" {
		return merrors.NewUsageError("a full model graph is required (--full-graph or MARLIN_FULL_GRAPH)")
	}
	if maskRatio < 0 || maskRatio >= 1 {
		return merrors.NewUsageError(fmt.Sprintf("mask ratio must be in [0, 1), got %g", maskRatio))
	}
	cfg.FullModel = true

	inputPath, err := filepath.Abs(reconInput)
	if err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	outputPath := reconOut
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(inputPath), util.GetFileStem(inputPath)+ReconstructionSuffix)
	}

	rep.Hardware(hardware(cfg))

	rec, err := onnx.NewReconstructor(onnxOptions(cfg, cfg.FullGraph))
	if err != nil {
		return err
	}
	m, err := loadModel(cmd.Context(), cfg, append(baseOptions(cfg), marlin.WithReconstructor(rec)))
	if err != nil {
		_ = rec.Close()
		return err
	}
	defer func() { _ = m.Close() }()

	mask := m.TubeMask(maskRatio, maskSeed)
	runLog.Info("Reconstructing %s with mask ratio %.2f (seed %d)", inputPath, maskRatio, maskSeed)

	start := time.Now()
	var out marlin.Batch
	clips, perClip := 0, 0
	for c, err := range m.Clips(cmd.Context(), inputPath) {
		if err != nil {
			return err
		}
		patches, err := m.Forward(cmd.Context(), c, mask)
		if err != nil {
			return err
		}
		out = append(out, patches...)
		perClip = patches.Len()
		clips++
		rep.Verbose(fmt.Sprintf("clip %d: %d patches", clips, patches.Len()))
	}

	if err := processing.WriteFeatures(outputPath, out, perClip); err != nil {
		return err
	}

	rep.ExtractionComplete(reporter.ExtractionOutcome{
		InputFile:  filepath.Base(inputPath),
		OutputFile: outputPath,
		Clips:      clips,
		Rows:       out.Len(),
		Dim:        out.Dim(),
		Reduction:  "none",
		TotalTime:  time.Since(start),
	})
	return nil
}
