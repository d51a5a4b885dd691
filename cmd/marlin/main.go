// Package main provides the CLI entry point for marlin.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/five82/marlin"
	"github.com/five82/marlin/internal/checkpoint"
	"github.com/five82/marlin/internal/config"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/reporter"
	"github.com/five82/marlin/internal/util"
)

const (
	appName    = "marlin"
	appVersion = "0.1.0"
)

var (
	envFile  string
	logDir   string
	noLog    bool
	verbose  bool
	jsonMode bool

	cfg    *config.Config
	runLog *logging.RunLog
	rep    reporter.Reporter
	runID  string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if runLog != nil {
		_ = runLog.Close()
	}
	if err != nil {
		logging.Error("command failed", slog.Any("error", xerrors.Errorf("%s: %w", cmd.Name(), err)))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "marlin - video feature extraction with MARLIN checkpoints",
	Long:          "Cuts videos into fixed-length clips and extracts MARLIN encoder features for each clip.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.NewConfig()
		if err := cfg.LoadEnv(envFile); err != nil {
			return err
		}
		if f := cmd.Flags().Lookup("cache-dir"); f != nil && f.Changed {
			cfg.CacheDir = f.Value.String()
		}

		dir := logDir
		if dir == "" {
			dir = filepath.Join(cfg.CacheDir, "logs")
		}
		var err error
		runLog, err = logging.Setup(dir, verbose, noLog)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		level := logging.LevelWarn
		if verbose {
			level = logging.LevelDebug
		}
		out := io.Writer(os.Stderr)
		if runLog != nil {
			out = runLog.Writer()
		}
		logging.SetLogger(logging.New(level, out, jsonMode))
		runLog.Info("command: %s %s", cmd.CommandPath(), strings.Join(args, " "))

		var primary reporter.Reporter
		if jsonMode {
			j := reporter.NewJSONReporter()
			runID = j.RunID()
			primary = j
		} else {
			primary = reporter.NewTerminalReporter()
		}
		if runLog != nil {
			rep = reporter.NewCompositeReporter(primary, runLogReporter{log: runLog})
		} else {
			rep = primary
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", "", "environment file with MARLIN_* settings (default: ./.env)")
	pf.StringVarP(&logDir, "log-dir", "l", "", "log directory (default: CACHE_DIR/logs)")
	pf.BoolVar(&noLog, "no-log", false, "disable the run log file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&jsonMode, "json", false, "emit progress as JSON lines on stdout")
	pf.String("cache-dir", config.DefaultCacheDir, "directory for checkpoints and the face bundle")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(reconstructCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(cleanCacheCmd)
	rootCmd.AddCommand(versionCmd)

	downloadCmd.Flags().StringP("model", "m", config.DefaultModelName, "registered model name")
	downloadCmd.Flags().Bool("full", false, "download the encoder+decoder checkpoint")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s version %s\n", appName, appVersion)
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered model configurations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range marlin.Models() {
			fmt.Println(name)
		}
		return nil
	},
}

var cleanCacheCmd = &cobra.Command{
	Use:   "clean-cache",
	Short: "Remove downloaded checkpoints and the face bundle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The run log lives in the cache by default.
		if runLog != nil && strings.HasPrefix(runLog.FilePath(), filepath.Clean(cfg.CacheDir)+string(filepath.Separator)) {
			_ = runLog.Close()
			runLog = nil
			logging.Init(logging.LevelWarn, os.Stderr)
		}
		return marlin.CleanCache(true, marlin.WithCacheDir(cfg.CacheDir))
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a published checkpoint into the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("model")
		full, _ := cmd.Flags().GetBool("full")
		if !cmd.Flags().Changed("model") {
			name = cfg.ModelName
		}

		m, err := marlin.FromOnline(cmd.Context(), name, full, baseOptions(cfg)...)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		rep.OperationComplete(fmt.Sprintf("Cached %s (%d parameters)", m.Name(), m.Params()))
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify <checkpoint>",
	Short: "Report whether a checkpoint holds an encoder or a full model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := checkpoint.Load(args[0])
		if err != nil {
			return err
		}
		var encoder, decoder int
		for _, key := range loaded.State.Keys() {
			switch {
			case strings.HasPrefix(key, "encoder."):
				encoder++
			case strings.HasPrefix(key, "decoder."):
				decoder++
			}
		}
		fmt.Printf("%s: %s\n", filepath.Base(loaded.Path), loaded.Kind)
		fmt.Printf("  encoder tensors:       %d\n", encoder)
		fmt.Printf("  decoder tensors:       %d\n", decoder)
		fmt.Printf("  discriminator dropped: %d\n", loaded.Dropped)
		return nil
	},
}

// baseOptions maps the loaded configuration onto model options shared by
// every command.
func baseOptions(cfg *config.Config) []marlin.Option {
	return []marlin.Option{
		marlin.WithReporter(rep),
		marlin.WithSource(newSource(cfg)),
		marlin.WithCacheDir(cfg.CacheDir),
		marlin.WithFFmpegDir(cfg.FFmpegDir),
		marlin.WithRegistryURL(cfg.RegistryBaseURL),
		marlin.WithDevice(cfg.Device),
		marlin.WithDetectorDevice(cfg.DetectorDevice),
		marlin.WithSampleRate(cfg.SampleRate),
		marlin.WithStride(cfg.Stride),
		marlin.WithReduction(cfg.Reduction),
		marlin.WithKeepSeq(cfg.KeepSeq),
		marlin.WithCropFace(cfg.CropFace),
		marlin.WithFaceMissPolicy(cfg.FaceMissPolicy),
	}
}

func hardware(cfg *config.Config) reporter.HardwareSummary {
	info := util.GetSystemInfo()
	return reporter.HardwareSummary{
		Hostname:      info.Hostname,
		LogicalCores:  info.NumCPU,
		PhysicalCores: info.PhysicalCores,
		TotalMemory:   info.TotalMemory,
		Device:        cfg.Device,
	}
}

// loadModel builds the model from a local checkpoint when one is configured,
// otherwise from the registry.
func loadModel(ctx context.Context, cfg *config.Config, opts []marlin.Option) (*marlin.Model, error) {
	if cfg.CheckpointPath != "" {
		runLog.Info("Loading checkpoint %s as %s", cfg.CheckpointPath, cfg.ModelName)
		return marlin.FromFile(cfg.ModelName, cfg.CheckpointPath, opts...)
	}
	runLog.Info("Loading %s from registry (full=%v)", cfg.ModelName, cfg.FullModel)
	return marlin.FromOnline(ctx, cfg.ModelName, cfg.FullModel, opts...)
}
