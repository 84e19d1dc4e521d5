package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/junior2099/carve/internal/analyze"
	"github.com/junior2099/carve/internal/carver"
	"github.com/junior2099/carve/internal/config"
	"github.com/junior2099/carve/internal/device"
	"github.com/junior2099/carve/internal/event"
	"github.com/junior2099/carve/internal/manifest"
	"github.com/junior2099/carve/internal/stats"
	"github.com/junior2099/carve/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// sizeValue is a pflag.Value that parses human-readable sizes ("32M",
// "1.5G") into bytes at flag-parse time.
type sizeValue struct {
	n *int64
}

var _ pflag.Value = (*sizeValue)(nil)

func (s *sizeValue) String() string {
	if s.n == nil || *s.n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", *s.n)
}

func (s *sizeValue) Type() string { return "size" }

func (s *sizeValue) Set(val string) error {
	n, err := config.ParseSize(val)
	if err != nil {
		return err
	}
	*s.n = n
	return nil
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point orchestrates all flag parsing and mode selection
func run() int {
	var (
		videoFlag    bool
		blockSize    int64
		offset       int64
		imageMax     int64
		videoMax     int64
		bwLimit      int64
		dedupe       bool
		dryRun       bool
		manifestFlag bool
		verbose      bool
		quiet        bool
		noProgress   bool
		showVersion  bool
		logFile      string
	)

	rootCmd := &cobra.Command{
		Use:   "carve [flags] <device> [output-dir]",
		Short: "Recover deleted images and videos from raw storage media",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "carve %s\n", version)
				return nil
			}

			devicePath := args[0]
			outputDir := "rescued"
			if len(args) > 1 {
				outputDir = args[1]
			}

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}

			// Apply config defaults for flags not explicitly set on CLI.
			if err := applyConfigDefaults(cmd, cfg.Defaults,
				&videoFlag, &blockSize, &bwLimit,
				&dedupe, &manifestFlag, &imageMax, &videoMax, &quiet); err != nil {
				return err
			}

			// Configure logging.
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			} else if !quiet {
				logLevel = slog.LevelInfo
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})
				logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
			}
			logger := slog.New(logHandler)
			slog.SetDefault(logger)

			if dryRun {
				slog.Info("dry run mode")
			}

			// Set up context with signal handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Create stats collector.
			collector := stats.NewCollector()

			// Create events channel.
			events := make(chan event.Event, 256)

			// When --log is set, tee events through a logging goroutine
			// that writes structured records before forwarding to the presenter.
			presenterEvents := (<-chan event.Event)(events)
			if logFile != "" {
				teed := make(chan event.Event, 256)
				go func() {
					for ev := range events {
						attrs := []slog.Attr{
							slog.String("type", ev.Type.String()),
							slog.String("format", ev.Format.String()),
							slog.Int64("start", ev.Start),
							slog.Int64("end", ev.End),
							slog.Int64("bytes", ev.Bytes),
						}
						if ev.Name != "" {
							attrs = append(attrs, slog.String("name", ev.Name))
						}
						if ev.Error != nil {
							attrs = append(attrs, slog.String("error", ev.Error.Error()))
						}
						slog.LogAttrs(context.Background(), slog.LevelInfo, "carve.event", attrs...)
						teed <- ev
					}
					close(teed)
				}()
				presenterEvents = teed
			}

			// Create presenter.
			isTTY := ui.IsTTY(os.Stderr.Fd())
			presenter := ui.NewPresenter(ui.Config{
				Writer:     os.Stdout,
				ErrWriter:  os.Stderr,
				IsTTY:      isTTY,
				Quiet:      quiet,
				Verbose:    verbose,
				NoProgress: noProgress,
				Stats:      collector,
			})

			mode := carver.ModeImage
			if videoFlag {
				mode = carver.ModeVideo
			}

			scanCfg := carver.Config{
				DevicePath: devicePath,
				OutputDir:  outputDir,
				Mode:       mode,
				BlockSize:  int(blockSize),
				Offset:     offset,
				ImageMax:   imageMax,
				VideoMax:   videoMax,
				BWLimit:    bwLimit,
				Dedupe:     dedupe,
				DryRun:     dryRun,
				Events:     events,
				Stats:      collector,
			}

			if manifestFlag && !dryRun {
				m, mErr := manifest.Open(devicePath, outputDir)
				if mErr != nil {
					slog.Warn("manifest unavailable", "error", mErr)
				} else {
					defer m.Close()
					scanCfg.Manifest = m
					slog.Debug("manifest open", "path", m.Path())
				}
			}

			slog.Debug("starting scan",
				"device", devicePath,
				"output", outputDir,
				"mode", mode.String(),
				"block_size", blockSize,
				"offset", offset,
			)

			// Run presenter in background, scan in foreground.
			var presenterErr error
			var presenterWg sync.WaitGroup
			presenterWg.Add(1)
			go func() {
				defer presenterWg.Done()
				presenterErr = presenter.Run(presenterEvents)
			}()

			result := carver.Run(ctx, scanCfg)
			stop()
			close(events)
			presenterWg.Wait()
			if presenterErr != nil {
				fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
			}

			if !quiet {
				summary := presenter.Summary()
				if summary != "" {
					fmt.Fprintln(os.Stderr, summary)
				}
				if result.Report.BytesScanned > 0 {
					fmt.Fprintf(os.Stderr, "media appears %s\n",
						analyze.Describe(int64(len(result.Report.Files)), result.Report.BytesScanned))
				}
			}

			if result.Err != nil {
				if errors.Is(result.Err, context.Canceled) {
					slog.Info("scan interrupted", "recovered", len(result.Report.Files))
				} else {
					slog.Error("scan failed", "error", result.Err)
				}
				if errors.Is(result.Err, device.ErrDeviceUnavailable) {
					return &exitError{code: 2}
				}
				if len(result.Report.Files) > 0 {
					return &exitError{code: 1} // partial results on disk
				}
				return &exitError{code: 2}
			}

			return nil
		},
	}

	// Version flag handled in RunE, but also register the flag.
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	rootCmd.Flags().BoolVar(&videoFlag, "video", false, "carve videos (MP4/AVI/MKV/FLV) instead of images")
	rootCmd.Flags().
		Var(&sizeValue{&blockSize}, "block-size", "read block size (e.g. 32M; default 32M)")
	rootCmd.Flags().
		Var(&sizeValue{&offset}, "offset", "start scanning at this device offset (e.g. 1G)")
	rootCmd.Flags().
		Var(&sizeValue{&imageMax}, "image-max", "abandon image candidates larger than SIZE (default 256M)")
	rootCmd.Flags().
		Var(&sizeValue{&videoMax}, "video-max", "cut video candidates at SIZE (default 2G)")
	rootCmd.Flags().
		Var(&sizeValue{&bwLimit}, "bwlimit", "device read rate limit (e.g. 100M)")
	rootCmd.Flags().BoolVar(&dedupe, "dedupe", false, "skip payloads already rescued this run (BLAKE3)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "scan and report without writing rescued files")
	rootCmd.Flags().BoolVar(&manifestFlag, "manifest", false, "record rescued files in a per-run SQLite manifest")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable progress display")
	rootCmd.Flags().StringVar(&logFile, "log", "", "write structured JSON log to FILE")

	// Register subcommands.
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	video *bool,
	blockSize, bwLimit *int64,
	dedupe, manifestFlag *bool,
	imageMax, videoMax *int64,
	quiet *bool,
) error {
	size := func(flag string, dst *int64, val *string) error {
		if cmd.Flags().Changed(flag) || val == nil {
			return nil
		}
		n, err := config.ParseSize(*val)
		if err != nil {
			return fmt.Errorf("config %s: %w", flag, err)
		}
		*dst = n
		return nil
	}

	if !cmd.Flags().Changed("video") && defaults.Video != nil {
		*video = *defaults.Video
	}
	if !cmd.Flags().Changed("dedupe") && defaults.Dedupe != nil {
		*dedupe = *defaults.Dedupe
	}
	if !cmd.Flags().Changed("manifest") && defaults.Manifest != nil {
		*manifestFlag = *defaults.Manifest
	}
	if !cmd.Flags().Changed("quiet") && defaults.Quiet != nil {
		*quiet = *defaults.Quiet
	}
	if err := size("block-size", blockSize, defaults.BlockSize); err != nil {
		return err
	}
	if err := size("bwlimit", bwLimit, defaults.BWLimit); err != nil {
		return err
	}
	if err := size("image-max", imageMax, defaults.ImageMax); err != nil {
		return err
	}
	return size("video-max", videoMax, defaults.VideoMax)
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
