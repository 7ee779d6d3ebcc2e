// Package cli is the safemigrator command line: the HTTP server with its
// background driver, and one-shot commands for every migration operation.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"safemigrator/config"
	"safemigrator/encoder"
	"safemigrator/job"
	"safemigrator/layout"
	"safemigrator/lock"
	"safemigrator/logger"
	"safemigrator/models"
	"safemigrator/pebblehost"
	"safemigrator/routes"
	writerbackends "safemigrator/writerBackends"
)

// errFailed makes the process exit non-zero when an operation reported
// failures; the result itself was already printed.
var errFailed = errors.New("operation reported failures")

// newRootCommand creates a fresh command tree.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "safemigrator",
		Short: "Migrate an image library to WebP, AVIF or JXL without breaking references",
		Long: `safemigrator converts JPEG, PNG and GIF uploads to a modern format, rewrites
every reference to them in the content stores, and keeps backups until the
conversion is committed or rolled back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initializeLogger(cmd)
		},
	}
	cmd.Version = routes.Version()
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error), overrides MIGRATOR_LOG_LEVEL")

	cmd.AddCommand(
		newServeCommand(),
		newRunCommand(),
		newImportCommand(),
		newCommitCommand(),
		newCommitAllCommand(),
		newRollbackCommand(),
		newReprocessCommand(),
		newStatusCommand(),
		newReportCommand(),
		newStatsCommand(),
		newDimensionsCommand(),
		newSettingsCommand(),
		newTokenCommand(),
	)
	return cmd
}

// Execute runs the command line and exits on failure.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

func initializeLogger(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return err
	}
	if cfg.LogFile != "" {
		if err := logger.Init(cfg.LogFile, true); err != nil {
			return err
		}
	}
	logger.SetLevel(lvl)
	return nil
}

// app is everything a command needs, opened from the configuration.
type app struct {
	cfg    *config.Config
	layout *layout.Layout
	host   *pebblehost.Host
	codecs *encoder.Registry
	engine *job.Engine

	closers []func() error
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a := &app{cfg: cfg, layout: layout.New(cfg.UploadsRoot, cfg.UploadsURL, cfg.BackupSubdir)}
	a.codecs = encoder.NewRegistry()
	a.codecs.RegisterDefaults()
	logger.Debugw("encoders available", "formats", a.codecs.Capabilities())

	a.host, err = pebblehost.Open(cfg.GetHostDBPath(), a.layout, a.codecs)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.host.Close)

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		rl, err := lock.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rl.Close)
		locker = rl
	}

	opts := job.Options{Host: a.host, Layout: a.layout, Codec: a.codecs, Locker: locker}
	if len(cfg.Sinks) > 0 {
		archiver, err := writerbackends.NewArchiver(cfg.Sinks)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts.Archiver = archiver
	}
	a.engine = job.New(opts)

	// A configuration file is authoritative for the saved settings.
	if cfg.ConfigFile != "" {
		if err := a.engine.SaveSettings(ctx, cfg.Settings); err != nil {
			a.Close()
			return nil, fmt.Errorf("save settings: %w", err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("close: %v", err)
		}
	}
}

// withApp opens the app around fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints r and turns a failed result into errFailed.
func printResult(cmd *cobra.Command, r models.Result) error {
	if err := printJSON(cmd.OutOrStdout(), r); err != nil {
		return err
	}
	if !r.Success {
		return errFailed
	}
	return nil
}
