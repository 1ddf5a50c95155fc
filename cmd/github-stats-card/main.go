// Package main is the github-stats-card command: it aggregates GitHub
// activity statistics for one or more accounts, exports them, and serves
// them over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/app"
	"github.com/cam3ron2/github-stats-card/internal/config"
	"github.com/cam3ron2/github-stats-card/internal/export"
	"github.com/cam3ron2/github-stats-card/internal/stats"
	"github.com/cam3ron2/github-stats-card/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appName = "github-stats-card"

// Version is overridden at build time.
var Version = "dev"

func main() {
	if err := rootCmd(os.Stdout).Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envFiles   []string
}

func rootCmd(stdout io.Writer) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Aggregate GitHub activity statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `github-stats-card fetches activity statistics for one or more GitHub
accounts, merges them into a single normalized record, and exports or
serves the result.`,
	}
	cmd.SetOut(stdout)

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to YAML config file")
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load before reading the config (default .env when present)")

	cmd.AddCommand(fetchCmd(flags), serveCmd(flags), insightsCmd(flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func fetchCmd(flags *globalFlags) *cobra.Command {
	var (
		users         []string
		output        string
		format        string
		fromSnapshots bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Aggregate stats once and write them to a file or stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), flags, func(ctx context.Context, runtime *app.Runtime, logger *zap.Logger) error {
				outputFormat, err := resolveFormat(format, output)
				if err != nil {
					return err
				}
				usernames := users
				if len(usernames) == 0 {
					usernames = runtime.DefaultUsers()
				}

				started := time.Now()
				var record stats.UserStats
				if fromSnapshots {
					record, err = runtime.ComputeFromSnapshots(ctx, usernames)
				} else {
					record, err = runtime.Compute(ctx, usernames)
				}
				if err != nil {
					return err
				}
				logger.Info("stats aggregated",
					zap.Strings("usernames", usernames),
					zap.Bool("from_snapshots", fromSnapshots),
					zap.Int64("pending_repositories", record.PendingRepositories),
					zap.Duration("duration", time.Since(started)),
				)

				if output == "" || output == "-" {
					return export.Write(cmd.OutOrStdout(), outputFormat, record)
				}
				path, err := export.WriteFile(output, outputFormat, record)
				if err != nil {
					return err
				}
				logger.Info("stats exported", zap.String("path", path), zap.String("format", string(outputFormat)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&users, "users", "u", nil, "usernames to aggregate (default users.usernames from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file or directory, - for stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: json or xlsx (default from output extension)")
	cmd.Flags().BoolVar(&fromSnapshots, "from-snapshots", false, "merge the users' published github-user-stats.json instead of querying GitHub")
	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stats, insights, metrics and health endpoints over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return withRuntime(ctx, flags, func(ctx context.Context, runtime *app.Runtime, _ *zap.Logger) error {
				return runtime.Serve(ctx)
			})
		},
	}
}

func insightsCmd(flags *globalFlags) *cobra.Command {
	var (
		input string
		users []string
	)

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Generate AI insights for a stats record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" && len(users) == 0 {
				return errors.New("either --input or --users is required")
			}
			return withRuntime(cmd.Context(), flags, func(ctx context.Context, runtime *app.Runtime, _ *zap.Logger) error {
				var (
					record stats.UserStats
					err    error
				)
				if input != "" {
					record, err = readRecord(input)
				} else {
					record, err = runtime.Compute(ctx, users)
				}
				if err != nil {
					return err
				}

				response, err := runtime.Insights(ctx, record)
				if err != nil {
					return err
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(response)
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "stats JSON file produced by fetch, - for stdin")
	cmd.Flags().StringSliceVarP(&users, "users", "u", nil, "aggregate these users first instead of reading --input")
	return cmd
}

func withRuntime(ctx context.Context, flags *globalFlags, run func(context.Context, *app.Runtime, *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadFile(flags.configPath, flags.envFiles...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !shouldIgnoreLoggerSyncError(syncErr) {
			_, _ = fmt.Fprintf(os.Stderr, "%s: sync logger: %v\n", appName, syncErr)
		}
	}()

	tracing, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      appName,
		ServiceVersion:   Version,
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	runtime, err := app.NewRuntime(cfg, logger, app.RuntimeOptions{})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer func() { _ = runtime.Close() }()

	return run(ctx, runtime, logger)
}

func resolveFormat(flagValue, output string) (export.Format, error) {
	if strings.TrimSpace(flagValue) != "" {
		return export.ParseFormat(flagValue)
	}
	if output == "" || output == "-" {
		return export.FormatJSON, nil
	}
	return export.FormatForPath(output), nil
}

func readRecord(path string) (stats.UserStats, error) {
	var reader io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return stats.UserStats{}, fmt.Errorf("open stats input: %w", err)
		}
		defer file.Close()
		reader = file
	}

	var record stats.UserStats
	if err := json.NewDecoder(reader).Decode(&record); err != nil {
		return stats.UserStats{}, fmt.Errorf("decode stats input: %w", err)
	}
	return record, nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// shouldIgnoreLoggerSyncError reports errors returned when syncing a logger
// attached to a terminal or pipe, which cannot be fsynced.
func shouldIgnoreLoggerSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
