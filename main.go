package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	configPath string
	envFile    string
	debug      bool
	testMode   bool
	headless   bool
	noRelay    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("freeentry failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "freeentry",
		Short:         "Enter every free competition listing and place the order",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), opts.debug)
			if err := InitLocale(); err != nil {
				slog.Warn("locale initialization failed, using built-in English", "err", err)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to dotenv file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable detailed debug logging")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the entry workflow and write the result file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntry(cmd, opts)
		},
	}
	run.Flags().BoolVar(&opts.testMode, "test-mode", false, "Do everything except placing the order")
	run.Flags().BoolVar(&opts.headless, "headless", true, "Run the browser without a window")
	run.Flags().BoolVar(&opts.noRelay, "no-relay", false, "Do not copy the result file to stdout")

	report := &cobra.Command{
		Use:   "report",
		Short: "Print the last result file to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := LoadEnv(opts.envFile)
			if err != nil {
				return err
			}
			path := resolveResultPath(env.Get(envResultPath))
			if err := Relay(path, cmd.OutOrStdout()); err != nil {
				return err
			}
			if opts.debug {
				logResultSummary(path)
			}
			return nil
		},
	}

	root.AddCommand(run, report)
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())

	return root
}

func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

func runEntry(cmd *cobra.Command, opts *cliOptions) error {
	env, err := LoadEnv(opts.envFile)
	if err != nil {
		return err
	}
	// Checked before LoadConfig, which writes a default file when missing.
	if err := CheckCredentials(env); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	config, err := LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ApplyEnv(env); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	flags := cmd.Flags()
	if opts.debug {
		config.DebugMode = true
	}
	if flags.Changed("test-mode") {
		config.TestMode = opts.testMode
	}
	if flags.Changed("headless") {
		config.Headless = opts.headless
	}

	slog.Info(T("run_banner"), bannerAttrs(config)...)
	if config.TestMode {
		slog.Warn(T("test_mode_banner"))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.RunTimeout)
	defer cancel()

	automation := NewAutomation(config)
	defer automation.Close()

	runErr := executeRun(ctx, automation, config.ResultPath)

	if !opts.noRelay {
		if err := Relay(config.ResultPath, cmd.OutOrStdout()); err != nil {
			slog.Warn("relay failed", "err", err)
		}
	}
	return runErr
}

func bannerAttrs(config *Config) []any {
	return []any{
		"base_url", config.BaseURL,
		"result", config.ResultPath,
		"locale", GetLocale(),
	}
}

func logResultSummary(path string) {
	result, err := ReadResult(path)
	if err != nil {
		slog.Warn(T("result_unreadable"), "path", path, "err", err)
		return
	}
	if result == nil {
		slog.Debug(T("result_missing"), "path", path)
		return
	}
	slog.Debug(T("result_summary"),
		"status", result.Status(),
		"added", len(result.AddedURLs()),
		"error", result.ErrorMessage(),
	)
}

// executeRun runs the automation and writes its result. The run error, if
// any, is returned after the result file has been written.
func executeRun(ctx context.Context, automation *Automation, resultPath string) error {
	result, runErr := automation.Run(ctx)

	if err := WriteResult(resultPath, result); err != nil {
		if runErr != nil {
			return fmt.Errorf("%w (result not written: %v)", runErr, err)
		}
		return err
	}
	slog.Debug(T("result_written", result.Status(), resultPath))

	return runErr
}
