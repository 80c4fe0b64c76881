package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/accel/internal/accel"
	"github.com/tanq16/accel/internal/config"
	"github.com/tanq16/accel/internal/output"
	"github.com/tanq16/accel/internal/utils"
)

var AccelVersion = "dev"

type rootFlags struct {
	output     string
	threads    int
	timeout    time.Duration
	kaTimeout  time.Duration
	userAgent  string
	proxyURL   string
	headers    []string
	limitRate  string
	tempDir    string
	configPath string
	envFile    string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "accel [URL]",
		Short:         "accel downloads a file over HTTP with concurrent range requests",
		Version:       AccelVersion,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			utils.InitLogger(flags.debug)
			opts, req, err := buildRun(cmd, flags, args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			outcome := accel.NewCoordinator(opts).Run(ctx, req)
			return outcome.Err
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	cmd.Flags().IntVarP(&flags.threads, "threads", "n", 1, "Number of concurrent range requests")
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 3*time.Minute, "Timeout for connecting and receiving response headers; body transfer is not limited (eg. 5s, 10m)")
	cmd.Flags().DurationVar(&flags.kaTimeout, "keep-alive-timeout", 90*time.Second, "Keep-alive timeout for client")
	cmd.Flags().StringVarP(&flags.userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (\"randomize\" picks a browser agent)")
	cmd.Flags().StringVarP(&flags.proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (credentials may be embedded)")
	cmd.Flags().StringArrayVarP(&flags.headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	cmd.Flags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	// flags without shorthand
	cmd.Flags().StringVar(&flags.limitRate, "limit-rate", "", "Bandwidth cap per range request (eg. 500KB, 2MB)")
	cmd.Flags().StringVar(&flags.tempDir, "temp-dir", "", "Directory for segment files (default .accel-temp next to the output)")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/accel/config.yaml)")
	cmd.Flags().StringVar(&flags.envFile, "env-file", ".env", "File of ACCEL_* variables to load")

	cmd.AddCommand(newCleanCmd())
	return cmd
}

// buildRun merges defaults, config file, environment and flags into the
// coordinator options and request for one download.
func buildRun(cmd *cobra.Command, flags *rootFlags, url string) (accel.Options, accel.DownloadRequest, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return accel.Options{}, accel.DownloadRequest{}, err
	}
	if err := config.LoadEnvFile(flags.envFile); err != nil {
		return accel.Options{}, accel.DownloadRequest{}, err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return accel.Options{}, accel.DownloadRequest{}, err
	}

	changed := cmd.Flags().Changed
	if changed("threads") {
		cfg.Threads = flags.threads
	}
	if changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	if changed("keep-alive-timeout") {
		cfg.KATimeout = flags.kaTimeout
	}
	if changed("user-agent") || cfg.UserAgent == "" {
		cfg.UserAgent = flags.userAgent
	}
	if changed("proxy") {
		cfg.Proxy = flags.proxyURL
	}
	if changed("header") {
		cfg.Headers = append(cfg.Headers, flags.headers...)
	}
	if changed("limit-rate") {
		cfg.LimitRate = flags.limitRate
	}
	if changed("temp-dir") {
		cfg.TempDir = flags.tempDir
	}

	outputPath := flags.output
	if outputPath == "" {
		if outputPath, err = utils.OutputPathFromURL(url); err != nil {
			return accel.Options{}, accel.DownloadRequest{}, err
		}
	}
	rate, err := utils.ParseRate(cfg.LimitRate)
	if err != nil {
		return accel.Options{}, accel.DownloadRequest{}, fmt.Errorf("invalid limit rate %q: %w", cfg.LimitRate, err)
	}
	if cfg.UserAgent == "randomize" {
		cfg.UserAgent = utils.GetRandomUserAgent()
	}
	proxyURL, proxyUser, proxyPass := utils.SplitProxyAuth(cfg.Proxy)

	opts := accel.Options{
		HTTPClientConfig: utils.HTTPClientConfig{
			Timeout:       cfg.Timeout,
			KATimeout:     cfg.KATimeout,
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUser,
			ProxyPassword: proxyPass,
			UserAgent:     cfg.UserAgent,
			Headers:       utils.ParseHeaderArgs(cfg.Headers),
		},
		TempDir:   cfg.TempDir,
		RateLimit: rate,
		Debug:     flags.debug,
		Reporter:  accel.NewLineReporter(cmd.OutOrStdout()),
	}
	req := accel.DownloadRequest{URL: url, Threads: cfg.Threads, OutputPath: outputPath}
	return opts, req, nil
}

func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		output.PrintError(describeError(err))
		os.Exit(1)
	}
}

func describeError(err error) string {
	var transferErr *accel.TransferError
	switch {
	case errors.Is(err, accel.ErrInvalidConfiguration):
		return fmt.Sprintf("Invalid configuration: %v", err)
	case errors.As(err, &transferErr):
		return fmt.Sprintf("Download failed at %v", err)
	default:
		return fmt.Sprintf("Download failed: %v", err)
	}
}
