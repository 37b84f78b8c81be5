// Package cmd holds the cache-warmer command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/app"
	"github.com/JakeFAU/cache-warmer/internal/config"
	"github.com/JakeFAU/cache-warmer/internal/logging"
)

// runFunc executes a warm run; tests swap it to capture the parsed config.
type runFunc func(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) error

func runWarm(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) error {
	_, err := app.New(cfg, logger, app.WithOutput(out)).Run(ctx)
	return err
}

// flag name -> viper key for flags that map one to one.
var boundFlags = map[string]string{
	"threads":        "threads",
	"delay":          "delay",
	"base-uri":       "base_uri",
	"user-agent":     "user_agent",
	"mobile":         "mobile",
	"quiet":          "quiet",
	"captcha-string": "captcha_string",
	"cookie":         "cookies",
	"bypass":         "bypass",
	"timeout":        "timeout",
	"format":         "format",
	"metrics-addr":   "metrics_addr",
	"log-level":      "logging.level",
}

// negated flags switch a default-on setting off.
var negatedFlags = map[string]string{
	"no-keep-alive":   "keep_alive",
	"no-gzip":         "compression",
	"no-progress-bar": "progress_bar",
	"desktop":         "mobile",
}

func newRootCmd(run runFunc) *cobra.Command {
	var cfgFile string
	v := config.New()

	cmd := &cobra.Command{
		Use:   "cache-warmer [flags] <uri_file>",
		Short: "Warm a reverse proxy or CDN cache from a list of URIs.",
		Long: `cache-warmer requests every URI listed in a file, one per line, so the
cache in front of the site is populated. Each response is classified by its
X-Cache-Status header and HTTP status, and the run stops early when a
captcha page is detected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			v.Set("uri_file", args[0])

			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}

			level := cfg.Logging.Level
			if cfg.Quiet {
				level = "warn"
			}
			logger, err := logging.New(cfg.Logging.Development, level)
			if err != nil {
				return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			return run(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "optional YAML config file")
	flags.IntP("threads", "t", 4, "number of parallel workers")
	flags.IntP("delay", "d", 0, "delay in milliseconds after each request, per worker")
	flags.StringP("base-uri", "b", "", "prefix prepended to every line of the URI file")
	flags.StringP("user-agent", "u", "", "custom User-Agent header")
	flags.Bool("mobile", false, "use the mobile Googlebot user agent")
	flags.Bool("desktop", false, "use the desktop Googlebot user agent (default)")
	flags.BoolP("no-keep-alive", "n", false, "open a new connection for every request")
	flags.BoolP("no-gzip", "g", false, "do not negotiate compressed responses")
	flags.Bool("quiet", false, "print neither progress nor the final report")
	flags.Bool("no-progress-bar", false, "hide the progress bar")
	flags.String("captcha-string", "", "stop the run when a response body contains this string")
	flags.StringArrayP("cookie", "c", nil, "cookie sent with every request as KEY=VALUE (repeatable)")
	flags.Bool("bypass", false, "send cacheupdate=true so the cache refreshes instead of serving")
	flags.Duration("timeout", 0, "per-request timeout, 0 disables it")
	flags.String("format", config.FormatText, "report format: text, json or markdown")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	flags.Bool("log-dev", true, "development (console) log encoding")
	flags.String("log-level", "info", "log level: debug, info, warn or error")

	cmd.MarkFlagsMutuallyExclusive("user-agent", "mobile", "desktop")
	cmd.MarkFlagsMutuallyExclusive("quiet", "no-progress-bar")

	return cmd
}

// bindFlags layers explicitly set flags over env, file and defaults.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range boundFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	for name, key := range negatedFlags {
		if flags.Changed(name) {
			on, err := flags.GetBool(name)
			if err != nil {
				return fmt.Errorf("read flag %s: %w", name, err)
			}
			if on {
				v.Set(key, false)
			}
		}
	}
	if flags.Changed("log-dev") {
		dev, err := flags.GetBool("log-dev")
		if err != nil {
			return fmt.Errorf("read flag log-dev: %w", err)
		}
		v.Set("logging.development", dev)
	}
	return nil
}

// Execute runs the root command and exits non-zero on configuration or file
// errors. Per-request failures never affect the exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(runWarm).ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			fmt.Fprintln(os.Stderr, "configuration error:", err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
