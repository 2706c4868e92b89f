// Command filament turns polylines into connected edge clusters.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/chazu/filament/pkg/config"
	"github.com/chazu/filament/pkg/engine"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "filament",
		Short:         "Fuse paths into edge clusters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configPath  string
	verbose     bool
	metricsAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(newBuildCmd())
}

type buildOptions struct {
	script string
	input  string
	out    string
	refine bool
}

func newBuildCmd() *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build clusters from a scene script or a YAML paths file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.script == "") == (opts.input == "") {
				return errors.New("exactly one of --script or --input is required")
			}
			if cmd.Flags().Changed("refine") {
				return runBuild(cmd.Context(), cmd.OutOrStdout(), opts, &opts.refine)
			}
			return runBuild(cmd.Context(), cmd.OutOrStdout(), opts, nil)
		},
	}
	cmd.Flags().StringVarP(&opts.script, "script", "s", "", "Scene script to evaluate")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "YAML paths file")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the result here instead of stdout")
	cmd.Flags().BoolVar(&opts.refine, "refine", false, "Reduce every cluster to its minimum spanning tree")
	return cmd
}

func runBuild(ctx context.Context, stdout io.Writer, opts buildOptions, refine *bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if refine != nil {
		cfg.Pipeline.Refine = *refine
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	app := NewApp(cfg.Pipeline, logger, engine.WithTimeout(cfg.ScriptTimeout))
	var res BuildResult
	if opts.script != "" {
		source, err := os.ReadFile(opts.script)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		res = app.Evaluate(ctx, string(source))
	} else {
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		paths, err := readPaths(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", opts.input, err)
		}
		res = app.Build(ctx, paths)
	}

	for _, w := range res.Warnings {
		logger.Warn(w.Message)
	}

	out := stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeResult(out, res); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("build failed: %s", res.Errors[0].Message)
	}
	logger.Info("build complete", "vertices", len(res.Vertices), "clusters", len(res.Clusters))
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
