// confsentry assesses network device configurations against an AI-derived
// compliance baseline and writes structured reports.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"confsentry/internal/backend"
	"confsentry/internal/batch"
	"confsentry/internal/cache"
	"confsentry/internal/config"
	"confsentry/internal/logging"
	"confsentry/internal/pipeline"
	"confsentry/internal/report"
)

var (
	cfgPath     string
	provider    string
	noCache     bool
	outputDir   string
	format      string
	concurrency int
	jsonLogs    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "confsentry",
	Short: "AI-staged compliance assessment for network device configurations",
	Long: `confsentry runs a device configuration through a staged AI pipeline:
asset identification, criteria selection (cache-backed), and direct
vulnerability assessment against the original configuration text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if provider != "" {
			cfg.Provider = provider
		}
		if noCache {
			cfg.Cache.Disabled = true
		}
		if outputDir != "" {
			cfg.Output.Dir = outputDir
		}
		if format != "" {
			cfg.Output.Format = format
		}

		logger, err = logging.New(cfg.LogLevel, jsonLogs)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var assessCmd = &cobra.Command{
	Use:   "assess <config-file>",
	Short: "Assess a single device configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read configuration: %w", err)
		}

		pipe, store, err := buildPipeline()
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		res, runErr := pipe.Run(cmd.Context(), string(data))
		paths, saveErr := report.Save(cfg.Output.Dir, cfg.Output.Format, res)
		for _, p := range paths {
			fmt.Fprintf(cmd.OutOrStdout(), "report written: %s\n", p)
		}
		if runErr != nil {
			// The partial report above still has every completed stage.
			return fmt.Errorf("assessment failed: %w", runErr)
		}
		if saveErr != nil {
			return saveErr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "compliance score: %.1f%%\n", res.Summary.ComplianceScore)
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Assess every configuration file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, store, err := buildPipeline()
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		runner := batch.NewRunner(pipe, concurrency, logger)
		outcomes, err := runner.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "FAILED  %s: %v\n", o.Path, o.Err)
				continue
			}
			if _, err := report.Save(cfg.Output.Dir, cfg.Output.Format, o.Result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok      %s: score %.1f%%\n", o.Path, o.Result.Summary.ComplianceScore)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d assessments failed", failed, len(outcomes))
		}
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the criteria cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show criteria cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\n", st.Entries)
		if st.Entries > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "oldest:  %s\nnewest:  %s\n", st.Oldest, st.Newest)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every criteria cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Clear(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
		return nil
	},
}

// buildPipeline wires the backend, cache and retry policy from config.
// The returned store is nil when caching is disabled.
func buildPipeline() (*pipeline.Pipeline, *cache.Store, error) {
	gen, err := backend.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMaxTokens(cfg.MaxTokens),
		pipeline.WithRetryPolicy(pipeline.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BackoffBase: cfg.BackoffBase(),
			BackoffMax:  cfg.RequestTimeout(),
		}),
	}

	var store *cache.Store
	if !cfg.Cache.Disabled {
		store, err = cache.Open(cfg.Cache.Path)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithCache(store))
	}

	return pipeline.New(gen, opts...), store, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "confsentry.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "AI backend: anthropic, openai or ollama")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "bypass the criteria cache for this run")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "report output directory")
	rootCmd.PersistentFlags().StringVar(&format, "format", "", "report format: json, html or both")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON lines")
	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "maximum parallel assessments")

	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(assessCmd, batchCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
