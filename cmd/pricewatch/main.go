package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/everstacklabs/pricewatch/internal/config"
	"github.com/everstacklabs/pricewatch/internal/diff"
	"github.com/everstacklabs/pricewatch/internal/extract"
	"github.com/everstacklabs/pricewatch/internal/httpclient"
	"github.com/everstacklabs/pricewatch/internal/openrouter"
	"github.com/everstacklabs/pricewatch/internal/output"
	"github.com/everstacklabs/pricewatch/internal/pipeline"
	"github.com/everstacklabs/pricewatch/internal/snapshot"
	"github.com/everstacklabs/pricewatch/internal/validate"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "pricewatch",
		Short:         "OpenRouter provider pricing harvester",
		Long:          "Harvests per-provider endpoint pricing from OpenRouter and writes one pricing snapshot per provider.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pricewatch.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(
		harvestCmd(),
		diffCmd(),
		endpointsCmd(),
		validateCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(pipeline.ExitFatal)
	}
}

func harvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Full run: catalog → endpoints → snapshots → write",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			p := pipeline.New(cfg, newSource(cfg))
			res, written, err := p.Sync(cmd.Context(), output.NewWriter(cfg.OutDir, cfg.Format))
			if err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", written.SummaryPath)
			for _, path := range written.SnapshotPaths {
				fmt.Printf("Wrote %s\n", path)
			}
			fmt.Printf("Extracted rows: %d, Errors: %d\n",
				res.Summary.Summary.ExtractedEndpointRows, len(res.Summary.Errors))
			return nil
		},
	}

	addRunFlags(cmd)
	cmd.Flags().String("out-dir", "data", "Output directory")
	cmd.Flags().String("format", config.FormatJSON, "Output format: json or yaml")

	return cmd
}

func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Harvest and compare against the snapshots on disk (no writes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			res, err := pipeline.New(cfg, newSource(cfg)).Run(cmd.Context())
			if err != nil {
				return err
			}

			hasChanges := false
			for i := range res.Snapshots {
				current := &res.Snapshots[i]
				previous, err := output.LoadSnapshot(cfg.OutDir, current.ProviderName, cfg.Format)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}

				cs := diff.Compute(previous, current)
				fmt.Println(diff.RenderSummary(cs))
				if cs.HasChanges() {
					hasChanges = true
				}
			}

			if hasChanges {
				os.Exit(pipeline.ExitChanges)
			}
			return nil
		},
	}

	addRunFlags(cmd)
	cmd.Flags().String("out-dir", "data", "Directory holding the previous snapshots")
	cmd.Flags().String("format", config.FormatJSON, "Snapshot format: json or yaml")

	return cmd
}

func endpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Fetch one model's endpoints and print the rows for the configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			modelID, _ := cmd.Flags().GetString("model")
			if modelID == "" {
				return fmt.Errorf("--model is required")
			}

			payload, err := newSource(cfg).Endpoints(cmd.Context(), modelID)
			if err != nil {
				return err
			}

			rows := extract.FromPayload(modelID, payload, extract.NewProviderSet(cfg.Providers), nil, time.Now().UTC())
			snapshot.SortVariants(rows)
			for _, r := range rows {
				fmt.Printf("%-12s %-24s %-10s %-8s %12s %12s\n",
					r.ProviderName, r.Tag, r.Quantization, r.Status, r.PromptCostPer1M, r.CompletionCostPer1M)
			}

			if best := snapshot.SelectBest(rows); best != nil {
				fmt.Printf("\nSelected: %s %s\n", best.ProviderName, best.Tag)
			}
			fmt.Printf("Total: %d endpoints\n", len(rows))
			return nil
		},
	}

	cmd.Flags().String("model", "", "Model id, e.g. mistralai/mistral-small")
	cmd.Flags().StringSlice("providers", nil, "Providers to keep (default: mistral, nebius)")
	cmd.Flags().Int("retries", config.DefaultRetries, "Retries per request")
	cmd.Flags().Int("timeout-ms", config.DefaultTimeoutMs, "Per-request timeout in milliseconds")
	cmd.Flags().String("base-url", openrouter.DefaultBaseURL, "OpenRouter API base URL")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate snapshots on disk (CI check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				dir = cfg.OutDir
			}

			paths, err := output.SnapshotPaths(dir)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no snapshots found in %s", dir)
			}

			snaps := make([]*snapshot.ProviderSnapshot, 0, len(paths))
			for _, path := range paths {
				s, err := output.ReadSnapshot(path)
				if err != nil {
					return err
				}
				snaps = append(snaps, s)
			}

			result := validate.ValidateSnapshots(snaps)
			fmt.Println(validate.FormatResult(result))

			if result.HasErrors() {
				os.Exit(pipeline.ExitInvalid)
			}
			return nil
		},
	}

	cmd.Flags().String("dir", "", "Snapshot directory (default: out_dir from config)")

	return cmd
}

// addRunFlags registers the flags shared by every command that harvests.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("providers", nil, "Providers to harvest (default: mistral, nebius)")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency, "Parallel endpoint requests")
	cmd.Flags().Int("retries", config.DefaultRetries, "Retries per request")
	cmd.Flags().Int("timeout-ms", config.DefaultTimeoutMs, "Per-request timeout in milliseconds")
	cmd.Flags().Int("limit", 0, "Harvest only the first N catalog models (0 = all)")
	cmd.Flags().Bool("dry-run", false, "Harvest a small sample of models")
	cmd.Flags().Float64("rate-limit", 0, "Maximum requests per second (0 = unlimited)")
	cmd.Flags().String("base-url", openrouter.DefaultBaseURL, "OpenRouter API base URL")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func newSource(cfg *config.Config) *openrouter.Client {
	client := httpclient.New(
		httpclient.WithTimeout(cfg.Timeout()),
		httpclient.WithMaxRetries(cfg.Retries),
		httpclient.WithRateLimit(cfg.RateLimit),
		httpclient.WithUserAgent(cfg.UserAgent),
	)
	return openrouter.New(cfg.BaseURL, client)
}
