package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"goprofile/app"
	"goprofile/domain/profiling"
	"goprofile/internal"
	"goprofile/internal/config"
	"goprofile/internal/container"
	"goprofile/internal/testkit"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "goprofile",
		Short:         "Single-pass statistical profiling of tabular data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newGenerateCmd(),
	)
	return rootCmd
}

type analyzeFlags struct {
	maxRows       int64
	seed          int64
	reservoir     int
	columnWorkers int
	fileWorkers   int
	sheet         string
	output        string
	summary       bool
	logLevel      string
}

func newAnalyzeCmd() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze [files...]",
		Short: "Profile CSV, TSV, XLSX, JSON Lines files or JSON API URLs",
		Long: `Profile one or more tables in a single pass each.

Every column gets moments, streaming quantiles, a retained sample and a
detected type; numeric columns also get PCA and Mahalanobis outlier
screening. Files are analyzed concurrently and reported in argument order.

Settings come from GOPROFILE_* environment variables and can be overridden
with flags.

Example: goprofile analyze orders.csv events.jsonl --max-rows 100000 --seed 42`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, flags)
		},
	}

	cmd.Flags().Int64Var(&flags.maxRows, "max-rows", 0, "Stop after this many rows (0 reads everything)")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "Random seed for the row reservoir (0 is non-deterministic)")
	cmd.Flags().IntVar(&flags.reservoir, "reservoir", 0, "Rows retained for classification and multivariate analysis")
	cmd.Flags().IntVar(&flags.columnWorkers, "column-workers", 0, "Workers splitting the columns of each file")
	cmd.Flags().IntVar(&flags.fileWorkers, "file-workers", 0, "Files analyzed at the same time")
	cmd.Flags().StringVar(&flags.sheet, "sheet", "", "Worksheet to read from XLSX files (first sheet by default)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write the JSON report to this file instead of stdout")
	cmd.Flags().BoolVar(&flags.summary, "summary", false, "Print a per-column table instead of JSON")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE")
	return cmd
}

// analysisConfig applies the flags that were set on top of the environment
func analysisConfig(cmd *cobra.Command, flags analyzeFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	changed := cmd.Flags().Changed
	if changed("max-rows") {
		cfg.Analysis.MaxRows = flags.maxRows
	}
	if changed("seed") {
		cfg.Analysis.Seed = flags.seed
	}
	if changed("reservoir") {
		cfg.Analysis.ReservoirSize = flags.reservoir
	}
	if changed("column-workers") {
		cfg.Analysis.ColumnWorkers = flags.columnWorkers
	}
	if changed("file-workers") {
		cfg.Analysis.FileWorkers = flags.fileWorkers
	}
	if changed("log-level") {
		cfg.Log.Level = strings.ToUpper(flags.logLevel)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAnalyze(cmd *cobra.Command, paths []string, flags analyzeFlags) error {
	cfg, err := analysisConfig(cmd, flags)
	if err != nil {
		return err
	}
	logger := internal.NewLoggerTo(cmd.ErrOrStderr(), internal.ParseLogLevel(cfg.Log.Level))

	c, err := container.New(cfg, container.WithLogger(logger))
	if err != nil {
		return err
	}
	if flags.sheet != "" {
		c.SourceOptions.Sheet = flags.sheet
	}

	results, err := c.Analysis.AnalyzeFiles(cmd.Context(), paths)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if flags.summary {
		writeSummary(out, results)
	} else {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.Path, r.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func writeSummary(w io.Writer, results []app.FileResult) {
	for _, r := range results {
		if r.Result == nil {
			fmt.Fprintf(w, "%s: %s (%s)\n\n", r.Path, r.Error, r.Code)
			continue
		}
		res := r.Result
		observed := "unknown"
		if res.ObservedFraction != nil {
			observed = fmt.Sprintf("%.3f", *res.ObservedFraction)
		}
		fmt.Fprintf(w, "%s: %d rows read, %d retained, observed fraction %s\n",
			r.Path, res.RowsRead, res.RowsRetained, observed)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLUMN\tTYPE\tSEMANTIC\tCOUNT\tNULLS\tMEAN\tSTD\tMEDIAN")
		for _, col := range res.Columns {
			median := "-"
			if q, ok := col.Quantile(0.5); ok && q.Count > 0 {
				median = fmt.Sprintf("%.4g", q.EstimatedValue)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.4g\t%.4g\t%s\n",
				col.Name, col.Type.DataType, col.Type.SemanticType, col.Summary.Count, col.NullCount,
				col.Summary.Mean, col.Summary.StdDev, median)
		}
		tw.Flush()

		if res.PCA != nil && res.PCA.IsApplicable {
			if k, ok := res.PCA.ComponentsFor(0.9); ok {
				fmt.Fprintf(w, "PCA: %d of %d components reach 90%% of variance\n", k, len(res.PCA.Components))
			}
		}
		if res.Outliers != nil && res.Outliers.IsApplicable {
			dist := res.Outliers.SeverityDistribution
			fmt.Fprintf(w, "Outliers: %d mild, %d moderate, %d extreme of %d sampled rows\n",
				dist[profiling.SeverityMild], dist[profiling.SeverityModerate], dist[profiling.SeverityExtreme], res.Outliers.SampleSize)
		}
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
		fmt.Fprintln(w)
	}
}

func newGenerateCmd() *cobra.Command {
	var size string
	var rows int
	var seed int64

	cmd := &cobra.Command{
		Use:   "generate [path]",
		Short: "Write a synthetic retail transactions dataset",
		Long: `Write a synthetic retail transactions dataset for benchmarking.

The format follows the extension: .csv or .xlsx. Sizes: small (10k rows),
medium (100k), large (1M), xlarge (5M).

Example: goprofile generate transactions.csv --size large --seed 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := testkit.DefaultTransactionConfig()
			if preset, ok := testkit.Presets[size]; ok {
				cfg.Rows = preset
			} else {
				return fmt.Errorf("unknown size %q (use small, medium, large or xlarge)", size)
			}
			if cmd.Flags().Changed("rows") {
				cfg.Rows = rows
			}
			cfg.Seed = seed
			return runGenerate(cmd, args[0], cfg)
		},
	}

	cmd.Flags().StringVar(&size, "size", "medium", "Dataset size preset")
	cmd.Flags().IntVar(&rows, "rows", 0, "Exact row count, overrides --size")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic output")
	return cmd
}

func runGenerate(cmd *cobra.Command, path string, cfg testkit.TransactionGeneratorConfig) error {
	if cfg.Rows <= 0 {
		return fmt.Errorf("row count must be positive, got %d", cfg.Rows)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".xlsx" {
		return fmt.Errorf("unsupported output format %q (use .csv or .xlsx)", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	logger := internal.NewLoggerTo(cmd.ErrOrStderr(), internal.LogLevelInfo)
	gen := testkit.NewTransactionGenerator(cfg)
	var written int
	if ext == ".xlsx" {
		written, err = gen.WriteXLSX(cmd.Context(), f)
	} else {
		written, err = gen.WriteCSV(cmd.Context(), f, logger)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", written, path)
	return nil
}
