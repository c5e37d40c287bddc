// Command audit checks every catalog image of the SKUs listed in a CSV file
// against minimum dimension and DPI thresholds, and writes an image report
// plus a per-SKU summary next to it.
//
// Usage:
//
//	audit [flags] [input.csv] [output.csv]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/anime-shed/sku-image-audit/internal/config"
	"github.com/anime-shed/sku-image-audit/internal/container"
	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/logger"
)

const (
	defaultInput  = "samples/input-skus.csv"
	defaultOutput = "output/output-report.csv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("audit", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: audit [flags] [input.csv (default %s)] [output.csv (default %s)]\n", defaultInput, defaultOutput)
		flags.PrintDefaults()
	}

	configPath := flags.String("config", os.Getenv("CONFIG_FILE"), "YAML configuration file")
	concurrency := flags.Int("concurrency", 0, "maximum images processed at once (overrides config)")
	minWidth := flags.Int("min-width", 0, "minimum image width in pixels (overrides config)")
	minHeight := flags.Int("min-height", 0, "minimum image height in pixels (overrides config)")
	minDpi := flags.Float64("min-dpi", 0, "minimum image density in DPI (overrides config)")
	failIfDpiMissing := flags.Bool("fail-if-dpi-missing", false, "flag images without density information")
	verbose := flags.Bool("v", false, "debug logging")

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() > 2 {
		flags.Usage()
		return 2
	}

	inputPath, outputPath := defaultInput, defaultOutput
	if flags.NArg() > 0 {
		inputPath = flags.Arg(0)
	}
	if flags.NArg() > 1 {
		outputPath = flags.Arg(1)
	}

	// stdout carries only the tally
	logger.SetOutput(stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fail(stderr, err)
	}

	// Only flags given on the command line override the configuration
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "concurrency":
			cfg.Concurrency.MaxConcurrency = *concurrency
		case "min-width":
			cfg.Validation.MinWidthPx = *minWidth
		case "min-height":
			cfg.Validation.MinHeightPx = *minHeight
		case "min-dpi":
			cfg.Validation.MinDpi = *minDpi
		case "fail-if-dpi-missing":
			cfg.Validation.FailIfDpiMissing = *failIfDpiMissing
		}
	})
	if err := cfg.Validate(); err != nil {
		return fail(stderr, err)
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	logger.Configure(level, cfg.LogFormat)

	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	defer c.Close()

	result, err := c.Service().AuditFile(ctx, inputPath, outputPath)
	if err != nil {
		return fail(stderr, err)
	}

	fmt.Fprintf(stdout, "OK: %d images\n", result.Report.Tally.OK)
	fmt.Fprintf(stdout, "FLAGGED: %d images\n", result.Report.Tally.Flagged)
	fmt.Fprintf(stdout, "Report: %s\n", result.ReportPath)
	fmt.Fprintf(stdout, "Summary: %s\n", result.SummaryPath)
	return 0
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %s\n", apperrors.Describe(err))
	return 1
}
