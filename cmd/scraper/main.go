package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/aluiziolira/go-scrape-editions/config"
	"github.com/aluiziolira/go-scrape-editions/exchange"
	"github.com/aluiziolira/go-scrape-editions/pipeline"
	"github.com/aluiziolira/go-scrape-editions/scraper"
)

func main() {
	defaults := config.DefaultConfig()

	app := &cli.App{
		Name:  "scraper",
		Usage: "Print the current price of each game edition in a target currency",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file", EnvVars: []string{"SCRAPER_CONFIG"}},
			&cli.StringFlag{Name: "url", Value: defaults.TargetURL, Usage: "Product page to scrape", EnvVars: []string{"SCRAPER_URL"}},
			&cli.StringFlag{Name: "user-agent", Value: defaults.UserAgent, Usage: "User-Agent header", EnvVars: []string{"SCRAPER_USER_AGENT"}},
			&cli.DurationFlag{Name: "timeout", Value: defaults.Timeout, Usage: "Per-request timeout", EnvVars: []string{"SCRAPER_TIMEOUT"}},
			&cli.StringFlag{Name: "rates-url", Value: defaults.RatesBaseURL, Usage: "Exchange rate API base URL", EnvVars: []string{"EXCHANGE_RATE_URL"}},
			&cli.StringFlag{Name: "api-key", Usage: "Exchange rate API key", EnvVars: []string{"EXCHANGE_RATE_API_KEY"}},
			&cli.StringFlag{Name: "from", Value: defaults.SourceCurrency, Usage: "Currency of the scraped prices", EnvVars: []string{"SCRAPER_FROM"}},
			&cli.StringFlag{Name: "to", Value: defaults.TargetCurrency, Usage: "Currency to report in", EnvVars: []string{"SCRAPER_TO"}},
			&cli.StringFlag{Name: "symbol", Value: defaults.CurrencySymbol, Usage: "Symbol printed before converted prices", EnvVars: []string{"SCRAPER_SYMBOL"}},
			&cli.StringFlag{Name: "product", Value: defaults.Product, Usage: "Product name shown in the report header", EnvVars: []string{"SCRAPER_PRODUCT"}},
			&cli.StringFlag{Name: "format", Value: defaults.OutputFormat, Usage: "Report format: text or table", EnvVars: []string{"SCRAPER_FORMAT"}},
			&cli.StringFlag{Name: "export", Usage: "Also export listings to this file", EnvVars: []string{"SCRAPER_EXPORT"}},
			&cli.StringFlag{Name: "export-format", Usage: "Export format: csv, json, or dual", EnvVars: []string{"SCRAPER_EXPORT_FORMAT"}},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Prometheus metrics listen address (e.g. :9090)", EnvVars: []string{"SCRAPER_METRICS_ADDR"}},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Enable verbose logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("scrape failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	metrics := scraper.NewMetrics()
	s, err := scraper.NewScraper(cfg, metrics)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}
	converter := exchange.NewConverter(
		exchange.NewClient(cfg, metrics),
		cfg.SourceCurrency, cfg.TargetCurrency, cfg.CurrencySymbol,
	)

	writer, err := createWriter(cfg)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	slog.Debug("starting scrape",
		slog.String("url", cfg.TargetURL),
		slog.String("from", cfg.SourceCurrency),
		slog.String("to", cfg.TargetCurrency),
	)

	report, err := pipeline.NewRunner(cfg, s, converter, writer, metrics).Run(ctx)
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) && stageErr.Stage == pipeline.StageFetch {
			slog.Error("fetch failed", slog.String("category", scraper.ErrorTypeLabel(stageErr.Err)))
		}
		return err
	}

	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	slog.Debug("scrape complete",
		slog.Int("editions", len(report.Listings)),
		slog.String("rate", report.Rate.String()),
		slog.Duration("duration", report.EndTime.Sub(report.StartTime)),
	)
	return nil
}

// buildConfig layers defaults, the optional YAML file, then any flag or
// environment variable that was explicitly set.
func buildConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setString("url", &cfg.TargetURL)
	setString("user-agent", &cfg.UserAgent)
	setString("rates-url", &cfg.RatesBaseURL)
	setString("api-key", &cfg.APIKey)
	setString("from", &cfg.SourceCurrency)
	setString("to", &cfg.TargetCurrency)
	setString("symbol", &cfg.CurrencySymbol)
	setString("product", &cfg.Product)
	setString("format", &cfg.OutputFormat)
	setString("export", &cfg.ExportFile)
	setString("export-format", &cfg.ExportFormat)
	setString("metrics-addr", &cfg.MetricsAddr)
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}

	cfg.SourceCurrency = strings.ToUpper(cfg.SourceCurrency)
	cfg.TargetCurrency = strings.ToUpper(cfg.TargetCurrency)
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	cfg.ExportFormat = strings.ToLower(cfg.ExportFormat)
	if cfg.ExportFile != "" && cfg.ExportFormat == "" {
		cfg.ExportFormat = formatFromExtension(cfg.ExportFile)
	}
	return cfg, nil
}

func createWriter(cfg *config.Config) (pipeline.OutputWriter, error) {
	var console pipeline.OutputWriter = pipeline.NewTextWriter(os.Stdout)
	if cfg.OutputFormat == "table" {
		console = pipeline.NewTableWriter(os.Stdout)
	}

	var export pipeline.OutputWriter
	var err error
	switch cfg.ExportFormat {
	case "":
		return console, nil
	case "json":
		export, err = pipeline.NewJSONWriter(cfg.ExportFile)
	case "csv":
		export, err = pipeline.NewCSVWriter(cfg.ExportFile)
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.ExportFile, ".csv") + ".json"
		export, err = pipeline.NewDualWriter(cfg.ExportFile, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", cfg.ExportFormat)
	}
	if err != nil {
		return nil, err
	}
	return pipeline.NewMultiWriter(console, export), nil
}

func formatFromExtension(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".json"), strings.HasSuffix(filename, ".jsonl"):
		return "json"
	default:
		return "csv"
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	// stdout carries the report.
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
