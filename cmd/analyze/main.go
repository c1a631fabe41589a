// Package main provides a one-shot command that runs the threat pipeline over
// the configured feeds or a file of raw records and prints the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/config"
	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
	"github.com/lvonguyen/sectorintel/internal/pipeline"
	"github.com/lvonguyen/sectorintel/internal/report"
	"github.com/lvonguyen/sectorintel/internal/store"
)

// Version information (injected at build time via ldflags)
var Version = "dev"

// Views printed to stdout.
const (
	viewSummary    = "summary"
	viewIndicators = "indicators"
	viewIoT        = "iot"
	viewCompliance = "compliance"
	viewAttack     = "attack"
	viewTactics    = "tactics"
)

type options struct {
	configPath string
	input      string
	sector     string
	view       string
	out        string
	pdf        string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file (defaults when empty)")
	flag.StringVar(&opts.input, "input", "", "JSON array of raw threat records, - for stdin; collects from feeds when empty")
	flag.StringVar(&opts.sector, "sector", "", "Target sector for relevance scoring")
	flag.StringVar(&opts.view, "view", viewSummary, "Output: summary, indicators, financial_services, agriculture, iot, compliance, attack, tactics")
	flag.StringVar(&opts.out, "out", "", "Write the analyzed indicators as JSON to this file")
	flag.StringVar(&opts.pdf, "pdf", "", "Write the compliance report as PDF to this file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return err
	}
	if opts.sector != "" {
		cfg.Pipeline.TargetSector = opts.sector
	}
	cfg.Telemetry.MetricsEnabled = false

	tel, err := observability.New(observability.FromConfig(cfg, Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())
	logger := tel.Logger()

	st, err := store.Open(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := pipeline.FromConfig(cfg, pipeline.Options{
		Store:  st,
		Tracer: tel.Tracer(),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var result pipeline.Result
	if opts.input == "" {
		result, err = p.Collect(ctx)
	} else {
		var raws []intel.RawThreatRecord
		if raws, err = readRecords(opts.input); err != nil {
			return err
		}
		result, err = p.Run(ctx, raws)
	}
	if err != nil {
		return err
	}
	logger.Info("Analysis complete",
		zap.String("run_id", result.RunID),
		zap.Int("indicators", result.Indicators),
	)

	if opts.out != "" {
		inds, err := p.Indicators(ctx, result.RunID, "")
		if err != nil {
			return err
		}
		if err := report.SaveJSON(opts.out, inds); err != nil {
			return err
		}
	}

	if opts.pdf != "" {
		rep, err := p.ComplianceReport(ctx, result.RunID)
		if err != nil {
			return err
		}
		if err := report.SaveCompliancePDF(opts.pdf, rep); err != nil {
			return err
		}
	}

	view, err := render(ctx, p, result, opts.view)
	if err != nil {
		return err
	}
	return report.WriteJSON(stdout, view)
}

// render builds the requested view of a completed run.
func render(ctx context.Context, p *pipeline.Pipeline, result pipeline.Result, view string) (any, error) {
	switch view {
	case "", viewSummary:
		return result, nil
	case viewIndicators:
		return p.Indicators(ctx, result.RunID, "")
	case viewIoT:
		return p.IoT(ctx, result.RunID)
	case viewCompliance:
		return p.ComplianceReport(ctx, result.RunID)
	case viewAttack:
		return p.Coverage(ctx, result.RunID)
	case viewTactics:
		return p.TacticCoverage(ctx, result.RunID)
	default:
		return p.Sector(ctx, result.RunID, view)
	}
}

func readRecords(path string) ([]intel.RawThreatRecord, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var raws []intel.RawThreatRecord
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return raws, nil
}
