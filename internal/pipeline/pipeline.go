// Package pipeline runs raw threat records through normalization,
// deduplication and analysis, persists each run, and serves the sector views
// over stored runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/analysis"
	"github.com/lvonguyen/sectorintel/internal/compliance"
	"github.com/lvonguyen/sectorintel/internal/dedup"
	"github.com/lvonguyen/sectorintel/internal/feeds"
	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/mitre"
	"github.com/lvonguyen/sectorintel/internal/normalization"
	"github.com/lvonguyen/sectorintel/internal/observability"
	"github.com/lvonguyen/sectorintel/internal/sector"
	"github.com/lvonguyen/sectorintel/internal/store"
)

// ErrNoFeeds is returned by Collect when no feed registry is configured.
var ErrNoFeeds = errors.New("no feeds configured")

// Exporter ships analyzed indicators to an external system.
type Exporter interface {
	SendBatch(ctx context.Context, indicators []intel.Indicator) error
}

// Config holds pipeline settings. TargetSector biases sector relevance during
// scoring and may be empty. Lookback bounds how far back Collect asks the
// feeds for records.
type Config struct {
	TargetSector string
	Lookback     time.Duration
	Clock        func() time.Time
}

// Options carries the pipeline stages. Nil stages get defaults.
type Options struct {
	Normalizer   *normalization.Normalizer
	Deduplicator *dedup.Deduplicator
	Seen         *dedup.SeenFilter
	Analyzer     *analysis.Analyzer
	Sectors      *sector.Registry
	Feeds        *feeds.Registry
	Store        store.Store
	Exporter     Exporter
	Catalog      *mitre.Catalog
	Tracer       trace.Tracer
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// Result describes one completed run.
type Result struct {
	RunID             string           `json:"run_id"`
	RecordsIn         int              `json:"records_in"`
	DuplicatesRemoved int              `json:"duplicates_removed"`
	Indicators        int              `json:"indicators"`
	NewIndicators     int              `json:"new_indicators"`
	Summary           analysis.Summary `json:"summary"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	config     Config
	normalizer *normalization.Normalizer
	dedup      *dedup.Deduplicator
	seen       *dedup.SeenFilter
	analyzer   *analysis.Analyzer
	sectors    *sector.Registry
	feeds      *feeds.Registry
	store      store.Store
	exporter   Exporter
	catalog    *mitre.Catalog
	tracer     trace.Tracer
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// New creates a pipeline.
func New(cfg Config, opts Options) (*Pipeline, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	p := &Pipeline{
		config:     cfg,
		normalizer: opts.Normalizer,
		dedup:      opts.Deduplicator,
		seen:       opts.Seen,
		analyzer:   opts.Analyzer,
		sectors:    opts.Sectors,
		feeds:      opts.Feeds,
		store:      opts.Store,
		exporter:   opts.Exporter,
		catalog:    opts.Catalog,
		tracer:     opts.Tracer,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}

	if p.normalizer == nil {
		p.normalizer = normalization.NewNormalizer(normalization.NormalizerConfig{Clock: cfg.Clock}, p.logger, p.metrics)
	}
	if p.dedup == nil {
		p.dedup = dedup.NewDeduplicator(p.logger, p.metrics)
	}
	if p.seen == nil {
		p.seen = dedup.NewSeenFilter(0, 0, p.logger)
	}
	if p.analyzer == nil {
		p.analyzer = analysis.NewAnalyzer(analysis.AnalyzerConfig{Clock: cfg.Clock}, nil, p.logger, p.metrics)
	}
	if p.sectors == nil {
		reg, err := DefaultSectors(p.logger, p.metrics)
		if err != nil {
			return nil, err
		}
		p.sectors = reg
	}
	if cfg.TargetSector != "" {
		if _, err := p.sectors.Get(cfg.TargetSector); err != nil {
			return nil, err
		}
	}
	if p.store == nil {
		p.store = store.NewMemoryStore()
	}
	if p.catalog == nil {
		p.catalog = mitre.NewCatalog()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("sectorintel/pipeline")
	}
	return p, nil
}

// DefaultSectors builds the financial-services and agriculture analyzers with
// their default settings.
func DefaultSectors(logger *zap.Logger, metrics *observability.Metrics) (*sector.Registry, error) {
	fin, err := sector.NewFinancialAnalyzer(sector.DefaultFinancialConfig(), logger, metrics)
	if err != nil {
		return nil, err
	}
	agri, err := sector.NewAgricultureAnalyzer(sector.DefaultAgricultureConfig(), logger, metrics)
	if err != nil {
		return nil, err
	}
	return sector.NewRegistry(fin, agri), nil
}

// Store returns the run store.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// Feeds returns the feed registry, nil when none is configured.
func (p *Pipeline) Feeds() *feeds.Registry {
	return p.feeds
}

// Run normalizes, deduplicates and scores raws, then saves the result as a
// new run that also becomes the latest.
func (p *Pipeline) Run(ctx context.Context, raws []intel.RawThreatRecord) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("records_in", len(raws))),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	_, stage := p.tracer.Start(ctx, "pipeline.normalize")
	normalized := p.normalizer.NormalizeAll(raws)
	stage.End()

	_, stage = p.tracer.Start(ctx, "pipeline.dedup")
	unique, removed := p.dedup.Deduplicate(normalized)
	fresh := p.seen.Observe(unique)
	p.metrics.AddNew(fresh)
	stage.SetAttributes(
		attribute.Int("duplicates_removed", removed),
		attribute.Int("new_indicators", fresh),
	)
	stage.End()

	_, stage = p.tracer.Start(ctx, "pipeline.analyze")
	analyzed := p.analyzer.Analyze(unique, p.config.TargetSector)
	stage.End()

	now := p.config.Clock()
	run := store.Run{
		ID:                uuid.NewString(),
		CreatedAt:         now.UTC(),
		TargetSector:      p.config.TargetSector,
		RecordsIn:         len(raws),
		DuplicatesRemoved: removed,
		Indicators:        analyzed,
	}

	saveStart := time.Now()
	if err := p.store.SaveRun(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return Result{}, fmt.Errorf("failed to save run: %w", err)
	}
	p.metrics.ObserveStage("save", saveStart)

	if p.exporter != nil && len(analyzed) > 0 {
		if err := p.exporter.SendBatch(ctx, analyzed); err != nil {
			span.RecordError(err)
			p.logger.Warn("Failed to export run",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}

	result := Result{
		RunID:             run.ID,
		RecordsIn:         run.RecordsIn,
		DuplicatesRemoved: removed,
		Indicators:        len(analyzed),
		NewIndicators:     fresh,
		Summary:           analysis.Summarize(analyzed, now),
	}
	span.SetAttributes(
		attribute.String("run_id", run.ID),
		attribute.Int("indicators", result.Indicators),
	)

	p.logger.Info("Pipeline run complete",
		zap.String("run_id", run.ID),
		zap.Int("records_in", result.RecordsIn),
		zap.Int("duplicates_removed", removed),
		zap.Int("indicators", result.Indicators),
		zap.Int("new", fresh),
		zap.Int("critical", result.Summary.CriticalThreats),
	)
	return result, nil
}

// Collect pulls records from every configured feed, then runs them.
func (p *Pipeline) Collect(ctx context.Context) (Result, error) {
	if p.feeds == nil {
		return Result{}, ErrNoFeeds
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.collect")
	defer span.End()

	start := time.Now()
	since := p.config.Clock().Add(-p.config.Lookback)
	raws, err := p.feeds.CollectAll(ctx, since)
	p.metrics.ObserveStage("collect", start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collect failed")
		return Result{}, fmt.Errorf("failed to collect feeds: %w", err)
	}

	p.logger.Info("Collected threat records",
		zap.Int("records", len(raws)),
		zap.Strings("feeds", p.feeds.Names()),
	)
	return p.Run(ctx, raws)
}

// Indicators returns the scored indicators of a run, optionally restricted to
// one priority tier.
func (p *Pipeline) Indicators(ctx context.Context, runID, priority string) ([]intel.Indicator, error) {
	run, err := p.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if priority == "" {
		return run.Indicators, nil
	}
	return analysis.ByPriority(run.Indicators, priority), nil
}

// Summary aggregates a stored run.
func (p *Pipeline) Summary(ctx context.Context, runID string) (analysis.Summary, error) {
	run, err := p.store.LoadRun(ctx, runID)
	if err != nil {
		return analysis.Summary{}, err
	}
	return analysis.Summarize(run.Indicators, p.config.Clock()), nil
}

// Sector runs a sector analyzer over a stored run.
func (p *Pipeline) Sector(ctx context.Context, runID, sectorName string) ([]intel.Indicator, error) {
	analyzer, err := p.sectors.Get(sectorName)
	if err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.sector",
		trace.WithAttributes(attribute.String("sector", sectorName)),
	)
	defer span.End()

	run, err := p.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	out, err := analyzer.Analyze(ctx, run.Indicators)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sector analysis failed")
		return nil, err
	}
	return out, nil
}

// IoT returns the agriculture view of a run restricted to IoT-relevant threats.
func (p *Pipeline) IoT(ctx context.Context, runID string) ([]intel.Indicator, error) {
	agri, err := p.Sector(ctx, runID, intel.SectorAgriculture)
	if err != nil {
		return nil, err
	}
	return sector.FilterIoT(agri), nil
}

// ComplianceReport builds the compliance report from the financial-services
// view of a run.
func (p *Pipeline) ComplianceReport(ctx context.Context, runID string) (compliance.Report, error) {
	fin, err := p.Sector(ctx, runID, intel.SectorFinancialServices)
	if err != nil {
		return compliance.Report{}, err
	}
	return compliance.BuildReport(fin, p.config.Clock()), nil
}

// Coverage maps the techniques seen in a run onto ATT&CK.
func (p *Pipeline) Coverage(ctx context.Context, runID string) ([]mitre.Coverage, error) {
	run, err := p.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	lists := make([][]string, 0, len(run.Indicators))
	for _, ind := range run.Indicators {
		lists = append(lists, ind.Properties.TTPs)
	}
	return p.catalog.Coverage(lists), nil
}

// TacticCoverage groups the coverage of a run under the ATT&CK tactics.
func (p *Pipeline) TacticCoverage(ctx context.Context, runID string) ([]mitre.TacticCoverage, error) {
	coverage, err := p.Coverage(ctx, runID)
	if err != nil {
		return nil, err
	}
	return p.catalog.ByTactic(coverage), nil
}
