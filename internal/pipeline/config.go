package pipeline

import (
	"fmt"
	"time"

	"github.com/lvonguyen/sectorintel/internal/analysis"
	"github.com/lvonguyen/sectorintel/internal/config"
	"github.com/lvonguyen/sectorintel/internal/dedup"
	"github.com/lvonguyen/sectorintel/internal/feeds"
	splunk "github.com/lvonguyen/sectorintel/internal/ingestion"
	"github.com/lvonguyen/sectorintel/internal/normalization"
	"github.com/lvonguyen/sectorintel/internal/scoring"
	"github.com/lvonguyen/sectorintel/internal/sector"
)

// FromConfig builds a pipeline from the service configuration. Stages already
// set in opts are kept; the rest are built from cfg. The Splunk sender becomes
// the exporter when enabled.
func FromConfig(cfg *config.Config, opts Options) (*Pipeline, error) {
	clock := time.Now
	workers := cfg.Pipeline.Workers

	if opts.Normalizer == nil {
		opts.Normalizer = normalization.NewNormalizer(normalization.NormalizerConfig{
			Workers: workers,
			Clock:   clock,
		}, opts.Logger, opts.Metrics)
	}

	if opts.Seen == nil {
		opts.Seen = dedup.NewSeenFilter(cfg.Pipeline.SeenCapacity, dedup.DefaultSeenFalseRate, opts.Logger)
	}

	if opts.Analyzer == nil {
		overrides := make(map[string]scoring.SectorPattern, len(cfg.Scoring.SectorPatterns))
		for name, p := range cfg.Scoring.SectorPatterns {
			overrides[name] = scoring.SectorPattern{
				HighRiskTTPs:     p.HighRiskTTPs,
				CriticalKeywords: p.CriticalKeywords,
			}
		}
		opts.Analyzer = analysis.NewAnalyzer(analysis.AnalyzerConfig{
			Workers: workers,
			Clock:   clock,
		}, scoring.NewEngine(overrides), opts.Logger, opts.Metrics)
	}

	if opts.Sectors == nil {
		fin, err := sector.NewFinancialAnalyzer(sector.FinancialConfig{
			InstitutionType: cfg.Sectors.Financial.InstitutionType,
			Frameworks:      cfg.Sectors.Financial.Frameworks,
			Workers:         workers,
		}, opts.Logger, opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("financial services analyzer: %w", err)
		}
		agri, err := sector.NewAgricultureAnalyzer(sector.AgricultureConfig{
			FocusAreas: cfg.Sectors.Agriculture.FocusAreas,
			Workers:    workers,
		}, opts.Logger, opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("agriculture analyzer: %w", err)
		}
		opts.Sectors = sector.NewRegistry(fin, agri)
	}

	if opts.Feeds == nil && len(cfg.EnabledFeeds()) > 0 {
		opts.Feeds = feeds.FromConfig(cfg, clock, opts.Logger, opts.Metrics)
	}

	if opts.Exporter == nil && cfg.Splunk.Sender.Enabled {
		s := cfg.Splunk.Sender
		sender, err := splunk.NewHECSender(splunk.SenderConfig{
			HECURL:     s.HECURL,
			TokenEnv:   s.TokenEnv,
			Index:      s.Index,
			SourceType: s.SourceType,
			Source:     s.Source,
			Timeout:    s.Timeout,
			RetryCount: s.RetryCount,
		}, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("splunk sender: %w", err)
		}
		opts.Exporter = sender
	}

	return New(Config{
		TargetSector: cfg.Pipeline.TargetSector,
		Lookback:     cfg.Feeds.Lookback,
		Clock:        clock,
	}, opts)
}
