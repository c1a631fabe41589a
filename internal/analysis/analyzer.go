// Package analysis scores and classifies indicators and aggregates the
// results.
package analysis

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/classify"
	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
	"github.com/lvonguyen/sectorintel/internal/parallel"
	"github.com/lvonguyen/sectorintel/internal/scoring"
)

// AnalyzerConfig holds configuration for the analyzer
type AnalyzerConfig struct {
	Workers int              `yaml:"workers"`
	Clock   func() time.Time `yaml:"-"`
}

// Analyzer attaches an analysis block to every indicator.
type Analyzer struct {
	config     AnalyzerConfig
	engine     *scoring.Engine
	classifier *classify.Classifier
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAnalyzer creates an analyzer. A nil engine uses the default sector
// patterns.
func NewAnalyzer(cfg AnalyzerConfig, engine *scoring.Engine, logger *zap.Logger, metrics *observability.Metrics) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = scoring.NewEngine(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Analyzer{
		config:     cfg,
		engine:     engine,
		classifier: classify.NewClassifier(),
		logger:     logger,
		metrics:    metrics,
	}
}

// AnalyzeOne returns a copy of ind with its analysis block attached.
func (a *Analyzer) AnalyzeOne(ind intel.Indicator, sector string, now time.Time) intel.Indicator {
	out := ind.Clone()

	b := a.engine.Score(ind, sector, now)
	out.Analysis = &intel.Analysis{
		RiskScore:       b.Total,
		Priority:        scoring.PriorityFor(b.Total),
		Classification:  a.classifier.Classify(ind, sector),
		Recommendations: a.classifier.Recommend(ind, sector),
		SectorRelevance: b.SectorRelevance,
		AnalyzedAt:      intel.FormatTimestamp(now),
	}
	return out
}

// Analyze scores every indicator concurrently and returns them sorted by risk
// score, highest first. Ties keep input order. sector may be empty.
func (a *Analyzer) Analyze(indicators []intel.Indicator, sector string) []intel.Indicator {
	start := time.Now()
	defer a.metrics.ObserveStage("analyze", start)

	now := a.config.Clock()

	out, failed := parallel.Map(indicators, a.config.Workers, func(ind intel.Indicator) (intel.Indicator, error) {
		return a.AnalyzeOne(ind, sector, now), nil
	})
	for _, f := range failed {
		a.metrics.IncRecordFailure("analyze")
		a.logger.Error("Failed to analyze indicator",
			zap.String("id", indicators[f.Index].ID),
			zap.Error(f.Err),
		)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Analysis.RiskScore > out[j].Analysis.RiskScore
	})

	for _, ind := range out {
		a.metrics.ObserveScore(ind.Analysis.Priority, ind.Analysis.RiskScore)
	}

	a.logger.Info("Analyzed indicators",
		zap.Int("count", len(out)),
		zap.String("sector", sector),
	)

	return out
}
