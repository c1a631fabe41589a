// Package dedup collapses indicators that share an identifier.
package dedup

import (
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
)

// Deduplicator keeps the first occurrence of each indicator id.
type Deduplicator struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(logger *zap.Logger, metrics *observability.Metrics) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{logger: logger, metrics: metrics}
}

// Deduplicate returns indicators with one entry per id in first-occurrence
// order, along with the number of records dropped.
func (d *Deduplicator) Deduplicate(indicators []intel.Indicator) ([]intel.Indicator, int) {
	start := time.Now()
	defer d.metrics.ObserveStage("dedup", start)

	if len(indicators) == 0 {
		return []intel.Indicator{}, 0
	}

	seen := make(map[string]struct{}, len(indicators))
	out := make([]intel.Indicator, 0, len(indicators))

	for _, ind := range indicators {
		if _, dup := seen[ind.ID]; dup {
			continue
		}
		seen[ind.ID] = struct{}{}
		out = append(out, ind)
	}

	removed := len(indicators) - len(out)
	d.metrics.AddDuplicates(removed)

	d.logger.Info("Deduplicated indicators",
		zap.Int("input", len(indicators)),
		zap.Int("unique", len(out)),
		zap.Int("removed", removed),
	)

	return out, removed
}
