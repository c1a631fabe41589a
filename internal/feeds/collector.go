// Package feeds provides the threat feed adapters that produce raw records for
// the pipeline.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
)

// Feed names.
const (
	FeedCISAAIS = "CISA_AIS"
	FeedFSISAC  = "FS_ISAC"
	FeedOSINT   = "OSINT"
	FeedOTX     = "OTX"
	FeedMISP    = "MISP"
)

// ErrNoCollectors is returned when a registry has nothing to collect from.
var ErrNoCollectors = errors.New("no feed collectors configured")

// Collector pulls raw threat records from one feed.
type Collector interface {
	// Name returns the feed identifier, used as the record source.
	Name() string

	// Collect returns records published since the given time.
	Collect(ctx context.Context, since time.Time) ([]intel.RawThreatRecord, error)

	// HealthCheck verifies the feed is reachable.
	HealthCheck(ctx context.Context) error
}

// Registry runs a fixed, ordered set of collectors.
type Registry struct {
	collectors []Collector
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewRegistry creates a registry. Collection results are merged in the order
// the collectors are given.
func NewRegistry(logger *zap.Logger, metrics *observability.Metrics, collectors ...Collector) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		collectors: collectors,
		logger:     logger,
		metrics:    metrics,
	}
}

// Names returns the collector names in merge order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.collectors))
	for _, c := range r.collectors {
		names = append(names, c.Name())
	}
	return names
}

// CollectAll runs every collector concurrently and concatenates their records
// in registry order. A failing feed is logged and skipped; an error is
// returned only when every feed failed or the context was cancelled.
func (r *Registry) CollectAll(ctx context.Context, since time.Time) ([]intel.RawThreatRecord, error) {
	if len(r.collectors) == 0 {
		return nil, ErrNoCollectors
	}

	results := make([][]intel.RawThreatRecord, len(r.collectors))
	errs := make([]error, len(r.collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range r.collectors {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			records, err := c.Collect(gctx, since)
			if err != nil {
				errs[i] = err
				return nil
			}
			for j := range records {
				if records[j].Source == "" {
					records[j].Source = c.Name()
				}
			}
			results[i] = records
			r.logger.Debug("Collected feed",
				zap.String("feed", c.Name()),
				zap.Int("records", len(records)),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []intel.RawThreatRecord
	failed := 0
	for i, c := range r.collectors {
		if errs[i] != nil {
			failed++
			r.metrics.IncFeedError(c.Name())
			r.logger.Warn("Failed to collect feed",
				zap.String("feed", c.Name()),
				zap.Error(errs[i]),
			)
			continue
		}
		out = append(out, results[i]...)
	}

	if failed == len(r.collectors) {
		return nil, fmt.Errorf("all %d feeds failed: %w", failed, errors.Join(errs...))
	}
	if out == nil {
		out = []intel.RawThreatRecord{}
	}
	return out, nil
}

// HealthCheck checks every collector and returns the failures keyed by name.
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, c := range r.collectors {
		if err := c.HealthCheck(ctx); err != nil {
			failures[c.Name()] = err
		}
	}
	return failures
}
