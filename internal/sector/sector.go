// Package sector attaches sector-specific business, compliance and operational
// context to scored indicators.
package sector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

var (
	// ErrNotScored is returned when a relevant indicator has no analysis block.
	ErrNotScored = errors.New("indicator has not been scored")
	// ErrUnknownSector is returned for a sector without an analyzer.
	ErrUnknownSector = errors.New("unknown sector")
	// ErrUnknownInstitution is returned for an unsupported institution type.
	ErrUnknownInstitution = errors.New("unknown institution type")
	// ErrUnknownFocusArea is returned for an unsupported agriculture focus area.
	ErrUnknownFocusArea = errors.New("unknown focus area")
)

// Analyzer filters scored indicators to one sector and attaches that
// sector's block. The returned indicators are copies; inputs are not
// modified.
type Analyzer interface {
	Sector() string
	Analyze(ctx context.Context, indicators []intel.Indicator) ([]intel.Indicator, error)
}

// Registry resolves analyzers by sector name.
type Registry struct {
	analyzers map[string]Analyzer
}

// NewRegistry creates a registry holding analyzers.
func NewRegistry(analyzers ...Analyzer) *Registry {
	r := &Registry{analyzers: make(map[string]Analyzer, len(analyzers))}
	for _, a := range analyzers {
		r.analyzers[a.Sector()] = a
	}
	return r
}

// Get returns the analyzer for sector.
func (r *Registry) Get(sector string) (Analyzer, error) {
	a, ok := r.analyzers[sector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSector, sector)
	}
	return a, nil
}

// Sectors lists registered sectors in sorted order.
func (r *Registry) Sectors() []string {
	out := make([]string, 0, len(r.analyzers))
	for s := range r.analyzers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// relevant returns the indicators tagged with sector, failing if any of them
// lacks an analysis block.
func relevant(indicators []intel.Indicator, sector string) ([]intel.Indicator, error) {
	out := make([]intel.Indicator, 0)
	for i := range indicators {
		if !indicators[i].HasSector(sector) {
			continue
		}
		if indicators[i].Analysis == nil {
			return nil, fmt.Errorf("%s analysis of %s: %w", sector, indicators[i].ID, ErrNotScored)
		}
		out = append(out, indicators[i])
	}
	return out, nil
}
