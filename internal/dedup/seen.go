package dedup

import (
	"sync"

	"github.com/willf/bloom"
	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// Defaults for SeenFilter sizing.
const (
	DefaultSeenCapacity  = 100000
	DefaultSeenFalseRate = 0.01
)

// SeenFilter remembers indicator ids across runs in fixed memory. A false
// positive makes a new indicator count as already seen; it never removes one
// from a run. The filter starts over once it has taken capacity ids.
type SeenFilter struct {
	mu       sync.Mutex
	filter   *bloom.BloomFilter
	capacity uint
	added    uint
	logger   *zap.Logger
}

// NewSeenFilter creates a filter sized for capacity ids at falseRate.
// Non-positive arguments take the defaults.
func NewSeenFilter(capacity int, falseRate float64, logger *zap.Logger) *SeenFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	if falseRate <= 0 || falseRate >= 1 {
		falseRate = DefaultSeenFalseRate
	}
	return &SeenFilter{
		filter:   bloom.NewWithEstimates(uint(capacity), falseRate),
		capacity: uint(capacity),
		logger:   logger,
	}
}

// Observe records the ids of indicators and returns how many had not been
// observed before.
func (s *SeenFilter) Observe(indicators []intel.Indicator) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := 0
	for _, ind := range indicators {
		if s.added >= s.capacity {
			s.filter.ClearAll()
			s.added = 0
			s.logger.Info("Seen filter full, starting over", zap.Uint("capacity", s.capacity))
		}
		if s.filter.TestAndAddString(ind.ID) {
			continue
		}
		s.added++
		fresh++
	}
	return fresh
}
