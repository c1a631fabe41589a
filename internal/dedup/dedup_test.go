package dedup

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/normalization"
)

func ind(id, name string) intel.Indicator {
	return intel.Indicator{ID: id, Name: name}
}

func ids(in []intel.Indicator) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = v.ID
	}
	return out
}

// TestDeduplicate covers first-occurrence wins and the removed count.
func TestDeduplicate(t *testing.T) {
	tests := []struct {
		name        string
		input       []intel.Indicator
		wantIDs     []string
		wantRemoved int
	}{
		{
			name:        "empty",
			input:       nil,
			wantIDs:     []string{},
			wantRemoved: 0,
		},
		{
			name:        "no duplicates",
			input:       []intel.Indicator{ind("a", "1"), ind("b", "2"), ind("c", "3")},
			wantIDs:     []string{"a", "b", "c"},
			wantRemoved: 0,
		},
		{
			name:        "later duplicates dropped",
			input:       []intel.Indicator{ind("a", "1"), ind("b", "2"), ind("a", "3"), ind("b", "4"), ind("a", "5")},
			wantIDs:     []string{"a", "b"},
			wantRemoved: 3,
		},
	}

	d := NewDeduplicator(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, removed := d.Deduplicate(tt.input)
			if !reflect.DeepEqual(ids(out), tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids(out), tt.wantIDs)
			}
			if removed != tt.wantRemoved {
				t.Errorf("removed = %d, want %d", removed, tt.wantRemoved)
			}
		})
	}
}

// TestDeduplicate_FirstSeenWins verifies the surviving record is the first
// instance, not a later one with the same id.
func TestDeduplicate_FirstSeenWins(t *testing.T) {
	d := NewDeduplicator(nil, nil)

	out, _ := d.Deduplicate([]intel.Indicator{ind("x", "first"), ind("x", "second")})
	if len(out) != 1 || out[0].Name != "first" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

// TestDeduplicate_Idempotent verifies running twice yields the same set.
func TestDeduplicate_Idempotent(t *testing.T) {
	d := NewDeduplicator(nil, nil)

	var input []intel.Indicator
	for i := 0; i < 500; i++ {
		input = append(input, ind(fmt.Sprintf("id-%d", i%180), fmt.Sprintf("n-%d", i)))
	}

	once, _ := d.Deduplicate(input)
	twice, removed := d.Deduplicate(once)
	if removed != 0 {
		t.Errorf("second pass removed %d", removed)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Error("second pass changed the set")
	}
	if len(once) != 180 {
		t.Errorf("expected 180 unique, got %d", len(once))
	}
}

// TestDeduplicate_SameNameAndTimestamp verifies two raw records with the same
// name and timestamp collapse to the normalization of the first.
func TestDeduplicate_SameNameAndTimestamp(t *testing.T) {
	n := normalization.NewNormalizer(normalization.NormalizerConfig{
		Clock: func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) },
	}, nil, nil)

	first := intel.RawThreatRecord{Name: "Dup", Timestamp: "2025-01-01T00:00:00Z", Source: "CISA_AIS", Severity: "critical"}
	second := intel.RawThreatRecord{Name: "Dup", Timestamp: "2025-01-01T00:00:00Z", Source: "OSINT", Severity: "low"}

	out, removed := NewDeduplicator(nil, nil).Deduplicate(n.NormalizeAll([]intel.RawThreatRecord{first, second}))
	if removed != 1 || len(out) != 1 {
		t.Fatalf("expected one survivor, got %d (removed %d)", len(out), removed)
	}
	if !reflect.DeepEqual(out[0], n.Normalize(first)) {
		t.Errorf("survivor is not the first record: %+v", out[0])
	}
}

// TestSeenFilter_Observe verifies ids are counted as new only the first time
// they are observed.
func TestSeenFilter_Observe(t *testing.T) {
	s := NewSeenFilter(1000, 0.001, nil)

	tests := []struct {
		name  string
		input []intel.Indicator
		want  int
	}{
		{"first run", []intel.Indicator{ind("a", "1"), ind("b", "2"), ind("c", "3")}, 3},
		{"repeat run", []intel.Indicator{ind("a", "1"), ind("b", "2"), ind("c", "3")}, 0},
		{"partial overlap", []intel.Indicator{ind("c", "3"), ind("d", "4")}, 1},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Observe(tt.input); got != tt.want {
				t.Errorf("Observe() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestSeenFilter_StartsOverWhenFull verifies a full filter is cleared instead
// of degrading.
func TestSeenFilter_StartsOverWhenFull(t *testing.T) {
	s := NewSeenFilter(2, 0.01, nil)

	if got := s.Observe([]intel.Indicator{ind("a", "1"), ind("b", "2")}); got != 2 {
		t.Fatalf("first Observe() = %d, want 2", got)
	}
	if got := s.Observe([]intel.Indicator{ind("c", "3")}); got != 1 {
		t.Fatalf("second Observe() = %d, want 1", got)
	}
	if got := s.Observe([]intel.Indicator{ind("a", "1")}); got != 1 {
		t.Errorf("ids from before the reset should be new again, got %d", got)
	}
}
