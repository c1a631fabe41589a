// Package store persists analyzed runs so later stages and the API can read
// them back.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// LatestRunID resolves to the most recently saved run.
const LatestRunID = "latest"

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one pipeline execution and its scored indicators.
type Run struct {
	ID                string            `json:"id"`
	CreatedAt         time.Time         `json:"created_at"`
	TargetSector      string            `json:"target_sector,omitempty"`
	RecordsIn         int               `json:"records_in"`
	DuplicatesRemoved int               `json:"duplicates_removed"`
	Indicators        []intel.Indicator `json:"indicators"`
}

// Store persists runs. SaveRun also makes the run the latest.
type Store interface {
	SaveRun(ctx context.Context, run Run) error
	LoadRun(ctx context.Context, id string) (Run, error)
	Ping(ctx context.Context) error
	Close() error
}
