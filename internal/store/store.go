// Package store persists batch runs and their per-feature outcomes. Two
// drivers are provided: SQLite for single-operator use and PostgreSQL for
// shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/undergis/spatialid/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for batch runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source string, opts model.Options) (*model.BatchRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats) error
	GetRun(ctx context.Context, runID string) (*model.BatchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error)

	// Outcomes. SaveOutcomes appends a chunk starting at sequence start,
	// so a streaming batch can flush periodically without losing order.
	SaveOutcomes(ctx context.Context, runID string, start int, outcomes []model.Outcome) error
	ListOutcomes(ctx context.Context, runID string, failuresOnly bool) ([]model.Outcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
