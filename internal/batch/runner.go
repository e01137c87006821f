// Package batch drives a whole feed through the pipeline and persists the
// results as a run: one run row plus one outcome row per feature, flushed in
// chunks so long feeds never hold the full result set in memory.
package batch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/undergis/spatialid/internal/feed"
	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/pipeline"
	"github.com/undergis/spatialid/internal/store"
)

// DefaultChunkSize is how many outcomes are buffered before a flush.
const DefaultChunkSize = 256

// Runner executes batch runs against a store.
type Runner struct {
	Store     store.Store
	ChunkSize int

	// Sink, when set, receives every outcome in input order once its chunk
	// has been persisted. Used by the CLI to stream results to stdout.
	Sink func(model.Outcome) error
}

// Execute creates a run for the source and processes it to completion. The
// returned run carries final status and stats; the error is the batch-fatal
// cause, if any. Feature-local failures are recorded as outcomes and do not
// fail the run.
func (r *Runner) Execute(ctx context.Context, eng *pipeline.Engine, src feed.Source, sourceName string) (*model.BatchRun, error) {
	run, err := r.Store.CreateRun(ctx, sourceName, eng.Options())
	if err != nil {
		return nil, err
	}
	return r.ExecuteRun(ctx, run, eng, src)
}

// ExecuteRun processes an already-created run. Used when the caller needs
// the run ID before processing starts, e.g. to answer an async request.
func (r *Runner) ExecuteRun(ctx context.Context, run *model.BatchRun, eng *pipeline.Engine, src feed.Source) (*model.BatchRun, error) {
	if err := r.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return run, err
	}
	zap.L().Info("batch: run started",
		zap.String("run_id", run.ID),
		zap.String("source", run.Source),
	)

	stats, perr := r.process(ctx, run.ID, eng, src)
	status := model.RunStatusComplete
	if perr != nil {
		status = model.RunStatusFailed
	}
	// The final status must land even when ctx was canceled mid-run, so the
	// run row never sticks at "running".
	if err := r.Store.FinishRun(context.WithoutCancel(ctx), run.ID, status, stats); err != nil {
		if perr != nil {
			return run, perr
		}
		return run, err
	}
	run.Status = status
	run.Stats = stats

	zap.L().Info("batch: run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("features", stats.Features),
		zap.Int("failed", stats.Failed),
		zap.Int("cells", stats.Cells),
	)
	return run, perr
}

func (r *Runner) process(ctx context.Context, runID string, eng *pipeline.Engine, src feed.Source) (model.RunStats, error) {
	chunkSize := r.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	in := make(chan model.FeatureRecord)
	out := make(chan model.Outcome, chunkSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Drain(ctx, src, in) })
	g.Go(func() error { return eng.Run(ctx, in, out) })

	var stats model.RunStats
	var flushErr error
	chunk := make([]model.Outcome, 0, chunkSize)
	seq := 0

	flush := func() {
		if flushErr != nil || len(chunk) == 0 {
			return
		}
		if err := r.Store.SaveOutcomes(ctx, runID, seq, chunk); err != nil {
			flushErr = err
			return
		}
		seq += len(chunk)
		if r.Sink != nil {
			for _, o := range chunk {
				if err := r.Sink(o); err != nil {
					flushErr = eris.Wrap(err, "batch: sink")
					break
				}
			}
		}
		chunk = chunk[:0]
	}

	// The output channel is always drained so the pipeline can finish even
	// after a flush error; persistence just stops.
	for outcome := range out {
		stats.Features++
		if outcome.Failure != nil {
			stats.Failed++
		} else {
			stats.Succeeded++
			if outcome.Coverage != nil {
				stats.Cells += len(outcome.Coverage.IDs)
			}
		}
		if flushErr != nil {
			continue
		}

		chunk = append(chunk, outcome)
		if len(chunk) >= chunkSize {
			flush()
		}
	}
	flush()

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, flushErr
}
