// Package pipeline orchestrates the feature-to-coverage flow: validate,
// project, voxelize, optimize, encode. Failures stay feature-local; the
// batch runner preserves input order and fans work out across a bounded
// worker pool.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/undergis/spatialid/internal/coverage"
	"github.com/undergis/spatialid/internal/geometry"
	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/projection"
	"github.com/undergis/spatialid/internal/voxel"
)

// Engine converts feature geometries into minimal coverage sets. One Engine
// serves a whole batch; it keeps no per-feature state.
type Engine struct {
	opts model.Options
	grid projection.Grid
	vox  voxel.Voxelizer
}

// New validates the options and builds an engine. Option errors are
// batch-fatal: nothing is processed under a bad configuration.
func New(opts model.Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: invalid options")
	}
	return &Engine{
		opts: opts,
		grid: projection.NewGrid(opts.Zoom),
		vox:  voxel.New(opts.MaxCandidateCells),
	}, nil
}

// Options returns the engine's configuration.
func (e *Engine) Options() model.Options { return e.opts }

// ProcessFeature runs one feature through the full flow. The returned
// outcome carries either a coverage set or a failure descriptor; errors
// never escape to the batch level.
func (e *Engine) ProcessFeature(ctx context.Context, rec model.FeatureRecord) model.Outcome {
	cov, err := e.cover(ctx, rec.Geometry)
	if err != nil {
		zap.L().Warn("pipeline: feature failed",
			zap.String("feature_id", rec.ID),
			zap.String("kind", string(model.KindOf(err))),
			zap.Error(err),
		)
		return model.Outcome{
			FeatureID: rec.ID,
			Attrs:     rec.Attrs,
			Failure:   model.FailureFor(rec.ID, err),
		}
	}
	return model.Outcome{
		FeatureID: rec.ID,
		Attrs:     rec.Attrs,
		Coverage:  cov,
	}
}

func (e *Engine) cover(ctx context.Context, mesh *geometry.Mesh) (*model.CoverageSet, error) {
	exact := e.opts.Policy == model.PolicyExact
	if err := mesh.Validate(exact); err != nil {
		return nil, err
	}
	if mesh.CRS != 0 && e.opts.CRS != 0 && mesh.CRS != e.opts.CRS {
		// Features may carry their own CRS; both must be in the supported
		// geodetic family, which Validate has already checked.
		zap.L().Debug("pipeline: feature CRS differs from batch CRS",
			zap.Int("feature_crs", mesh.CRS), zap.Int("batch_crs", e.opts.CRS))
	}

	tris, err := e.project(mesh)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: canceled")
	}

	solid := mesh.Kind == geometry.Solid
	byZoom := make(map[uint8]voxel.Set, e.opts.Zoom-e.opts.MinMergeZoom+1)
	for z := e.opts.Zoom; ; z-- {
		set, verr := e.vox.Voxelize(tris, solid)
		if verr != nil {
			return nil, verr
		}
		byZoom[z] = set
		if z == e.opts.MinMergeZoom {
			break
		}
		tris = halve(tris)
	}

	ids, err := coverage.Optimize(byZoom, e.opts.Zoom, e.opts.MinMergeZoom, e.opts.Policy)
	if err != nil {
		return nil, err
	}
	return &model.CoverageSet{IDs: ids}, nil
}

// project converts the mesh into tile units at the working zoom.
func (e *Engine) project(mesh *geometry.Mesh) ([]voxel.Triangle, error) {
	tris := make([]voxel.Triangle, len(mesh.Triangles))
	for i, t := range mesh.Triangles {
		for j, p := range t {
			u, err := e.grid.Project(p)
			if err != nil {
				return nil, err
			}
			tris[i][j] = voxel.Vec{X: u.X, Y: u.Y, F: u.F}
		}
	}
	return tris, nil
}

// halve rescales tile-unit triangles from zoom z to z-1. Tile units double
// in size each level up, so coordinates simply halve; this avoids
// reprojecting the mesh once per zoom.
func halve(tris []voxel.Triangle) []voxel.Triangle {
	out := make([]voxel.Triangle, len(tris))
	for i, t := range tris {
		for j, p := range t {
			out[i][j] = voxel.Vec{X: p.X / 2, Y: p.Y / 2, F: p.F / 2}
		}
	}
	return out
}

// Run drains the input channel through the worker pool and emits one
// outcome per feature, in input order, on out. It closes out when done.
// Cancellation stops dispatch; features already in flight finish but their
// outcomes are dropped rather than partially emitted.
func (e *Engine) Run(ctx context.Context, in <-chan model.FeatureRecord, out chan<- model.Outcome) error {
	defer close(out)

	g, ctx := errgroup.WithContext(ctx)

	workers := new(errgroup.Group)
	workers.SetLimit(e.opts.Workers)

	// Slots carry per-feature result channels in dispatch order, so the
	// emitter restores input order no matter how workers interleave. Each
	// slot is buffered so a worker never blocks after cancellation.
	slots := make(chan chan model.Outcome, e.opts.Workers)

	g.Go(func() error {
		defer close(slots)
		for rec := range in {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "pipeline: batch canceled")
			}
			rec := rec
			slot := make(chan model.Outcome, 1)
			select {
			case slots <- slot:
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "pipeline: batch canceled")
			}
			workers.Go(func() error {
				slot <- e.ProcessFeature(ctx, rec)
				return nil
			})
		}
		return workers.Wait()
	})

	g.Go(func() error {
		for slot := range slots {
			var outcome model.Outcome
			select {
			case outcome = <-slot:
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "pipeline: batch canceled")
			}
			select {
			case out <- outcome:
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "pipeline: batch canceled")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}
