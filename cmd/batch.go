package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/undergis/spatialid/internal/batch"
	"github.com/undergis/spatialid/internal/feed"
	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/pipeline"
)

var (
	batchFormat string
	batchOutput string
)

var batchCmd = &cobra.Command{
	Use:   "batch <source>",
	Short: "Encode every feature in a source file as one run",
	Long:  "Streams features from an NDJSON GeoJSON file or a shapefile through the engine, persists the run, and optionally writes per-feature results as NDJSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := engineOptions(cmd)
		eng, err := pipeline.New(opts)
		if err != nil {
			return err
		}

		var src feed.Source
		switch batchFormat {
		case "geojson":
			src, err = feed.OpenGeoJSON(args[0], opts.CRS)
		case "shapefile":
			src, err = feed.OpenShapefile(args[0], opts.CRS)
		default:
			return eris.Errorf("unknown format %q", batchFormat)
		}
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runner := &batch.Runner{Store: st, ChunkSize: cfg.Batch.ChunkSize}

		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrapf(err, "create %s", batchOutput)
			}
			defer f.Close() //nolint:errcheck
			enc := json.NewEncoder(f)
			runner.Sink = func(o model.Outcome) error { return enc.Encode(o) }
		}

		run, err := runner.Execute(ctx, eng, src, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"run %s %s: %d features, %d succeeded, %d failed, %d cells\n",
			run.ID, run.Status, run.Stats.Features, run.Stats.Succeeded,
			run.Stats.Failed, run.Stats.Cells)
		return nil
	},
}

func init() {
	engineFlags(batchCmd)
	batchCmd.Flags().StringVar(&batchFormat, "format", "geojson", "source format: geojson or shapefile")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write per-feature results as NDJSON to this file")
	rootCmd.AddCommand(batchCmd)
}
