package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/undergis/spatialid/internal/feed"
	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/pipeline"
)

var (
	flagZoom         uint8
	flagPolicy       string
	flagMinMergeZoom uint8
	flagCRS          int
	flagWorkers      int
)

// engineFlags registers the shared engine override flags on a command.
func engineFlags(cmd *cobra.Command) {
	cmd.Flags().Uint8Var(&flagZoom, "zoom", 0, "target zoom level")
	cmd.Flags().StringVar(&flagPolicy, "policy", "", "merge policy: exact or bounding")
	cmd.Flags().Uint8Var(&flagMinMergeZoom, "min-merge-zoom", 0, "coarsest zoom merges may reach")
	cmd.Flags().IntVar(&flagCRS, "crs", 0, "EPSG code of input coordinates")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "worker pool size")
}

// engineOptions overlays changed flags onto the configured defaults.
func engineOptions(cmd *cobra.Command) model.Options {
	opts := cfg.Engine.Options()
	if cmd.Flags().Changed("zoom") {
		opts.Zoom = flagZoom
	}
	if cmd.Flags().Changed("policy") {
		opts.Policy = model.Policy(flagPolicy)
	}
	if cmd.Flags().Changed("min-merge-zoom") {
		opts.MinMergeZoom = flagMinMergeZoom
	}
	if cmd.Flags().Changed("crs") {
		opts.CRS = flagCRS
	}
	if cmd.Flags().Changed("workers") {
		opts.Workers = flagWorkers
	}
	return opts
}

var coverageCmd = &cobra.Command{
	Use:   "coverage [feature.json]",
	Short: "Compute the coverage set of a single GeoJSON feature",
	Long:  "Reads one GeoJSON feature from the given file (or stdin) and prints its minimal coverage tokens, one per line.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if len(args) == 1 {
			raw, err = os.ReadFile(args[0])
		} else {
			raw, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return eris.Wrap(err, "read feature")
		}

		var feat geojson.Feature
		if err := json.Unmarshal(raw, &feat); err != nil {
			return eris.Wrap(err, "parse GeoJSON feature")
		}

		opts := engineOptions(cmd)
		eng, err := pipeline.New(opts)
		if err != nil {
			return err
		}

		mesh, err := feed.MeshFromFeature(&feat, opts.CRS)
		if err != nil {
			return err
		}

		outcome := eng.ProcessFeature(cmd.Context(), model.FeatureRecord{
			ID:       feed.FeatureID(&feat),
			Attrs:    feed.AttrsFromProps(feat.Properties),
			Geometry: mesh,
		})
		if outcome.Failure != nil {
			return eris.Errorf("%s: %s", outcome.Failure.Kind, outcome.Failure.Message)
		}

		for _, token := range outcome.Coverage.Tokens() {
			fmt.Fprintln(cmd.OutOrStdout(), token)
		}
		return nil
	},
}

func init() {
	engineFlags(coverageCmd)
	rootCmd.AddCommand(coverageCmd)
}
