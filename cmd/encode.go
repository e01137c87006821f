package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/undergis/spatialid/internal/projection"
	"github.com/undergis/spatialid/internal/sid"
)

var encodeZoom uint8

var encodeCmd = &cobra.Command{
	Use:   "encode <lon> <lat> <alt>",
	Short: "Encode a geodetic point into its spatial identifier",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var coords [3]float64
		for i, arg := range args {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return eris.Wrapf(err, "parse coordinate %q", arg)
			}
			coords[i] = v
		}

		grid := projection.NewGrid(encodeZoom)
		id, err := cellForPoint(grid, projection.Point{
			Lon: coords[0], Lat: coords[1], Alt: coords[2],
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), id.String())
		return nil
	},
}

// cellForPoint maps a point onto the cell containing it. Longitude wraps at
// the antimeridian; the Mercator latitude bound maps onto the last row.
func cellForPoint(grid projection.Grid, p projection.Point) (sid.ID, error) {
	u, err := grid.Project(p)
	if err != nil {
		return sid.ID{}, err
	}
	n := int64(1) << grid.Zoom()

	x := int64(math.Floor(u.X))
	if x >= n {
		x -= n
	}
	y := int64(math.Floor(u.Y))
	if y == n {
		y = n - 1
	}
	f := int64(math.Floor(u.F))

	if x < 0 || y < 0 {
		return sid.ID{}, eris.Wrapf(sid.ErrOutOfRange, "point (%v, %v)", p.Lon, p.Lat)
	}
	return sid.New(grid.Zoom(), f, uint64(x), uint64(y))
}

func init() {
	encodeCmd.Flags().Uint8Var(&encodeZoom, "zoom", 26, "zoom level of the identifier")
	rootCmd.AddCommand(encodeCmd)
}
