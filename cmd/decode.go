package main

import (
	"encoding/json"
	"math"

	"github.com/spf13/cobra"

	"github.com/undergis/spatialid/internal/projection"
	"github.com/undergis/spatialid/internal/sid"
)

type cellInfo struct {
	Token    string           `json:"token"`
	Z        uint8            `json:"z"`
	F        int64            `json:"f"`
	X        uint64           `json:"x"`
	Y        uint64           `json:"y"`
	Center   projection.Point `json:"center"`
	Min      projection.Point `json:"min"`
	Max      projection.Point `json:"max"`
	Parent   string           `json:"parent,omitempty"`
	Children []string         `json:"children,omitempty"`
}

// describeCell resolves a cell's geographic extent and hierarchy neighbors.
func describeCell(id sid.ID) cellInfo {
	grid := projection.NewGrid(id.Z)
	lo := grid.Unproject(projection.Unit{X: float64(id.X), Y: float64(id.Y), F: float64(id.F)})
	hi := grid.Unproject(projection.Unit{X: float64(id.X) + 1, Y: float64(id.Y) + 1, F: float64(id.F) + 1})

	info := cellInfo{
		Token:  id.String(),
		Z:      id.Z,
		F:      id.F,
		X:      id.X,
		Y:      id.Y,
		Center: grid.Unproject(projection.Unit{X: float64(id.X) + 0.5, Y: float64(id.Y) + 0.5, F: float64(id.F) + 0.5}),
		// The y axis runs north to south, so the corner points swap latitude.
		Min: projection.Point{Lon: lo.Lon, Lat: math.Min(lo.Lat, hi.Lat), Alt: lo.Alt},
		Max: projection.Point{Lon: hi.Lon, Lat: math.Max(lo.Lat, hi.Lat), Alt: hi.Alt},
	}
	if parent, err := id.Parent(); err == nil {
		info.Parent = parent.String()
	}
	if children, err := id.Children(); err == nil {
		info.Children = make([]string, len(children))
		for i, c := range children {
			info.Children[i] = c.String()
		}
	}
	return info
}

var decodeCmd = &cobra.Command{
	Use:   "decode <token>",
	Short: "Decode a spatial identifier into its geographic extent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sid.Parse(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(describeCell(id))
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
