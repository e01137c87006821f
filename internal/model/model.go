package model

import (
	"github.com/rotisserie/eris"

	"github.com/undergis/spatialid/internal/geometry"
	"github.com/undergis/spatialid/internal/sid"
)

// Policy selects how coverage sets are minimized.
type Policy string

const (
	// PolicyExact requires the merged coverage to equal the finest-zoom
	// voxelization exactly. Merges are verified against a re-voxelization
	// at the coarser zoom.
	PolicyExact Policy = "exact"
	// PolicyBounding allows the merged coverage to be a superset of the
	// finest-zoom voxelization, trading precision for fewer cells.
	PolicyBounding Policy = "bounding"
)

// Options is the configuration surface the engine recognizes. One Options
// value applies to a whole batch invocation; the engine keeps no state
// between invocations.
type Options struct {
	Zoom              uint8  `yaml:"zoom" mapstructure:"zoom"`
	Policy            Policy `yaml:"policy" mapstructure:"policy"`
	MinMergeZoom      uint8  `yaml:"min_merge_zoom" mapstructure:"min_merge_zoom"`
	MaxCandidateCells int    `yaml:"max_candidate_cells" mapstructure:"max_candidate_cells"`
	CRS               int    `yaml:"crs" mapstructure:"crs"`
	Workers           int    `yaml:"workers" mapstructure:"workers"`
}

// Validate checks option combinations that are batch-fatal. It is called
// once before any feature is processed.
func (o Options) Validate() error {
	if o.Zoom > sid.ZMax {
		return eris.Errorf("model: zoom %d exceeds max %d", o.Zoom, sid.ZMax)
	}
	if o.Policy != PolicyExact && o.Policy != PolicyBounding {
		return eris.Errorf("model: unknown policy %q", o.Policy)
	}
	if o.MinMergeZoom > o.Zoom {
		return eris.Errorf("model: min_merge_zoom %d exceeds zoom %d", o.MinMergeZoom, o.Zoom)
	}
	if o.MaxCandidateCells <= 0 {
		return eris.New("model: max_candidate_cells must be positive")
	}
	if o.Workers <= 0 {
		return eris.New("model: workers must be positive")
	}
	return nil
}

// FeatureRecord pairs a geometry with opaque caller metadata. Attributes are
// carried through the pipeline unchanged and never inspected.
type FeatureRecord struct {
	ID       string            `json:"id"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Geometry *geometry.Mesh    `json:"-"`
}

// CoverageSet is the minimal set of spatial IDs covering a geometry under
// the requested policy. IDs are sorted (zoom, f, x, y) and contain no
// ancestor/descendant pairs.
type CoverageSet struct {
	IDs []sid.ID `json:"ids"`
}

// Tokens renders the coverage set as canonical z/f/x/y tokens.
func (c CoverageSet) Tokens() []string {
	out := make([]string, len(c.IDs))
	for i, id := range c.IDs {
		out[i] = id.String()
	}
	return out
}

// Failure is the per-feature failure descriptor handed downstream in place
// of a coverage set.
type Failure struct {
	FeatureID string    `json:"feature_id"`
	Kind      ErrorKind `json:"error_kind"`
	Message   string    `json:"message"`
}

// Outcome is the per-feature result slot: exactly one of Coverage or Failure
// is set. Output order matches input order.
type Outcome struct {
	FeatureID string            `json:"feature_id"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Coverage  *CoverageSet      `json:"coverage,omitempty"`
	Failure   *Failure          `json:"failure,omitempty"`
}
