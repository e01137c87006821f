package model

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undergis/spatialid/internal/geometry"
	"github.com/undergis/spatialid/internal/projection"
	"github.com/undergis/spatialid/internal/sid"
	"github.com/undergis/spatialid/internal/voxel"
)

func baseOptions() Options {
	return Options{
		Zoom:              26,
		Policy:            PolicyExact,
		MinMergeZoom:      10,
		MaxCandidateCells: 1 << 24,
		CRS:               4326,
		Workers:           4,
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Options) {}, ok: true},
		{name: "bounding policy", mutate: func(o *Options) { o.Policy = PolicyBounding }, ok: true},
		{name: "zoom above max", mutate: func(o *Options) { o.Zoom = 36 }},
		{name: "unknown policy", mutate: func(o *Options) { o.Policy = "approximate" }},
		{name: "merge floor above zoom", mutate: func(o *Options) { o.MinMergeZoom = 30 }},
		{name: "zero candidate ceiling", mutate: func(o *Options) { o.MaxCandidateCells = 0 }},
		{name: "zero workers", mutate: func(o *Options) { o.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := baseOptions()
			tt.mutate(&o)
			err := o.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unsupported crs", eris.Wrap(projection.ErrUnsupportedCRS, "crs 3857"), KindUnsupportedCRS},
		{"sid out of range", eris.Wrap(sid.ErrOutOfRange, "x too large"), KindOutOfRange},
		{"projection out of range", projection.ErrOutOfRange, KindOutOfRange},
		{"malformed token", sid.ErrMalformedToken, KindMalformedToken},
		{"resolution too fine", eris.Wrap(voxel.ErrResolutionTooFine, "ceiling hit"), KindResolutionTooFine},
		{"invalid geometry", geometry.ErrInvalidGeometry, KindInvalidGeometry},
		{"resource exhausted", ErrResourceExhausted, KindResourceExhausted},
		{"anything else", eris.New("disk on fire"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestFailureFor(t *testing.T) {
	f := FailureFor("feat-9", eris.Wrap(geometry.ErrInvalidGeometry, "open solid"))
	assert.Equal(t, "feat-9", f.FeatureID)
	assert.Equal(t, KindInvalidGeometry, f.Kind)
	assert.Contains(t, f.Message, "open solid")
}

func TestCoverageSetTokens(t *testing.T) {
	a, err := sid.New(25, -1, 100, 200)
	require.NoError(t, err)
	b, err := sid.New(24, 0, 50, 100)
	require.NoError(t, err)

	cs := CoverageSet{IDs: []sid.ID{a, b}}
	assert.Equal(t, []string{"25/-1/100/200", "24/0/50/100"}, cs.Tokens())
}
