package model

import (
	"github.com/rotisserie/eris"

	"github.com/undergis/spatialid/internal/geometry"
	"github.com/undergis/spatialid/internal/projection"
	"github.com/undergis/spatialid/internal/sid"
	"github.com/undergis/spatialid/internal/voxel"
)

// ErrorKind is the stable failure taxonomy exposed to the downstream
// collaborator.
type ErrorKind string

const (
	KindUnsupportedCRS    ErrorKind = "UnsupportedCRS"
	KindOutOfRange        ErrorKind = "OutOfRange"
	KindMalformedToken    ErrorKind = "MalformedToken"
	KindResolutionTooFine ErrorKind = "ResolutionTooFine"
	KindInvalidGeometry   ErrorKind = "InvalidGeometry"
	KindResourceExhausted ErrorKind = "ResourceExhausted"
	KindInternal          ErrorKind = "Internal"
)

// ErrResourceExhausted is raised when work is refused for capacity reasons
// rather than bad input, such as the server's concurrent batch-run ceiling.
var ErrResourceExhausted = eris.New("model: resource exhausted")

// KindOf maps an error to its taxonomy kind. The sentinel errors live in
// the packages that raise them; this is the one place that knows them all.
// Unrecognized errors are reported as Internal rather than dropped.
func KindOf(err error) ErrorKind {
	switch {
	case eris.Is(err, projection.ErrUnsupportedCRS):
		return KindUnsupportedCRS
	case eris.Is(err, sid.ErrOutOfRange), eris.Is(err, projection.ErrOutOfRange):
		return KindOutOfRange
	case eris.Is(err, sid.ErrMalformedToken):
		return KindMalformedToken
	case eris.Is(err, voxel.ErrResolutionTooFine):
		return KindResolutionTooFine
	case eris.Is(err, geometry.ErrInvalidGeometry):
		return KindInvalidGeometry
	case eris.Is(err, ErrResourceExhausted):
		return KindResourceExhausted
	default:
		return KindInternal
	}
}

// FailureFor builds the failure descriptor for a feature-local error.
func FailureFor(featureID string, err error) *Failure {
	return &Failure{
		FeatureID: featureID,
		Kind:      KindOf(err),
		Message:   err.Error(),
	}
}
