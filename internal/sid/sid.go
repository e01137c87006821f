// Package sid implements the spatial identifier codec: a pure, stateless
// mapping between (zoom, x, y, vertical index) tuples and their canonical
// z/f/x/y tokens.
package sid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ZMax is the finest zoom level the token scheme addresses.
const ZMax = 35

// Codec domain errors.
var (
	ErrOutOfRange     = eris.New("sid: out of range")
	ErrMalformedToken = eris.New("sid: malformed token")
)

// ID addresses one 3D tile: zoom level, signed vertical index, and the
// horizontal x/y tile coordinates. The zero value is the single cell at
// zoom 0.
type ID struct {
	Z uint8  `json:"z"`
	F int64  `json:"f"`
	X uint64 `json:"x"`
	Y uint64 `json:"y"`
}

// New validates the tuple against the declared domain: 0 <= z <= ZMax,
// 0 <= x,y < 2^z, -2^z <= f < 2^z.
func New(z uint8, f int64, x, y uint64) (ID, error) {
	id := ID{Z: z, F: f, X: x, Y: y}
	if err := id.Check(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Check reports whether the ID is within the valid domain for its zoom.
func (id ID) Check() error {
	if id.Z > ZMax {
		return eris.Wrapf(ErrOutOfRange, "zoom %d exceeds %d", id.Z, ZMax)
	}
	n := uint64(1) << id.Z
	if id.X >= n || id.Y >= n {
		return eris.Wrapf(ErrOutOfRange, "x=%d y=%d outside [0,%d) at zoom %d", id.X, id.Y, n, id.Z)
	}
	limit := int64(1) << id.Z
	if id.F < -limit || id.F >= limit {
		return eris.Wrapf(ErrOutOfRange, "f=%d outside [%d,%d) at zoom %d", id.F, -limit, limit, id.Z)
	}
	return nil
}

// String renders the canonical token. Field order matches the original
// record format emitted by the upstream system: zoom, vertical, x, y.
func (id ID) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", id.Z, id.F, id.X, id.Y)
}

// Parse decodes a z/f/x/y token. It is the total inverse of String over the
// valid domain.
func Parse(token string) (ID, error) {
	parts := strings.Split(token, "/")
	if len(parts) != 4 {
		return ID{}, eris.Wrapf(ErrMalformedToken, "%q: want 4 fields, got %d", token, len(parts))
	}
	z, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return ID{}, eris.Wrapf(ErrMalformedToken, "%q: zoom: %v", token, err)
	}
	f, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ID{}, eris.Wrapf(ErrMalformedToken, "%q: f: %v", token, err)
	}
	x, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return ID{}, eris.Wrapf(ErrMalformedToken, "%q: x: %v", token, err)
	}
	y, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return ID{}, eris.Wrapf(ErrMalformedToken, "%q: y: %v", token, err)
	}
	return New(uint8(z), f, x, y)
}

// Parent returns the enclosing cell at zoom z-1. Horizontal coordinates are
// quadrisected and the vertical axis bisected, so the parent's f index is
// floor(f/2); the arithmetic shift gives floor semantics for negative f.
func (id ID) Parent() (ID, error) {
	if id.Z == 0 {
		return ID{}, eris.Wrap(ErrOutOfRange, "zoom 0 has no parent")
	}
	return ID{Z: id.Z - 1, F: id.F >> 1, X: id.X >> 1, Y: id.Y >> 1}, nil
}

// Children returns the eight cells at zoom z+1 that exactly partition this
// cell: 2x2 horizontally by 2 vertically.
func (id ID) Children() ([8]ID, error) {
	if id.Z >= ZMax {
		return [8]ID{}, eris.Wrapf(ErrOutOfRange, "zoom %d has no children", id.Z)
	}
	var out [8]ID
	i := 0
	for df := int64(0); df < 2; df++ {
		for dy := uint64(0); dy < 2; dy++ {
			for dx := uint64(0); dx < 2; dx++ {
				out[i] = ID{
					Z: id.Z + 1,
					F: id.F*2 + df,
					X: id.X*2 + dx,
					Y: id.Y*2 + dy,
				}
				i++
			}
		}
	}
	return out, nil
}

// Contains reports whether other lies inside this cell's volume (or is the
// cell itself). Used to assert coverage sets carry no redundant ancestors.
func (id ID) Contains(other ID) bool {
	if other.Z < id.Z {
		return false
	}
	shift := other.Z - id.Z
	return other.X>>shift == id.X &&
		other.Y>>shift == id.Y &&
		other.F>>shift == id.F
}

// Less orders IDs by (z, f, x, y) for deterministic output.
func Less(a, b ID) bool {
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	if a.F != b.F {
		return a.F < b.F
	}
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}
