package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is returned when a coordinate is not a finite number or
// has the wrong shape.
var ErrInvalidArgument = errors.New("invalid argument")

// Position represents a point in ECEF metres.
//
// Position is a value type: methods never modify the receiver, so a new
// Position is built whenever a component has to change.
type Position struct {
	X float64
	Y float64
	Z float64
}

// NewPosition validates the components and returns the Position.
func NewPosition(x, y, z float64) (Position, error) {
	p := Position{X: x, Y: y, Z: z}
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// PositionFromSlice builds a Position from an [x, y, z] slice.
func PositionFromSlice(data []float64) (Position, error) {
	if len(data) != 3 {
		return Position{}, fmt.Errorf("%w: position needs 3 components, got %d", ErrInvalidArgument, len(data))
	}
	return NewPosition(data[0], data[1], data[2])
}

// PositionsFromSlices builds one Position per [x, y, z] row.
func PositionsFromSlices(rows [][]float64) ([]Position, error) {
	out := make([]Position, 0, len(rows))
	for i, row := range rows {
		p, err := PositionFromSlice(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Validate reports whether every component is finite.
func (p Position) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{{"x", p.X}, {"y", p.Y}, {"z", p.Z}} {
		if !isFinite(c.v) {
			return fmt.Errorf("%w: %s must be a finite number, got %v", ErrInvalidArgument, c.name, c.v)
		}
	}
	return nil
}

// Equal compares component-wise.
func (p Position) Equal(other Position) bool {
	return p.X == other.X && p.Y == other.Y && p.Z == other.Z
}

// Sub returns p - other.
func (p Position) Sub(other Position) Position {
	return Position{X: p.X - other.X, Y: p.Y - other.Y, Z: p.Z - other.Z}
}

// Dot returns the dot product of two positions taken as vectors.
func (p Position) Dot(other Position) float64 {
	return p.X*other.X + p.Y*other.Y + p.Z*other.Z
}

// Norm returns the distance from the Earth's centre.
func (p Position) Norm() float64 {
	return math.Sqrt(p.Dot(p))
}

// DistanceTo returns the straight-line (chord) distance between two points.
func (p Position) DistanceTo(other Position) float64 {
	return p.Sub(other).Norm()
}

// Slice exports the position as [x, y, z].
func (p Position) Slice() []float64 {
	return []float64{p.X, p.Y, p.Z}
}

func (p Position) String() string {
	return fmt.Sprintf("ECEF(x=%.4f, y=%.4f, z=%.4f)", p.X, p.Y, p.Z)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
