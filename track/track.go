// Package track propagates a two-line element set with SGP4 and projects the
// resulting Earth-fixed positions onto an ellipsoid.
package track

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/geodesy/core"
	"github.com/signalsfoundry/geodesy/ellipsoid"
	"github.com/signalsfoundry/geodesy/model"
)

// MaxSamples bounds a single GroundTrack call.
const MaxSamples = 100000

const (
	kmToM   = 1000.0
	tleLine = 69
)

// ErrPropagation is returned when SGP4 cannot produce a position.
var ErrPropagation = errors.New("sgp4 propagation failed")

// Sample is one point of a ground track.
type Sample struct {
	Time     time.Time
	Position model.Position // ECEF, metres
	Geodetic model.Geodetic
}

// Propagator wraps a single satellite. It is immutable after construction and
// safe for concurrent use.
type Propagator struct {
	sat   satellite.Satellite
	model ellipsoid.Model
}

// Option customises a Propagator.
type Option func(*Propagator)

// WithModel projects positions onto m instead of WGS84.
func WithModel(m ellipsoid.Model) Option {
	return func(p *Propagator) {
		if m.A > 0 {
			p.model = m
		}
	}
}

// NewPropagator parses a TLE using WGS72 gravity constants.
func NewPropagator(line1, line2 string, opts ...Option) (*Propagator, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	// go-satellite exits the process on malformed lines, so check the shape first.
	if err := checkLine(line1, '1'); err != nil {
		return nil, fmt.Errorf("%w: tle line 1: %v", model.ErrInvalidArgument, err)
	}
	if err := checkLine(line2, '2'); err != nil {
		return nil, fmt.Errorf("%w: tle line 2: %v", model.ErrInvalidArgument, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: init code %d: %s", ErrPropagation, sat.Error, sat.ErrorStr)
	}

	wgs84, err := ellipsoid.Resolve(ellipsoid.DefaultModelName)
	if err != nil {
		return nil, err
	}
	p := &Propagator{sat: sat, model: wgs84}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func checkLine(line string, number byte) error {
	if len(line) != tleLine {
		return fmt.Errorf("length %d, expected %d", len(line), tleLine)
	}
	if line[0] != number {
		return fmt.Errorf("must start with %q", number)
	}
	return nil
}

// Model returns the ellipsoid samples are projected onto.
func (p *Propagator) Model() ellipsoid.Model { return p.model }

// PositionAt returns the Earth-fixed position at t, in metres. SGP4 is
// evaluated at whole UTC seconds.
func (p *Propagator) PositionAt(t time.Time) (model.Position, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	eci, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	if !finite(eci.X, eci.Y, eci.Z) {
		return model.Position{}, fmt.Errorf("%w at %s", ErrPropagation, t.Format(time.RFC3339))
	}
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	ecef := satellite.ECIToECEF(eci, gmst)

	return model.Position{
		X: ecef.X * kmToM,
		Y: ecef.Y * kmToM,
		Z: ecef.Z * kmToM,
	}, nil
}

// SampleAt propagates to t and converts the position to geodetic coordinates.
func (p *Propagator) SampleAt(t time.Time) (Sample, error) {
	pos, err := p.PositionAt(t)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Time:     t.UTC().Truncate(time.Second),
		Position: pos,
		Geodetic: core.CartesianToGeodetic(pos, p.model),
	}, nil
}

// GroundTrack returns count samples starting at start and spaced by step.
// ctx is checked before each sample.
func (p *Propagator) GroundTrack(ctx context.Context, start time.Time, step time.Duration, count int) ([]Sample, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %s", model.ErrInvalidArgument, step)
	}
	if count <= 0 || count > MaxSamples {
		return nil, fmt.Errorf("%w: count must be in [1, %d], got %d", model.ErrInvalidArgument, MaxSamples, count)
	}

	samples := make([]Sample, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := p.SampleAt(start.Add(time.Duration(i) * step))
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
