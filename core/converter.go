package core

import (
	"math"

	"github.com/signalsfoundry/geodesy/ellipsoid"
	"github.com/signalsfoundry/geodesy/model"
)

// MaxBowringIterations bounds the Cartesian -> geodetic fixed-point loop.
const MaxBowringIterations = 1000

// GeodeticToCartesian converts a geodetic coordinate to ECEF metres on the
// given ellipsoid. The conversion is closed form.
func GeodeticToCartesian(g model.Geodetic, m ellipsoid.Model) model.Position {
	e2 := m.E2()
	sinLat, cosLat := math.Sincos(g.Latitude)
	sinLon, cosLon := math.Sincos(g.Longitude)

	// Prime-vertical radius of curvature.
	n := m.A / math.Sqrt(1-e2*sinLat*sinLat)

	return model.Position{
		X: (n + g.Altitude) * cosLat * cosLon,
		Y: (n + g.Altitude) * cosLat * sinLon,
		Z: (n*(1-e2) + g.Altitude) * sinLat,
	}
}

// CartesianToGeodetic converts an ECEF position to geodetic coordinates using
// Bowring's iteration. See BowringResult for the iteration details.
func CartesianToGeodetic(p model.Position, m ellipsoid.Model) model.Geodetic {
	return Bowring(p, m).Geodetic
}

// BowringResult carries the converted coordinate plus how the iteration ended.
type BowringResult struct {
	Geodetic   model.Geodetic
	Iterations int
	// Converged is false when MaxBowringIterations was reached. The last
	// latitude estimate is still returned in that case.
	Converged bool
}

// Bowring runs the Cartesian -> geodetic conversion.
//
// The loop stops when two successive parametric latitudes compare exactly
// equal. A tolerance would stop a step or two earlier on some inputs without
// changing the result; exact equality keeps iteration counts comparable with
// published implementations of the formula.
func Bowring(p model.Position, m ellipsoid.Model) BowringResult {
	a, b, f := m.A, m.B, m.F
	e2 := m.E2()
	ep2 := m.EP2()

	// atan2(0, 0) is 0, so points on the rotation axis get longitude 0.
	lon := math.Atan2(p.Y, p.X)
	d := math.Hypot(p.X, p.Y)

	latitudeFrom := func(beta float64) float64 {
		sinBeta, cosBeta := math.Sincos(beta)
		return math.Atan2(
			p.Z+b*ep2*sinBeta*sinBeta*sinBeta,
			d-a*e2*cosBeta*cosBeta*cosBeta,
		)
	}
	parametricFrom := func(phi float64) float64 {
		sinPhi, cosPhi := math.Sincos(phi)
		return math.Atan2((1-f)*sinPhi, cosPhi)
	}

	beta := math.Atan2(p.Z, (1-f)*d)
	phi := latitudeFrom(beta)
	next := parametricFrom(phi)

	iterations := 0
	for beta != next && iterations < MaxBowringIterations {
		beta = next
		phi = latitudeFrom(beta)
		next = parametricFrom(phi)
		iterations++
	}

	sinPhi, cosPhi := math.Sincos(phi)
	n := a / math.Sqrt(1-e2*sinPhi*sinPhi)
	alt := d*cosPhi + (p.Z+e2*n*sinPhi)*sinPhi - n

	return BowringResult{
		Geodetic:   model.Geodetic{Latitude: phi, Longitude: lon, Altitude: alt},
		Iterations: iterations,
		Converged:  beta == next,
	}
}
