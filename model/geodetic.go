package model

import (
	"fmt"
	"math"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// Geodetic is a latitude/longitude/altitude triple relative to a reference
// ellipsoid. Angles are radians, altitude is metres above the ellipsoid.
type Geodetic struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// GeodeticFromDegrees converts degree angles into a Geodetic.
func GeodeticFromDegrees(latDeg, lonDeg, alt float64) Geodetic {
	return Geodetic{
		Latitude:  latDeg * degToRad,
		Longitude: lonDeg * degToRad,
		Altitude:  alt,
	}
}

// Degrees returns latitude and longitude in degrees.
func (g Geodetic) Degrees() (latDeg, lonDeg float64) {
	return g.Latitude * radToDeg, g.Longitude * radToDeg
}

// Validate reports whether every component is finite. Latitude range is
// checked by the consumers that need it.
func (g Geodetic) Validate() error {
	switch {
	case !isFinite(g.Latitude):
		return fmt.Errorf("%w: latitude must be a finite number, got %v", ErrInvalidArgument, g.Latitude)
	case !isFinite(g.Longitude):
		return fmt.Errorf("%w: longitude must be a finite number, got %v", ErrInvalidArgument, g.Longitude)
	case !isFinite(g.Altitude):
		return fmt.Errorf("%w: altitude must be a finite number, got %v", ErrInvalidArgument, g.Altitude)
	}
	return nil
}

func (g Geodetic) String() string {
	lat, lon := g.Degrees()
	return fmt.Sprintf("LLA(lat=%.8f°, lon=%.8f°, alt=%.4f m)", lat, lon, g.Altitude)
}
