package core

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/signalsfoundry/geodesy/ellipsoid"
)

const (
	// DefaultMaxIterations is the Vincenty iteration cap used when the caller
	// does not pass one.
	DefaultMaxIterations = 200

	// vincentyTolerance is the change in lambda, in radians, below which the
	// iteration is considered converged.
	vincentyTolerance = 1e-12

	// poleEpsilon moves latitudes off the exact poles, where the reduced
	// latitude transform is singular. 1e-10 rad is about 0.6 mm.
	poleEpsilon = 1e-10

	distanceDecimals = 4
)

// DistanceResult is the outcome of a Vincenty inverse computation.
type DistanceResult struct {
	Meters     float64
	Iterations int
}

// Distance returns the geodesic distance in metres between two geodetic
// points on m, using Vincenty's inverse formula. Latitudes and longitudes are
// radians. maxIterations <= 0 selects DefaultMaxIterations.
func Distance(lat1, lon1, lat2, lon2 float64, m ellipsoid.Model, maxIterations int) (float64, error) {
	res, err := Vincenty(lat1, lon1, lat2, lon2, m, maxIterations)
	if err != nil {
		return 0, err
	}
	return res.Meters, nil
}

// Vincenty is Distance with the iteration count exposed.
func Vincenty(lat1, lon1, lat2, lon2 float64, m ellipsoid.Model, maxIterations int) (DistanceResult, error) {
	if err := validateDistanceInput(lat1, lon1, lat2, lon2); err != nil {
		return DistanceResult{}, err
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	if lat1 == lat2 && lon1 == lon2 {
		return DistanceResult{}, nil
	}

	a, b, f := m.A, m.B, m.F

	lat1 = correctPole(lat1)
	lat2 = correctPole(lat2)

	// Reduced latitudes on the auxiliary sphere.
	u1 := math.Atan((1 - f) * math.Tan(lat1))
	u2 := math.Atan((1 - f) * math.Tan(lat2))
	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	l := lon2 - lon1
	lambda := l

	var (
		sinSigma, cosSigma, sigma float64
		cosSqAlpha, cos2SigmaM    float64
		converged                 bool
		iterations                int
	)
	for iterations < maxIterations {
		iterations++

		sinLambda, cosLambda := math.Sincos(lambda)
		t1 := cosU2 * sinLambda
		t2 := cosU1*sinU2 - sinU1*cosU2*cosLambda
		sinSigma = math.Sqrt(t1*t1 + t2*t2)
		if sinSigma == 0 {
			// Coincident on the auxiliary sphere.
			return DistanceResult{Iterations: iterations}, nil
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)

		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha

		// cosSqAlpha is zero for a geodesic along the equator.
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		} else {
			cos2SigmaM = 0
		}

		c := f / 16 * cosSqAlpha * (4 + f*(4-3*cosSqAlpha))
		prev := lambda
		lambda = l + (1-c)*f*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

		if math.Abs(lambda-prev) < vincentyTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return DistanceResult{Iterations: iterations}, fmt.Errorf(
			"%w: no convergence after %d iterations between (%g, %g) and (%g, %g)",
			ErrConvergenceFailure, iterations, lat1, lon1, lat2, lon2)
	}

	uSq := cosSqAlpha * (a*a - b*b) / (b * b)
	bigA := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bigB := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
	s := b * bigA * (sigma - deltaSigma)

	return DistanceResult{Meters: roundMeters(s), Iterations: iterations}, nil
}

// correctPole nudges a latitude that sits within poleEpsilon of ±π/2 back to
// ±(π/2 - poleEpsilon). Each latitude is tested on its own value.
func correctPole(lat float64) float64 {
	if math.Abs(math.Pi/2-math.Abs(lat)) < poleEpsilon {
		return math.Copysign(math.Pi/2-poleEpsilon, lat)
	}
	return lat
}

func validateDistanceInput(lat1, lon1, lat2, lon2 float64) error {
	for _, v := range [...]struct {
		name string
		val  float64
	}{{"lat1", lat1}, {"lon1", lon1}, {"lat2", lat2}, {"lon2", lon2}} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return fmt.Errorf("%w: %s must be a finite number, got %v", ErrInvalidArgument, v.name, v.val)
		}
	}
	if math.Abs(lat1) > math.Pi/2 || math.Abs(lat2) > math.Pi/2 {
		return fmt.Errorf("%w: latitudes must lie within ±90° (lat1: %g°, lat2: %g°)",
			ErrInvalidArgument, lat1*180/math.Pi, lat2*180/math.Pi)
	}
	return nil
}

// roundMeters rounds half to even at 0.1 mm. Ties are judged on the exact
// binary value of s, not on its shortest decimal spelling: 1.00005 is stored
// as 1.0000500000000001055... and rounds up.
func roundMeters(s float64) float64 {
	v, _ := exactDecimal(s).RoundBank(distanceDecimals).Float64()
	return v
}

// exactDecimal returns the decimal equal to x, digit for digit.
// x = mant·2^exp with exp < 0 is written as mant·5^-exp·10^exp.
func exactDecimal(x float64) decimal.Decimal {
	frac, exp := math.Frexp(x)
	mant := int64(frac * (1 << 53))
	exp -= 53
	if exp >= 0 {
		return decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(mant), uint(exp)), 0)
	}
	five := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-exp)), nil)
	return decimal.NewFromBigInt(five.Mul(five, big.NewInt(mant)), int32(exp))
}
