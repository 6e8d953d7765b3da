package core

import (
	"errors"

	"github.com/signalsfoundry/geodesy/ellipsoid"
	"github.com/signalsfoundry/geodesy/model"
)

var (
	// ErrInvalidArgument is returned for non-finite input or a latitude
	// outside [-π/2, π/2].
	ErrInvalidArgument = model.ErrInvalidArgument
	// ErrUnknownModel is returned when the ellipsoid name is not registered.
	ErrUnknownModel = ellipsoid.ErrUnknownModel
	// ErrConvergenceFailure is returned when Vincenty's iteration does not
	// settle within its iteration cap, typically for near-antipodal points.
	ErrConvergenceFailure = errors.New("geodesic distance did not converge")
)
