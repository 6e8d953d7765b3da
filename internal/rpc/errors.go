package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/geodesy/core"
	"github.com/signalsfoundry/geodesy/ellipsoid"
	"github.com/signalsfoundry/geodesy/track"
)

// ToStatusError maps geodesy errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, core.ErrUnknownModel):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, core.ErrInvalidArgument),
		errors.Is(err, ellipsoid.ErrInvalidModel):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrConvergenceFailure),
		errors.Is(err, track.ErrPropagation):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ellipsoid.ErrModelExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
