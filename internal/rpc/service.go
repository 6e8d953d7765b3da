// Package rpc exposes the geodesy calculator over gRPC.
//
// Messages are google.protobuf.Struct values so that the service can be
// called from any gRPC client without generated stubs. Angles are radians
// unless the request sets "degrees": true.
package rpc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geodesy/core"
	"github.com/signalsfoundry/geodesy/internal/logging"
	"github.com/signalsfoundry/geodesy/track"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "geodesy.v1.GeodesyService"

// Method names, as they appear after the service name.
const (
	MethodToCartesian = "ToCartesian"
	MethodToGeodetic  = "ToGeodetic"
	MethodDistance    = "Distance"
	MethodGroundTrack = "GroundTrack"
	MethodListModels  = "ListModels"
)

// GeodesyServer is the server API for GeodesyService.
type GeodesyServer interface {
	ToCartesian(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToGeodetic(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Distance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GroundTrack(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListModels(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes GeodesyService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GeodesyServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodToCartesian, GeodesyServer.ToCartesian),
		unaryMethod(MethodToGeodetic, GeodesyServer.ToGeodetic),
		unaryMethod(MethodDistance, GeodesyServer.Distance),
		unaryMethod(MethodGroundTrack, GeodesyServer.GroundTrack),
		unaryMethod(MethodListModels, GeodesyServer.ListModels),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "geodesy/v1/geodesy.proto",
}

// RegisterGeodesyServer registers srv on s.
func RegisterGeodesyServer(s grpc.ServiceRegistrar, srv GeodesyServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryMethod(name string, call func(GeodesyServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GeodesyServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(GeodesyServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Service implements GeodesyServer on top of a core.Calculator.
type Service struct {
	calc *core.Calculator
	log  logging.Logger
}

// NewService constructs a Service. A nil calculator uses core defaults.
func NewService(calc *core.Calculator, log logging.Logger) *Service {
	if calc == nil {
		calc = core.NewCalculator()
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Service{calc: calc, log: log}
}

var _ GeodesyServer = (*Service)(nil)

// ToCartesian converts latitude/longitude/altitude to ECEF x/y/z.
func (s *Service) ToCartesian(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	modelName, degrees, err := s.common(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	ll, err := req.angles(degrees, fieldLatitude, fieldLongitude)
	if err != nil {
		return nil, ToStatusError(err)
	}
	alt, err := req.number(fieldAltitude)
	if err != nil {
		return nil, ToStatusError(err)
	}

	p, err := s.calc.GeodeticToCartesian(ctx, ll[0], ll[1], alt, modelName)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := positionStruct(p, s.modelName(modelName))
	return out, ToStatusError(err)
}

// ToGeodetic converts ECEF x/y/z to latitude/longitude/altitude.
func (s *Service) ToGeodetic(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	modelName, degrees, err := s.common(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	var xyz [3]float64
	for i, k := range []string{fieldX, fieldY, fieldZ} {
		if xyz[i], err = req.number(k); err != nil {
			return nil, ToStatusError(err)
		}
	}

	g, err := s.calc.CartesianToGeodetic(ctx, xyz[0], xyz[1], xyz[2], modelName)
	if err != nil {
		return nil, ToStatusError(err)
	}
	fields := geodeticFields(g, degrees)
	fields[fieldModel] = s.modelName(modelName)
	out, err := structpb.NewStruct(fields)
	return out, ToStatusError(err)
}

// Distance returns the Vincenty distance in metres between two points.
func (s *Service) Distance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	modelName, degrees, err := s.common(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	pts, err := req.angles(degrees, fieldLat1, fieldLon1, fieldLat2, fieldLon2)
	if err != nil {
		return nil, ToStatusError(err)
	}
	maxIter, err := req.integer(fieldMaxIterations, 0)
	if err != nil {
		return nil, ToStatusError(err)
	}

	d, err := s.calc.GeodesicDistance(ctx, pts[0], pts[1], pts[2], pts[3], modelName, maxIter)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := structpb.NewStruct(map[string]any{
		fieldMeters: d,
		fieldModel:  s.modelName(modelName),
	})
	return out, ToStatusError(err)
}

// GroundTrack propagates a TLE and returns sub-satellite points.
func (s *Service) GroundTrack(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	modelName, degrees, err := s.common(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	line1, err := req.str(fieldLine1)
	if err != nil {
		return nil, ToStatusError(err)
	}
	line2, err := req.str(fieldLine2)
	if err != nil {
		return nil, ToStatusError(err)
	}
	start, err := req.timestamp(fieldStart, time.Now().UTC())
	if err != nil {
		return nil, ToStatusError(err)
	}
	stepSeconds, err := req.optionalNumber(fieldStepSeconds, 60)
	if err != nil {
		return nil, ToStatusError(err)
	}
	count, err := req.integer(fieldCount, 1)
	if err != nil {
		return nil, ToStatusError(err)
	}

	m, err := s.calc.Resolve(modelName)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "geodesy/ground_track", m.Name,
		attribute.Int("geodesy.count", count),
		attribute.Float64("geodesy.step_seconds", stepSeconds),
	)
	defer span.End()

	prop, err := track.NewPropagator(line1, line2, track.WithModel(m))
	if err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}
	step := time.Duration(stepSeconds * float64(time.Second))
	samples, err := prop.GroundTrack(ctx, start, step, count)
	if err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, s.log).Warn(ctx, "ground track failed", logging.String("model", m.Name), logging.Err(err))
		return nil, ToStatusError(err)
	}

	list := make([]any, 0, len(samples))
	for _, smp := range samples {
		f := geodeticFields(smp.Geodetic, degrees)
		f[fieldTime] = smp.Time.Format(time.RFC3339)
		f[fieldX] = smp.Position.X
		f[fieldY] = smp.Position.Y
		f[fieldZ] = smp.Position.Z
		list = append(list, f)
	}
	out, err := structpb.NewStruct(map[string]any{
		fieldSamples: list,
		fieldModel:   m.Name,
	})
	return out, ToStatusError(err)
}

// ListModels returns the registered ellipsoids and their parameters.
func (s *Service) ListModels(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	names := s.calc.Models()
	models := make([]any, 0, len(names))
	for _, name := range names {
		m, err := s.calc.Resolve(name)
		if err != nil {
			// Registries never shrink.
			continue
		}
		models = append(models, map[string]any{
			"name":          m.Name,
			"a":             m.A,
			"f":             m.F,
			"b":             m.B,
			"e":             m.E,
			"mu":            m.Mu,
			"j2":            m.J2,
			"rotation_rate": m.RotationRate,
		})
	}
	out, err := structpb.NewStruct(map[string]any{
		fieldModels:  models,
		fieldDefault: s.modelName(""),
	})
	return out, ToStatusError(err)
}

func (s *Service) common(req request) (string, bool, error) {
	modelName, err := req.str(fieldModel)
	if err != nil {
		return "", false, err
	}
	degrees, err := req.boolean(fieldDegrees)
	if err != nil {
		return "", false, err
	}
	return modelName, degrees, nil
}

// modelName reports the canonical name of a model that has already been
// resolved successfully by the calculator.
func (s *Service) modelName(name string) string {
	m, err := s.calc.Resolve(name)
	if err != nil {
		return name
	}
	return m.Name
}
