package rpc

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geodesy/model"
)

// Request field names shared by the server and Client.
const (
	fieldLatitude      = "latitude"
	fieldLongitude     = "longitude"
	fieldAltitude      = "altitude"
	fieldX             = "x"
	fieldY             = "y"
	fieldZ             = "z"
	fieldLat1          = "lat1"
	fieldLon1          = "lon1"
	fieldLat2          = "lat2"
	fieldLon2          = "lon2"
	fieldModel         = "model"
	fieldDegrees       = "degrees"
	fieldMaxIterations = "max_iterations"
	fieldMeters        = "meters"
	fieldLine1         = "line1"
	fieldLine2         = "line2"
	fieldStart         = "start"
	fieldStepSeconds   = "step_seconds"
	fieldCount         = "count"
	fieldSamples       = "samples"
	fieldTime          = "time"
	fieldModels        = "models"
	fieldDefault       = "default"
)

// request wraps an incoming Struct. A nil Struct behaves as empty.
type request struct {
	fields map[string]*structpb.Value
}

func newRequest(s *structpb.Struct) request {
	return request{fields: s.GetFields()}
}

// number returns a required numeric field. Values of any other kind are
// reported as invalid arguments.
func (r request) number(key string) (float64, error) {
	v, ok := r.fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", model.ErrInvalidArgument, key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: field %q must be a number", model.ErrInvalidArgument, key)
	}
	return n.NumberValue, nil
}

func (r request) optionalNumber(key string, def float64) (float64, error) {
	if _, ok := r.fields[key]; !ok {
		return def, nil
	}
	return r.number(key)
}

func (r request) integer(key string, def int) (int, error) {
	f, err := r.optionalNumber(key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: field %q must be an integer", model.ErrInvalidArgument, key)
	}
	return int(f), nil
}

func (r request) str(key string) (string, error) {
	v, ok := r.fields[key]
	if !ok {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string", model.ErrInvalidArgument, key)
	}
	return s.StringValue, nil
}

func (r request) boolean(key string) (bool, error) {
	v, ok := r.fields[key]
	if !ok {
		return false, nil
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("%w: field %q must be a bool", model.ErrInvalidArgument, key)
	}
	return b.BoolValue, nil
}

func (r request) timestamp(key string, def time.Time) (time.Time, error) {
	raw, err := r.str(key)
	if err != nil || raw == "" {
		return def, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %q: %v", model.ErrInvalidArgument, key, err)
	}
	return t, nil
}

// angles reads the named angle fields, converting from degrees when asked.
func (r request) angles(degrees bool, keys ...string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, err := r.number(k)
		if err != nil {
			return nil, err
		}
		if degrees {
			v *= math.Pi / 180
		}
		out[i] = v
	}
	return out, nil
}

func positionStruct(p model.Position, modelName string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldX:     p.X,
		fieldY:     p.Y,
		fieldZ:     p.Z,
		fieldModel: modelName,
	})
}

func geodeticFields(g model.Geodetic, degrees bool) map[string]any {
	lat, lon := g.Latitude, g.Longitude
	if degrees {
		lat, lon = g.Degrees()
	}
	return map[string]any{
		fieldLatitude:  lat,
		fieldLongitude: lon,
		fieldAltitude:  g.Altitude,
	}
}

// The helpers below decode responses on the client side.

func responseNumber(s *structpb.Struct, key string) (float64, error) {
	return newRequest(s).number(key)
}

func responsePosition(s *structpb.Struct) (model.Position, error) {
	r := newRequest(s)
	x, err := r.number(fieldX)
	if err != nil {
		return model.Position{}, err
	}
	y, err := r.number(fieldY)
	if err != nil {
		return model.Position{}, err
	}
	z, err := r.number(fieldZ)
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{X: x, Y: y, Z: z}, nil
}

func responseGeodetic(s *structpb.Struct) (model.Geodetic, error) {
	r := newRequest(s)
	lat, err := r.number(fieldLatitude)
	if err != nil {
		return model.Geodetic{}, err
	}
	lon, err := r.number(fieldLongitude)
	if err != nil {
		return model.Geodetic{}, err
	}
	alt, err := r.number(fieldAltitude)
	if err != nil {
		return model.Geodetic{}, err
	}
	return model.Geodetic{Latitude: lat, Longitude: lon, Altitude: alt}, nil
}
