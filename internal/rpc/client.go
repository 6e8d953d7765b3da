package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geodesy/model"
)

// Client is a thin typed wrapper over a GeodesyService connection. All angles
// are radians.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ToCartesian calls GeodesyService.ToCartesian.
func (c *Client) ToCartesian(ctx context.Context, g model.Geodetic, modelName string, opts ...grpc.CallOption) (model.Position, error) {
	out, err := c.invoke(ctx, MethodToCartesian, map[string]any{
		fieldLatitude:  g.Latitude,
		fieldLongitude: g.Longitude,
		fieldAltitude:  g.Altitude,
		fieldModel:     modelName,
	}, opts...)
	if err != nil {
		return model.Position{}, err
	}
	return responsePosition(out)
}

// ToGeodetic calls GeodesyService.ToGeodetic.
func (c *Client) ToGeodetic(ctx context.Context, p model.Position, modelName string, opts ...grpc.CallOption) (model.Geodetic, error) {
	out, err := c.invoke(ctx, MethodToGeodetic, map[string]any{
		fieldX:     p.X,
		fieldY:     p.Y,
		fieldZ:     p.Z,
		fieldModel: modelName,
	}, opts...)
	if err != nil {
		return model.Geodetic{}, err
	}
	return responseGeodetic(out)
}

// Distance calls GeodesyService.Distance. maxIterations <= 0 uses the
// server default.
func (c *Client) Distance(ctx context.Context, from, to model.Geodetic, modelName string, maxIterations int, opts ...grpc.CallOption) (float64, error) {
	in := map[string]any{
		fieldLat1:  from.Latitude,
		fieldLon1:  from.Longitude,
		fieldLat2:  to.Latitude,
		fieldLon2:  to.Longitude,
		fieldModel: modelName,
	}
	if maxIterations > 0 {
		in[fieldMaxIterations] = maxIterations
	}
	out, err := c.invoke(ctx, MethodDistance, in, opts...)
	if err != nil {
		return 0, err
	}
	return responseNumber(out, fieldMeters)
}

// TrackPoint is one decoded GroundTrack sample.
type TrackPoint struct {
	Time     time.Time
	Position model.Position
	Geodetic model.Geodetic
}

// GroundTrack calls GeodesyService.GroundTrack.
func (c *Client) GroundTrack(ctx context.Context, line1, line2 string, start time.Time, step time.Duration, count int, modelName string, opts ...grpc.CallOption) ([]TrackPoint, error) {
	out, err := c.invoke(ctx, MethodGroundTrack, map[string]any{
		fieldLine1:       line1,
		fieldLine2:       line2,
		fieldStart:       start.UTC().Format(time.RFC3339Nano),
		fieldStepSeconds: step.Seconds(),
		fieldCount:       count,
		fieldModel:       modelName,
	}, opts...)
	if err != nil {
		return nil, err
	}

	list := out.GetFields()[fieldSamples].GetListValue().GetValues()
	points := make([]TrackPoint, 0, len(list))
	for i, v := range list {
		s := v.GetStructValue()
		pos, err := responsePosition(s)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		g, err := responseGeodetic(s)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		ts, err := newRequest(s).timestamp(fieldTime, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		points = append(points, TrackPoint{Time: ts, Position: pos, Geodetic: g})
	}
	return points, nil
}

// ListModels calls GeodesyService.ListModels and returns the model names and
// the server's default.
func (c *Client) ListModels(ctx context.Context, opts ...grpc.CallOption) ([]string, string, error) {
	out, err := c.invoke(ctx, MethodListModels, map[string]any{}, opts...)
	if err != nil {
		return nil, "", err
	}
	var names []string
	for _, v := range out.GetFields()[fieldModels].GetListValue().GetValues() {
		names = append(names, v.GetStructValue().GetFields()["name"].GetStringValue())
	}
	return names, out.GetFields()[fieldDefault].GetStringValue(), nil
}
