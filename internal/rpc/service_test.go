package rpc

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geodesy/core"
	"github.com/signalsfoundry/geodesy/internal/logging"
	"github.com/signalsfoundry/geodesy/internal/observability"
	"github.com/signalsfoundry/geodesy/model"
)

const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

type testEnv struct {
	client    *Client
	conn      *grpc.ClientConn
	collector *observability.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	log := logging.Noop()
	calc := core.NewCalculator(core.WithLogger(log), core.WithRecorder(collector))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
		collector.UnaryServerInterceptor(),
	))
	RegisterGeodesyServer(srv, NewService(calc, log))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &testEnv{client: NewClient(conn), conn: conn, collector: collector}
}

func (e *testEnv) call(t *testing.T, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	out := new(structpb.Struct)
	err = e.conn.Invoke(context.Background(), "/"+ServiceName+"/"+method, req, out)
	return out, err
}

func dms(deg, min, sec float64) float64 {
	v := math.Abs(deg) + min/60 + sec/3600
	return math.Copysign(v, deg) * math.Pi / 180
}

func TestToCartesianOrigin(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.call(t, MethodToCartesian, map[string]any{
		"latitude": 0, "longitude": 0, "altitude": 0,
	})
	if err != nil {
		t.Fatalf("ToCartesian: %v", err)
	}
	f := out.GetFields()
	if f["x"].GetNumberValue() != 6378137.0 || f["model"].GetStringValue() != "WGS84" {
		t.Fatalf("response = %v", out)
	}
}

func TestToGeodeticInDegrees(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.call(t, MethodToGeodetic, map[string]any{
		"x": 5117118.21, "y": -1087677.05, "z": 3638574.7,
		"model": "wgs84", "degrees": true,
	})
	if err != nil {
		t.Fatalf("ToGeodetic: %v", err)
	}
	f := out.GetFields()
	if math.Abs(f["latitude"].GetNumberValue()-35) > 1e-6 ||
		math.Abs(f["longitude"].GetNumberValue()+12) > 1e-6 ||
		math.Abs(f["altitude"].GetNumberValue()-1234) > 1e-2 {
		t.Fatalf("response = %v", out)
	}
}

func TestClientRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := model.Geodetic{Latitude: 0.61, Longitude: -0.2, Altitude: 1234}
	p, err := env.client.ToCartesian(ctx, in, "GRS80")
	if err != nil {
		t.Fatalf("ToCartesian: %v", err)
	}
	g, err := env.client.ToGeodetic(ctx, p, "GRS80")
	if err != nil {
		t.Fatalf("ToGeodetic: %v", err)
	}
	if math.Abs(g.Latitude-in.Latitude) > 1e-8 || math.Abs(g.Longitude-in.Longitude) > 1e-8 || math.Abs(g.Altitude-in.Altitude) > 1e-4 {
		t.Fatalf("round trip = %v, want %v", g, in)
	}
}

func TestClientDistance(t *testing.T) {
	env := newTestEnv(t)
	from := model.Geodetic{Latitude: dms(-37, 57, 3.72030), Longitude: dms(144, 25, 29.52440)}
	to := model.Geodetic{Latitude: dms(-37, 39, 10.15610), Longitude: dms(143, 55, 35.38390)}

	d, err := env.client.Distance(context.Background(), from, to, "", 0)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if math.Abs(d-54972.2711) > 1e-3 {
		t.Fatalf("Distance = %v, want 54972.2711", d)
	}

	if got := testutil.ToFloat64(env.collector.Operations.WithLabelValues(core.OpDistance, "WGS84", core.OutcomeOK)); got != 1 {
		t.Fatalf("distance operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(env.collector.RPCRequests.WithLabelValues("GeodesyService", MethodDistance, "OK")); got != 1 {
		t.Fatalf("rpc requests = %v, want 1", got)
	}
}

func TestErrorCodes(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name   string
		method string
		in     map[string]any
		want   codes.Code
	}{
		{"antipodal", MethodDistance, map[string]any{"lat1": 0, "lon1": 0, "lat2": 0, "lon2": math.Pi}, codes.FailedPrecondition},
		{"unknown model", MethodToCartesian, map[string]any{"latitude": 0, "longitude": 0, "altitude": 0, "model": "toto"}, codes.NotFound},
		{"unknown model on distance", MethodDistance, map[string]any{"lat1": 0, "lon1": 0, "lat2": 0, "lon2": 0, "model": "toto"}, codes.NotFound},
		{"missing field", MethodToGeodetic, map[string]any{"x": 1, "y": 2}, codes.InvalidArgument},
		{"string coordinate", MethodToGeodetic, map[string]any{"x": "1", "y": 2, "z": 3}, codes.InvalidArgument},
		{"latitude out of range", MethodDistance, map[string]any{"lat1": 2, "lon1": 0, "lat2": 0, "lon2": 0}, codes.InvalidArgument},
		{"fractional cap", MethodDistance, map[string]any{"lat1": 0, "lon1": 0, "lat2": 0, "lon2": 1, "max_iterations": 2.5}, codes.InvalidArgument},
		{"bad tle", MethodGroundTrack, map[string]any{"line1": "1 short", "line2": "2 short"}, codes.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.call(t, tc.method, tc.in)
			if got := status.Code(err); got != tc.want {
				t.Fatalf("code = %s (%v), want %s", got, err, tc.want)
			}
		})
	}
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t)
	names, def, err := env.client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if def != "WGS84" {
		t.Fatalf("default = %q, want WGS84", def)
	}
	want := []string{"GRS80", "SPHERICAL", "WGS72", "WGS84"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestClientGroundTrack(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2021, 10, 2, 14, 11, 0, 0, time.UTC)

	points, err := env.client.GroundTrack(context.Background(), issLine1, issLine2, start, 30*time.Second, 4, "")
	if err != nil {
		t.Fatalf("GroundTrack: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("len(points) = %d, want 4", len(points))
	}
	for i, p := range points {
		if want := start.Add(time.Duration(i) * 30 * time.Second); !p.Time.Equal(want) {
			t.Fatalf("point %d time = %v, want %v", i, p.Time, want)
		}
		if p.Geodetic.Altitude < 380e3 || p.Geodetic.Altitude > 460e3 {
			t.Fatalf("point %d altitude = %v", i, p.Geodetic.Altitude)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDMetadataKey, "req-123")

	var header metadata.MD
	if _, _, err := env.client.ListModels(ctx, grpc.Header(&header)); err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if got := header.Get(RequestIDMetadataKey); len(got) != 1 || got[0] != "req-123" {
		t.Fatalf("x-request-id header = %v, want [req-123]", got)
	}

	header = nil
	if _, _, err := env.client.ListModels(context.Background(), grpc.Header(&header)); err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if got := header.Get(RequestIDMetadataKey); len(got) != 1 || got[0] == "" {
		t.Fatalf("expected a generated request id, got %v", got)
	}
}
