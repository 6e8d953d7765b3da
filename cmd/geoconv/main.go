// Command geoconv converts between geodetic and ECEF coordinates, computes
// geodesic distances and prints satellite ground tracks.
//
// Usage:
//
//	geoconv [flags] to-ecef LAT LON ALT
//	geoconv [flags] to-lla X Y Z
//	geoconv [flags] distance LAT1 LON1 LAT2 LON2
//	geoconv [flags] track -line1 L1 -line2 L2 [-start T] [-step D] [-count N]
//	geoconv [flags] models
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/geodesy/core"
	"github.com/signalsfoundry/geodesy/internal/logging"
	"github.com/signalsfoundry/geodesy/internal/rpc"
	"github.com/signalsfoundry/geodesy/model"
	"github.com/signalsfoundry/geodesy/track"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	model         string
	degrees       bool
	server        string
	maxIterations int
}

// backend is implemented by the in-process calculator and the gRPC client.
type backend interface {
	toECEF(ctx context.Context, g model.Geodetic, modelName string) (model.Position, error)
	toLLA(ctx context.Context, p model.Position, modelName string) (model.Geodetic, error)
	distance(ctx context.Context, a, b model.Geodetic, modelName string, maxIterations int) (float64, error)
	track(ctx context.Context, line1, line2 string, start time.Time, step time.Duration, count int, modelName string) ([]rpc.TrackPoint, error)
	models(ctx context.Context) ([]string, string, error)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("geoconv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.model, "model", "", "Ellipsoid model name (default WGS84)")
	fs.BoolVar(&opts.degrees, "degrees", false, "Read and print angles in degrees instead of radians")
	fs.StringVar(&opts.server, "server", "", "Address of a geodesy gRPC server; computes locally when empty")
	fs.IntVar(&opts.maxIterations, "max-iterations", 0, "Vincenty iteration cap for distance (0 = default)")
	logLevel := fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: geoconv [flags] to-ecef|to-lla|distance|track|models ...")
		fs.PrintDefaults()
		return 2
	}

	log := logging.New(logging.Config{Level: *logLevel, Output: stderr})
	b, closeFn, err := newBackend(opts.server, log)
	if err != nil {
		fmt.Fprintf(stderr, "geoconv: %v\n", err)
		return 1
	}
	defer closeFn()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "to-ecef":
		err = cmdToECEF(ctx, b, opts, rest, stdout)
	case "to-lla":
		err = cmdToLLA(ctx, b, opts, rest, stdout)
	case "distance":
		err = cmdDistance(ctx, b, opts, rest, stdout)
	case "track":
		err = cmdTrack(ctx, b, opts, rest, stdout, stderr)
	case "models":
		err = cmdModels(ctx, b, stdout)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(stderr, "geoconv %s: %v\n", cmd, err)
		return exitCode(err)
	}
	return 0
}

// exitCode is 2 for rejected input, whether it was rejected locally or by
// the server, and 1 for everything else.
func exitCode(err error) int {
	if errors.Is(err, model.ErrInvalidArgument) || status.Code(err) == codes.InvalidArgument {
		return 2
	}
	return 1
}

func newBackend(server string, log logging.Logger) (backend, func(), error) {
	if server == "" {
		return localBackend{calc: core.NewCalculator(core.WithLogger(log))}, func() {}, nil
	}
	conn, err := grpc.NewClient(server, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", server, err)
	}
	return remoteBackend{client: rpc.NewClient(conn)}, func() { _ = conn.Close() }, nil
}

func cmdToECEF(ctx context.Context, b backend, opts options, args []string, out io.Writer) error {
	v, err := parseFloats(args, 3)
	if err != nil {
		return err
	}
	g := model.Geodetic{Latitude: v[0], Longitude: v[1], Altitude: v[2]}
	if opts.degrees {
		g = model.GeodeticFromDegrees(v[0], v[1], v[2])
	}
	p, err := b.toECEF(ctx, g, opts.model)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%.4f %.4f %.4f\n", p.X, p.Y, p.Z)
	return nil
}

func cmdToLLA(ctx context.Context, b backend, opts options, args []string, out io.Writer) error {
	v, err := parseFloats(args, 3)
	if err != nil {
		return err
	}
	g, err := b.toLLA(ctx, model.Position{X: v[0], Y: v[1], Z: v[2]}, opts.model)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatGeodetic(g, opts.degrees))
	return nil
}

func cmdDistance(ctx context.Context, b backend, opts options, args []string, out io.Writer) error {
	v, err := parseFloats(args, 4)
	if err != nil {
		return err
	}
	if opts.degrees {
		for i := range v {
			v[i] *= math.Pi / 180
		}
	}
	d, err := b.distance(ctx,
		model.Geodetic{Latitude: v[0], Longitude: v[1]},
		model.Geodetic{Latitude: v[2], Longitude: v[3]},
		opts.model, opts.maxIterations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%.4f\n", d)
	return nil
}

func cmdTrack(ctx context.Context, b backend, opts options, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	fs.SetOutput(errOut)
	line1 := fs.String("line1", "", "TLE line 1")
	line2 := fs.String("line2", "", "TLE line 2")
	start := fs.String("start", "", "RFC3339 start time (default now)")
	step := fs.Duration("step", time.Minute, "Time between samples")
	count := fs.Int("count", 10, "Number of samples")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}

	t0 := time.Now().UTC()
	if *start != "" {
		parsed, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return fmt.Errorf("%w: start: %v", model.ErrInvalidArgument, err)
		}
		t0 = parsed
	}

	points, err := b.track(ctx, *line1, *line2, t0, *step, *count, opts.model)
	if err != nil {
		return err
	}
	for _, p := range points {
		fmt.Fprintf(out, "%s %s\n", p.Time.Format(time.RFC3339), formatGeodetic(p.Geodetic, opts.degrees))
	}
	return nil
}

func cmdModels(ctx context.Context, b backend, out io.Writer) error {
	names, def, err := b.models(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		marker := ""
		if n == def {
			marker = " (default)"
		}
		fmt.Fprintf(out, "%s%s\n", n, marker)
	}
	return nil
}

func parseFloats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%w: expected %d numbers, got %d", model.ErrInvalidArgument, n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", model.ErrInvalidArgument, a)
		}
		out[i] = v
	}
	return out, nil
}

func formatGeodetic(g model.Geodetic, degrees bool) string {
	if degrees {
		lat, lon := g.Degrees()
		return fmt.Sprintf("%.9f %.9f %.4f", lat, lon, g.Altitude)
	}
	return fmt.Sprintf("%.12f %.12f %.4f", g.Latitude, g.Longitude, g.Altitude)
}

type localBackend struct {
	calc *core.Calculator
}

func (l localBackend) toECEF(ctx context.Context, g model.Geodetic, m string) (model.Position, error) {
	return l.calc.GeodeticToCartesian(ctx, g.Latitude, g.Longitude, g.Altitude, m)
}

func (l localBackend) toLLA(ctx context.Context, p model.Position, m string) (model.Geodetic, error) {
	return l.calc.CartesianToGeodetic(ctx, p.X, p.Y, p.Z, m)
}

func (l localBackend) distance(ctx context.Context, a, b model.Geodetic, m string, maxIterations int) (float64, error) {
	return l.calc.GeodesicDistance(ctx, a.Latitude, a.Longitude, b.Latitude, b.Longitude, m, maxIterations)
}

func (l localBackend) track(ctx context.Context, line1, line2 string, start time.Time, step time.Duration, count int, m string) ([]rpc.TrackPoint, error) {
	ell, err := l.calc.Resolve(m)
	if err != nil {
		return nil, err
	}
	prop, err := track.NewPropagator(line1, line2, track.WithModel(ell))
	if err != nil {
		return nil, err
	}
	samples, err := prop.GroundTrack(ctx, start, step, count)
	if err != nil {
		return nil, err
	}
	points := make([]rpc.TrackPoint, len(samples))
	for i, s := range samples {
		points[i] = rpc.TrackPoint{Time: s.Time, Position: s.Position, Geodetic: s.Geodetic}
	}
	return points, nil
}

func (l localBackend) models(context.Context) ([]string, string, error) {
	def, err := l.calc.Resolve("")
	if err != nil {
		return nil, "", err
	}
	return l.calc.Models(), def.Name, nil
}

type remoteBackend struct {
	client *rpc.Client
}

func (r remoteBackend) toECEF(ctx context.Context, g model.Geodetic, m string) (model.Position, error) {
	return r.client.ToCartesian(ctx, g, m)
}

func (r remoteBackend) toLLA(ctx context.Context, p model.Position, m string) (model.Geodetic, error) {
	return r.client.ToGeodetic(ctx, p, m)
}

func (r remoteBackend) distance(ctx context.Context, a, b model.Geodetic, m string, maxIterations int) (float64, error) {
	return r.client.Distance(ctx, a, b, m, maxIterations)
}

func (r remoteBackend) track(ctx context.Context, line1, line2 string, start time.Time, step time.Duration, count int, m string) ([]rpc.TrackPoint, error) {
	return r.client.GroundTrack(ctx, line1, line2, start, step, count, m)
}

func (r remoteBackend) models(ctx context.Context) ([]string, string, error) {
	return r.client.ListModels(ctx)
}
