package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/geodesy/core"
	"github.com/signalsfoundry/geodesy/internal/logging"
	"github.com/signalsfoundry/geodesy/internal/rpc"
	"github.com/signalsfoundry/geodesy/model"
)

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func fields(t *testing.T, line string) []float64 {
	t.Helper()
	var out []float64
	for _, f := range strings.Fields(line) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			t.Fatalf("parse %q: %v", f, err)
		}
		out = append(out, v)
	}
	return out
}

func TestToECEFOrigin(t *testing.T) {
	out, errOut, code := runCLI(t, "to-ecef", "0", "0", "0")
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if strings.TrimSpace(out) != "6378137.0000 0.0000 0.0000" {
		t.Fatalf("output = %q", out)
	}
}

func TestToLLADegrees(t *testing.T) {
	out, errOut, code := runCLI(t, "-degrees", "to-lla", "5117118.21", "-1087677.05", "3638574.7")
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	v := fields(t, out)
	if len(v) != 3 || math.Abs(v[0]-35) > 1e-6 || math.Abs(v[1]+12) > 1e-6 || math.Abs(v[2]-1234) > 1e-2 {
		t.Fatalf("output = %q", out)
	}
}

func TestDistanceDegrees(t *testing.T) {
	out, errOut, code := runCLI(t, "-degrees", "distance", "0", "0", "0", "1")
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if strings.TrimSpace(out) != "111319.4908" {
		t.Fatalf("output = %q, want 111319.4908", out)
	}
}

func TestDistanceAntipodalFails(t *testing.T) {
	_, errOut, code := runCLI(t, "distance", "0", "0", "0", strconv.FormatFloat(math.Pi, 'g', -1, 64))
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "did not converge") {
		t.Fatalf("stderr = %q", errOut)
	}
}

func TestInvalidInputExitCodes(t *testing.T) {
	cases := map[string][]string{
		"not a number":  {"to-ecef", "a", "0", "0"},
		"too few args":  {"to-lla", "1", "2"},
		"bad latitude":  {"distance", "3", "0", "0", "0"},
		"unknown cmd":   {"frobnicate"},
		"unknown model": {"-model", "toto", "to-ecef", "0", "0", "0"},
	}
	want := map[string]int{
		"not a number":  2,
		"too few args":  2,
		"bad latitude":  2,
		"unknown cmd":   1,
		"unknown model": 1,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, code := runCLI(t, args...); code != want[name] {
				t.Fatalf("exit code = %d, want %d", code, want[name])
			}
		})
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	srv := grpc.NewServer()
	rpc.RegisterGeodesyServer(srv, rpc.NewService(core.NewCalculator(), logging.Noop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestRemoteMatchesLocal(t *testing.T) {
	addr := startServer(t)

	cases := map[string]struct {
		args []string
		code int
	}{
		"distance":      {[]string{"-degrees", "distance", "0", "0", "0", "1"}, 0},
		"to-ecef":       {[]string{"to-ecef", "0", "0", "0"}, 0},
		"bad latitude":  {[]string{"distance", "3", "0", "0", "0"}, 2},
		"not a number":  {[]string{"to-ecef", "a", "0", "0"}, 2},
		"unknown model": {[]string{"-model", "toto", "to-ecef", "0", "0", "0"}, 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			localOut, _, localCode := runCLI(t, tc.args...)
			remoteOut, errOut, remoteCode := runCLI(t, append([]string{"-server", addr}, tc.args...)...)
			if localCode != tc.code || remoteCode != tc.code {
				t.Fatalf("exit codes local=%d remote=%d, want %d (stderr %q)", localCode, remoteCode, tc.code, errOut)
			}
			if localOut != remoteOut {
				t.Fatalf("remote output %q, local %q", remoteOut, localOut)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", model.ErrInvalidArgument), 2},
		{status.Error(codes.InvalidArgument, "latitudes must lie within ±90°"), 2},
		{status.Error(codes.NotFound, "unknown ellipsoid model"), 1},
		{core.ErrConvergenceFailure, 1},
		{errors.New("boom"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestModelsMarksDefault(t *testing.T) {
	out, _, code := runCLI(t, "models")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, "WGS84 (default)") || !strings.Contains(out, "SPHERICAL\n") {
		t.Fatalf("output = %q", out)
	}
}

func TestTrack(t *testing.T) {
	out, errOut, code := runCLI(t, "-degrees", "track",
		"-line1", "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990",
		"-line2", "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760",
		"-start", "2021-10-02T14:11:00Z",
		"-step", "2m",
		"-count", "3",
	)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "2021-10-02T14:13:00Z ") {
		t.Fatalf("second sample = %q", lines[1])
	}
	v := fields(t, strings.SplitN(lines[0], " ", 2)[1])
	if math.Abs(v[0]) > 51.7 || v[2] < 380e3 || v[2] > 460e3 {
		t.Fatalf("first sample = %v", v)
	}
}
