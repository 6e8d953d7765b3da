package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/geodesy/ellipsoid"
	"github.com/signalsfoundry/geodesy/internal/logging"
	"github.com/signalsfoundry/geodesy/model"
)

const tracerName = "github.com/signalsfoundry/geodesy/core"

// Operation names used for spans, logs and metrics labels.
const (
	OpToCartesian = "to_cartesian"
	OpToGeodetic  = "to_geodetic"
	OpDistance    = "distance"
)

// Algorithm names reported to Recorder.ObserveIterations.
const (
	AlgorithmBowring  = "bowring"
	AlgorithmVincenty = "vincenty"
)

// Recorder receives per-call telemetry. observability.Collector satisfies it.
type Recorder interface {
	ObserveOperation(operation, model, outcome string, seconds float64)
	ObserveIterations(algorithm string, iterations int)
}

// Calculator resolves ellipsoid names and runs the conversions and distance
// computation against them. It holds no per-call state and is safe for
// concurrent use.
type Calculator struct {
	registry      *ellipsoid.Registry
	defaultModel  string
	maxIterations int

	log      logging.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// CalculatorOption customises Calculator construction.
type CalculatorOption func(*Calculator)

// WithRegistry swaps the ellipsoid registry (defaults to ellipsoid.Default()).
func WithRegistry(r *ellipsoid.Registry) CalculatorOption {
	return func(c *Calculator) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithDefaultModel sets the model used when a call passes an empty name.
func WithDefaultModel(name string) CalculatorOption {
	return func(c *Calculator) {
		if strings.TrimSpace(name) != "" {
			c.defaultModel = name
		}
	}
}

// WithMaxIterations sets the Vincenty cap used when a call passes 0.
func WithMaxIterations(n int) CalculatorOption {
	return func(c *Calculator) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) CalculatorOption {
	return func(c *Calculator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder attaches an optional metrics recorder.
func WithRecorder(r Recorder) CalculatorOption {
	return func(c *Calculator) {
		c.recorder = r
	}
}

// WithTracerProvider sets where spans go (defaults to the otel global).
func WithTracerProvider(tp trace.TracerProvider) CalculatorOption {
	return func(c *Calculator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewCalculator builds a Calculator using WGS84 and the process-wide registry
// unless overridden.
func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		registry:      ellipsoid.Default(),
		defaultModel:  ellipsoid.DefaultModelName,
		maxIterations: DefaultMaxIterations,
		log:           logging.Noop(),
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// DefaultModel returns the model name used for empty model arguments.
func (c *Calculator) DefaultModel() string { return c.defaultModel }

// Models lists the registered ellipsoid names.
func (c *Calculator) Models() []string { return c.registry.Names() }

// Resolve returns the ellipsoid for name, falling back to the default model
// when name is empty.
func (c *Calculator) Resolve(name string) (ellipsoid.Model, error) {
	if strings.TrimSpace(name) == "" {
		name = c.defaultModel
	}
	return c.registry.Resolve(name)
}

// GeodeticToCartesian converts (lat, lon, alt) to ECEF metres on the named
// ellipsoid.
func (c *Calculator) GeodeticToCartesian(ctx context.Context, lat, lon, alt float64, modelName string) (model.Position, error) {
	ctx, span, start := c.begin(ctx, OpToCartesian, modelName)
	defer span.End()

	m, err := c.Resolve(modelName)
	if err != nil {
		return model.Position{}, c.fail(ctx, span, OpToCartesian, "", start, err)
	}
	g := model.Geodetic{Latitude: lat, Longitude: lon, Altitude: alt}
	if err := g.Validate(); err != nil {
		return model.Position{}, c.fail(ctx, span, OpToCartesian, m.Name, start, err)
	}

	p := GeodeticToCartesian(g, m)
	c.succeed(span, OpToCartesian, m.Name, start)
	return p, nil
}

// CartesianToGeodetic converts ECEF metres to geodetic coordinates on the
// named ellipsoid. Hitting the Bowring iteration cap is not an error; it is
// logged and the last estimate returned.
func (c *Calculator) CartesianToGeodetic(ctx context.Context, x, y, z float64, modelName string) (model.Geodetic, error) {
	ctx, span, start := c.begin(ctx, OpToGeodetic, modelName)
	defer span.End()

	m, err := c.Resolve(modelName)
	if err != nil {
		return model.Geodetic{}, c.fail(ctx, span, OpToGeodetic, "", start, err)
	}
	p, err := model.NewPosition(x, y, z)
	if err != nil {
		return model.Geodetic{}, c.fail(ctx, span, OpToGeodetic, m.Name, start, err)
	}

	res := Bowring(p, m)
	span.SetAttributes(
		attribute.Int("geodesy.iterations", res.Iterations),
		attribute.Bool("geodesy.converged", res.Converged),
	)
	if c.recorder != nil {
		c.recorder.ObserveIterations(AlgorithmBowring, res.Iterations)
	}
	if !res.Converged {
		logging.FromContext(ctx, c.log).Warn(ctx, "bowring iteration cap reached; returning last estimate",
			logging.String("model", m.Name),
			logging.Int("iterations", res.Iterations),
		)
	}

	c.succeed(span, OpToGeodetic, m.Name, start)
	return res.Geodetic, nil
}

// GeodesicDistance returns the surface distance in metres between two points
// on the named ellipsoid. maxIterations <= 0 selects the calculator's cap.
func (c *Calculator) GeodesicDistance(ctx context.Context, lat1, lon1, lat2, lon2 float64, modelName string, maxIterations int) (float64, error) {
	ctx, span, start := c.begin(ctx, OpDistance, modelName)
	defer span.End()

	m, err := c.Resolve(modelName)
	if err != nil {
		return 0, c.fail(ctx, span, OpDistance, "", start, err)
	}
	if maxIterations <= 0 {
		maxIterations = c.maxIterations
	}

	res, err := Vincenty(lat1, lon1, lat2, lon2, m, maxIterations)
	span.SetAttributes(attribute.Int("geodesy.iterations", res.Iterations))
	if c.recorder != nil && res.Iterations > 0 {
		c.recorder.ObserveIterations(AlgorithmVincenty, res.Iterations)
	}
	if err != nil {
		return 0, c.fail(ctx, span, OpDistance, m.Name, start, err)
	}

	c.succeed(span, OpDistance, m.Name, start)
	return res.Meters, nil
}

func (c *Calculator) begin(ctx context.Context, op, modelName string) (context.Context, trace.Span, time.Time) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := c.tracer.Start(ctx, "geodesy/"+op,
		trace.WithAttributes(attribute.String("geodesy.model", modelName)))
	return ctx, span, time.Now()
}

func (c *Calculator) succeed(span trace.Span, op, modelName string, start time.Time) {
	span.SetAttributes(attribute.String("geodesy.outcome", OutcomeOK))
	c.observe(op, modelName, OutcomeOK, start)
}

func (c *Calculator) fail(ctx context.Context, span trace.Span, op, modelName string, start time.Time, err error) error {
	outcome := Outcome(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("geodesy.outcome", outcome))
	c.observe(op, modelName, outcome, start)

	logging.FromContext(ctx, c.log).Debug(ctx, "geodesy operation failed",
		logging.String("operation", op),
		logging.String("model", modelName),
		logging.String("outcome", outcome),
		logging.Err(err),
	)
	return err
}

func (c *Calculator) observe(op, modelName, outcome string, start time.Time) {
	if c.recorder == nil {
		return
	}
	// Unresolved names are user input; keep them out of label values.
	if modelName == "" {
		modelName = "unresolved"
	}
	c.recorder.ObserveOperation(op, modelName, outcome, time.Since(start).Seconds())
}

// Outcome labels for metrics and spans.
const (
	OutcomeOK                 = "ok"
	OutcomeInvalidArgument    = "invalid_argument"
	OutcomeUnknownModel       = "unknown_model"
	OutcomeConvergenceFailure = "convergence_failure"
	OutcomeError              = "error"
)

// Outcome classifies err into one of the Outcome* labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, ErrUnknownModel):
		return OutcomeUnknownModel
	case errors.Is(err, ErrConvergenceFailure):
		return OutcomeConvergenceFailure
	default:
		return OutcomeError
	}
}
