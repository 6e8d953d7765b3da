// Package ellipsoid holds the reference Earth ellipsoids that the geodesy
// algorithms are parameterised by.
package ellipsoid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// DefaultModelName is the ellipsoid used when a caller does not name one.
const DefaultModelName = "WGS84"

const (
	// EarthMu is the Earth's gravitational parameter in m^3/s^2.
	EarthMu = 3.986004418e14
	// EarthRotationRate is the WGS84 Earth rotation rate in rad/s.
	EarthRotationRate = 7.292115e-5
)

var (
	// ErrUnknownModel is returned when a name has no registry entry.
	ErrUnknownModel = errors.New("unknown ellipsoid model")
	// ErrModelExists is returned when registering a duplicate name.
	ErrModelExists = errors.New("ellipsoid model already registered")
	// ErrInvalidModel is returned when a model's parameters fail validation.
	ErrInvalidModel = errors.New("invalid ellipsoid model")
)

// Model is a resolved ellipsoid parameter set. B and E are derived from A and
// F when the model is built and never change afterwards.
type Model struct {
	Name         string  `validate:"required"`
	A            float64 `validate:"gt=0"`       // semi-major axis, metres
	F            float64 `validate:"gte=0,lt=1"` // flattening
	B            float64                        // semi-minor axis, metres
	E            float64                        // first eccentricity
	Mu           float64 `validate:"gte=0"`
	J2           float64
	RotationRate float64
}

// New builds a Model from its defining parameters, deriving B and E.
func New(name string, a, f, j2 float64) Model {
	b := (1 - f) * a
	return Model{
		Name:         strings.ToUpper(strings.TrimSpace(name)),
		A:            a,
		F:            f,
		B:            b,
		E:            math.Sqrt((a*a - b*b) / (a * a)),
		Mu:           EarthMu,
		J2:           j2,
		RotationRate: EarthRotationRate,
	}
}

// E2 returns the first eccentricity squared.
func (m Model) E2() float64 { return m.E * m.E }

// EP2 returns the second eccentricity squared, e²/(1-e²).
func (m Model) EP2() float64 {
	e2 := m.E2()
	return e2 / (1 - e2)
}

// Builtin returns the ellipsoids every Registry starts with.
func Builtin() []Model {
	return []Model{
		New("WGS84", 6378137.0, 1/298.257223563, 1.08263e-3),
		New("SPHERICAL", 6378137.0, 0, 0),
		New("GRS80", 6378137.0, 1/298.257222101, 1.08263e-3),
		New("WGS72", 6378135.0, 1/298.26, 1.082616e-3),
	}
}

// Registry is a thread-safe name -> Model lookup. Names are matched
// case-insensitively.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]Model
	validate *validator.Validate
}

// NewRegistry constructs a registry seeded with the builtin ellipsoids.
func NewRegistry() *Registry {
	r := &Registry{
		models:   make(map[string]Model),
		validate: validator.New(),
	}
	for _, m := range Builtin() {
		r.models[m.Name] = m
	}
	return r
}

// Register adds a custom model. It returns an error if the parameters are
// invalid or the name is already taken.
func (r *Registry) Register(m Model) error {
	m.Name = normalise(m.Name)
	if err := r.validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if m.B == 0 {
		m.B = (1 - m.F) * m.A
	}
	if m.E == 0 && m.F != 0 {
		m.E = math.Sqrt((m.A*m.A - m.B*m.B) / (m.A * m.A))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.Name]; exists {
		return fmt.Errorf("%w: %q", ErrModelExists, m.Name)
	}
	r.models[m.Name] = m
	return nil
}

// Resolve returns the model registered under name.
func (r *Registry) Resolve(name string) (Model, error) {
	key := normalise(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[key]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownModel, key, strings.Join(r.namesLocked(), ", "))
	}
	return m, nil
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalise(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Resolve looks a model up in the process-wide registry.
func Resolve(name string) (Model, error) { return defaultRegistry.Resolve(name) }
