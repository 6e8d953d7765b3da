package ellipsoid

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func approx(got, want, rel float64) bool {
	return math.Abs(got-want) <= rel*math.Abs(want)+1e-12
}

func TestResolveWGS84(t *testing.T) {
	m, err := Resolve("WGS84")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"a", m.A, 6378137.0},
		{"f", m.F, 1 / 298.257223563},
		{"b", m.B, 6356752.314245179497563967},
		{"e", m.E, 0.081819190842622},
		{"mu", m.Mu, 3.986005e14},
		{"j2", m.J2, 1.08263e-3},
		{"rotation", m.RotationRate, 7.292115e-5},
	}
	for _, c := range checks {
		if !approx(c.got, c.want, 1e-6) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"wgs84", " Wgs84 ", "WGS84"} {
		m, err := Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		if m.Name != "WGS84" {
			t.Fatalf("Resolve(%q).Name = %q, want WGS84", name, m.Name)
		}
	}
}

func TestResolveUnknownModel(t *testing.T) {
	if _, err := Resolve("toto"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("Resolve(toto) error = %v, want ErrUnknownModel", err)
	}
	if _, err := Resolve(""); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("Resolve(\"\") error = %v, want ErrUnknownModel", err)
	}
}

func TestSphericalModelHasNoEccentricity(t *testing.T) {
	m, err := Resolve("spherical")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.B != m.A || m.E != 0 || m.EP2() != 0 {
		t.Fatalf("spherical model = %#v, want b == a and e == 0", m)
	}
}

func TestRegisterCustomModel(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Model{Name: "mars", A: 3396190, F: 1 / 169.894447}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	m, err := r.Resolve("MARS")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !approx(m.B, (1-m.F)*m.A, 1e-12) {
		t.Fatalf("derived b = %v, want %v", m.B, (1-m.F)*m.A)
	}
	if m.E <= 0 {
		t.Fatalf("derived e = %v, want > 0", m.E)
	}

	if err := r.Register(Model{Name: "Mars", A: 1}); !errors.Is(err, ErrModelExists) {
		t.Fatalf("duplicate Register error = %v, want ErrModelExists", err)
	}

	// The process-wide registry is untouched.
	if _, err := Resolve("mars"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("default registry leaked custom model: %v", err)
	}
}

func TestRegisterRejectsInvalidParameters(t *testing.T) {
	r := NewRegistry()
	cases := []Model{
		{Name: "", A: 1},
		{Name: "neg", A: -1},
		{Name: "flat", A: 1, F: 1},
		{Name: "negf", A: 1, F: -0.1},
	}
	for _, m := range cases {
		if err := r.Register(m); !errors.Is(err, ErrInvalidModel) {
			t.Errorf("Register(%#v) error = %v, want ErrInvalidModel", m, err)
		}
	}
}

func TestNamesSorted(t *testing.T) {
	names := NewRegistry().Names()
	want := []string{"GRS80", "SPHERICAL", "WGS72", "WGS84"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names = %v, want %v", names, want)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				_ = r.Register(New("custom", 6378137, 0.003, 0))
				return
			}
			if _, err := r.Resolve("WGS84"); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if _, err := r.Resolve("custom"); err != nil {
		t.Fatalf("custom model missing after concurrent Register: %v", err)
	}
}
