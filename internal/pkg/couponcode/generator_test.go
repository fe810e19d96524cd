package couponcode

import (
	"strings"
	"testing"
)

func TestRandomGeneratorFormat(t *testing.T) {
	g := NewRandomGenerator("FP", 3)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		parts := strings.Split(code, "-")
		if len(parts) != 4 || parts[0] != "FP" {
			t.Fatalf("unexpected code shape %q", code)
		}
		for _, p := range parts[1:] {
			if len(p) != 4 {
				t.Fatalf("group %q in %q has wrong length", p, code)
			}
			for _, c := range p {
				if !strings.ContainsRune(alphabet, c) {
					t.Fatalf("code %q contains %q outside the alphabet", code, c)
				}
			}
		}
		if seen[code] {
			t.Fatalf("duplicate code %q within 200 draws", code)
		}
		seen[code] = true
	}
}

func TestRandomGeneratorDefaults(t *testing.T) {
	g := NewRandomGenerator("", 0)
	code, err := g.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(code, "FP-") {
		t.Fatalf("expected default FP prefix, got %q", code)
	}
	if got := len(strings.Split(code, "-")); got != defaultGroups+1 {
		t.Fatalf("expected %d groups, got %d", defaultGroups, got-1)
	}
}

func TestStaticGenerator(t *testing.T) {
	g := Static("A", "B")
	for _, want := range []string{"A", "B"} {
		code, err := g.Generate()
		if err != nil || code != want {
			t.Fatalf("got %q, %v; want %q", code, err, want)
		}
	}
	if _, err := g.Generate(); err == nil {
		t.Fatalf("exhausted generator must error")
	}
}
