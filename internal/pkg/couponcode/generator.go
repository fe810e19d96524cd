// Package couponcode produces human-scannable coupon codes. The generator is
// an interface so services can inject a deterministic implementation in tests;
// code uniqueness is enforced by the database, not here.
package couponcode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// alphabet omits 0/O/1/I/L to keep codes unambiguous when read aloud or
// typed from a printed receipt.
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const defaultGroups = 3
const groupLen = 4

// Generator produces coupon codes.
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator draws codes from crypto/rand in the form FP-XXXX-XXXX-XXXX.
type RandomGenerator struct {
	prefix string
	groups int
}

// NewRandomGenerator builds a generator with the given code prefix. Groups
// below 2 are raised to the default to keep the collision space large enough
// for batch generation.
func NewRandomGenerator(prefix string, groups int) *RandomGenerator {
	if groups < 2 {
		groups = defaultGroups
	}
	if prefix == "" {
		prefix = "FP"
	}
	return &RandomGenerator{prefix: strings.ToUpper(prefix), groups: groups}
}

func (g *RandomGenerator) Generate() (string, error) {
	buf := make([]byte, g.groups*groupLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	parts := make([]string, 0, g.groups+1)
	parts = append(parts, g.prefix)
	for i := 0; i < g.groups; i++ {
		var sb strings.Builder
		for j := 0; j < groupLen; j++ {
			sb.WriteByte(alphabet[int(buf[i*groupLen+j])%len(alphabet)])
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "-"), nil
}

// Static returns a generator that always yields the given codes in order,
// for deterministic tests.
func Static(codes ...string) Generator {
	return &staticGenerator{codes: codes}
}

type staticGenerator struct {
	codes []string
	next  int
}

func (g *staticGenerator) Generate() (string, error) {
	if g.next >= len(g.codes) {
		return "", fmt.Errorf("static code generator exhausted after %d codes", len(g.codes))
	}
	code := g.codes[g.next]
	g.next++
	return code, nil
}
