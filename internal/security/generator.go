package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numberChars    = "0123456789"
	symbolChars    = "!@#$%^&*()+_-=}{[]|:;\"/?.><,`~"
	similarChars   = "ilLI|`oO0"
)

var (
	// ErrUnsatisfiablePolicy is returned when no secret can satisfy the policy.
	ErrUnsatisfiablePolicy = errors.New("secret policy cannot be satisfied")
	// ErrEntropy is returned when the random source fails.
	ErrEntropy = errors.New("random source failure")
)

// Policy describes the shape of a generated secret. Every enabled class
// contributes at least one character.
type Policy struct {
	Length         int
	Uppercase      bool
	Lowercase      bool
	Numbers        bool
	Symbols        bool
	ExcludeSimilar bool
}

// DefaultRecoveryPolicy is used for password recovery unless configured otherwise.
var DefaultRecoveryPolicy = Policy{
	Length:         10,
	Uppercase:      true,
	Lowercase:      true,
	Numbers:        true,
	Symbols:        true,
	ExcludeSimilar: true,
}

func (p Policy) classes() []string {
	var classes []string
	add := func(enabled bool, chars string) {
		if !enabled {
			return
		}
		if p.ExcludeSimilar {
			chars = strings.Map(func(r rune) rune {
				if strings.ContainsRune(similarChars, r) {
					return -1
				}
				return r
			}, chars)
		}
		classes = append(classes, chars)
	}
	add(p.Lowercase, lowercaseChars)
	add(p.Uppercase, uppercaseChars)
	add(p.Numbers, numberChars)
	add(p.Symbols, symbolChars)
	return classes
}

// Validate reports ErrUnsatisfiablePolicy for contradictory policies.
func (p Policy) Validate() error {
	classes := p.classes()
	switch {
	case len(classes) == 0:
		return fmt.Errorf("%w: no character class enabled", ErrUnsatisfiablePolicy)
	case p.Length <= 0:
		return fmt.Errorf("%w: length must be positive", ErrUnsatisfiablePolicy)
	case p.Length < len(classes):
		return fmt.Errorf("%w: length %d shorter than %d required classes", ErrUnsatisfiablePolicy, p.Length, len(classes))
	}
	return nil
}

// Satisfied reports whether secret could have been produced under the policy.
func (p Policy) Satisfied(secret string) bool {
	if len(secret) != p.Length {
		return false
	}
	classes := p.classes()
	pool := strings.Join(classes, "")
	for _, r := range secret {
		if !strings.ContainsRune(pool, r) {
			return false
		}
	}
	for _, class := range classes {
		if !strings.ContainsAny(secret, class) {
			return false
		}
	}
	return true
}

// SecretGenerator produces random secrets under a Policy.
type SecretGenerator interface {
	Generate(policy Policy) (string, error)
}

// RandomGenerator draws every character from a cryptographically secure source.
type RandomGenerator struct {
	reader io.Reader
}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{reader: rand.Reader}
}

func (g *RandomGenerator) Generate(policy Policy) (string, error) {
	if err := policy.Validate(); err != nil {
		return "", err
	}

	classes := policy.classes()
	pool := strings.Join(classes, "")
	out := make([]byte, 0, policy.Length)

	for _, class := range classes {
		c, err := g.pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < policy.Length {
		c, err := g.pick(pool)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so required characters do not sit at fixed positions.
	for i := len(out) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func (g *RandomGenerator) pick(chars string) (byte, error) {
	i, err := g.intn(len(chars))
	if err != nil {
		return 0, err
	}
	return chars[i], nil
}

func (g *RandomGenerator) intn(n int) (int, error) {
	v, err := rand.Int(g.reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return int(v.Int64()), nil
}

var _ SecretGenerator = (*RandomGenerator)(nil)
