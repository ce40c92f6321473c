package security

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestGenerate_DefaultRecoveryPolicy(t *testing.T) {
	g := NewRandomGenerator()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		secret, err := g.Generate(DefaultRecoveryPolicy)
		require.NoError(t, err)
		require.Len(t, secret, 10)
		assert.True(t, DefaultRecoveryPolicy.Satisfied(secret), "secret %q", secret)
		assert.False(t, strings.ContainsAny(secret, similarChars), "secret %q", secret)
		seen[secret] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}

func TestGenerate_SingleClass(t *testing.T) {
	g := NewRandomGenerator()

	secret, err := g.Generate(Policy{Length: 32, Numbers: true})
	require.NoError(t, err)
	assert.Len(t, secret, 32)
	for _, r := range secret {
		assert.Contains(t, numberChars, string(r))
	}
}

func TestGenerate_MinimumLength(t *testing.T) {
	g := NewRandomGenerator()
	p := Policy{Length: 4, Uppercase: true, Lowercase: true, Numbers: true, Symbols: true}

	for i := 0; i < 50; i++ {
		secret, err := g.Generate(p)
		require.NoError(t, err)
		assert.True(t, p.Satisfied(secret), "secret %q", secret)
	}
}

func TestGenerate_UnsatisfiablePolicy(t *testing.T) {
	g := NewRandomGenerator()

	cases := map[string]Policy{
		"no classes":        {Length: 10},
		"zero length":       {Length: 0, Numbers: true},
		"shorter than sets": {Length: 2, Uppercase: true, Numbers: true, Symbols: true},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := g.Generate(p)
			assert.ErrorIs(t, err, ErrUnsatisfiablePolicy)
		})
	}
}

func TestGenerate_EntropyFailure(t *testing.T) {
	g := &RandomGenerator{reader: failingReader{}}

	_, err := g.Generate(DefaultRecoveryPolicy)
	assert.ErrorIs(t, err, ErrEntropy)
}

func TestPolicySatisfied(t *testing.T) {
	p := Policy{Length: 4, Uppercase: true, Numbers: true}

	assert.True(t, p.Satisfied("AB12"))
	assert.False(t, p.Satisfied("ABCD"), "missing number")
	assert.False(t, p.Satisfied("AB1"), "wrong length")
	assert.False(t, p.Satisfied("ab12"), "lowercase not allowed")
}
