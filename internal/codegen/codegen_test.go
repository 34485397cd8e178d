package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noneTaken([]string) (map[string]bool, error) { return nil, nil }

func TestCodeUsesAlphabet(t *testing.T) {
	g := New(6)
	for i := 0; i < 200; i++ {
		c, err := g.Code()
		require.NoError(t, err)
		require.Len(t, c, 6)
		for _, r := range c {
			assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q", r)
		}
	}
}

func TestBatchUnique(t *testing.T) {
	g := New(6)
	codes, err := g.Batch(50, noneTaken)
	require.NoError(t, err)
	require.Len(t, codes, 50)

	seen := map[string]bool{}
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}

func TestBatchSkipsIssuedCodes(t *testing.T) {
	seq := []string{"AAAAAA", "BBBBBB", "AAAAAA", "CCCCCC"}
	g := New(6)
	g.rnd = func() (string, error) {
		c := seq[0]
		seq = seq[1:]
		return c, nil
	}

	codes, err := g.Batch(2, func(c []string) (map[string]bool, error) {
		return map[string]bool{"BBBBBB": true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAAA", "CCCCCC"}, codes)
}

func TestBatchExhausted(t *testing.T) {
	g := New(6)
	g.rnd = func() (string, error) { return "AAAAAA", nil }

	_, err := g.Batch(3, noneTaken)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestBatchPropagatesLookupError(t *testing.T) {
	g := New(6)
	lookupErr := errors.New("db down")

	_, err := g.Batch(1, func([]string) (map[string]bool, error) { return nil, lookupErr })
	assert.ErrorIs(t, err, lookupErr)
}
