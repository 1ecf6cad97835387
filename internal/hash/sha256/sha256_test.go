package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Specoptor/trendyol/internal/harvest"
)

func TestHashKnownDigests(t *testing.T) {
	t.Parallel()

	var h harvest.Hasher = New()
	for input, want := range map[string]string{
		"":            "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"hello world": "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
	} {
		got, err := h.Hash([]byte(input))
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", input)
	}
}

func TestHashDistinguishesArtifacts(t *testing.T) {
	t.Parallel()

	a, err := New().Hash([]byte(`{"entries":{}}`))
	require.NoError(t, err)
	b, err := New().Hash([]byte(`{"entries":{} }`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}
