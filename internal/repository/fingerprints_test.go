package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRevision(t *testing.T) {
	lower := "89abcdef0123456789abcdef0123456789abcdef"

	got, err := canonicalRevision("89ABCDEF0123456789abcdef0123456789ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, lower, got)

	got, err = canonicalRevision(lower)
	require.NoError(t, err)
	assert.Equal(t, lower, got)

	_, err = canonicalRevision("89abcdef")
	assert.Error(t, err)
}
