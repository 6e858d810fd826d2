package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("OVERLAP_TEST_STR", "value")
	t.Setenv("OVERLAP_TEST_INT", "42")
	t.Setenv("OVERLAP_TEST_BAD_INT", "forty")
	t.Setenv("OVERLAP_TEST_FLOAT", "2.5")
	t.Setenv("OVERLAP_TEST_BOOL", "true")

	assert.Equal(t, "value", GetEnv("OVERLAP_TEST_STR", "default"))
	assert.Equal(t, "default", GetEnv("OVERLAP_TEST_MISSING", "default"))
	assert.Equal(t, 42, GetEnvInt("OVERLAP_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("OVERLAP_TEST_BAD_INT", 1))
	assert.Equal(t, 2.5, GetEnvFloat("OVERLAP_TEST_FLOAT", 1.0))
	assert.True(t, GetEnvBool("OVERLAP_TEST_BOOL", false))
	assert.False(t, GetEnvBool("OVERLAP_TEST_MISSING", false))
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OVERLAP_DOTENV_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("OVERLAP_DOTENV_KEY") })

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-file", GetEnv("OVERLAP_DOTENV_KEY", ""))

	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}
