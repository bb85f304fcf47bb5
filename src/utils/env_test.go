package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEnvironmentVariables(t *testing.T) {
	t.Run("loads development file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DEV_ENV_FILENAME), []byte("IBKR_REST_URL=https://localhost:5000/v1/api\n"), 0o600))
		t.Setenv("GO_ENV", "development")
		t.Setenv("ENV", "")
		t.Setenv("IBKR_REST_URL", "")
		os.Unsetenv("IBKR_REST_URL")

		require.NoError(t, InitEnvironmentVariables(dir))

		value, err := GetEnv("IBKR_REST_URL")
		require.NoError(t, err)
		assert.Equal(t, "https://localhost:5000/v1/api", value)
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		t.Setenv("ENV", "")
		assert.NoError(t, InitEnvironmentVariables(t.TempDir()))
	})
}

func TestGetEnv(t *testing.T) {
	t.Setenv("OPTION_CHAIN_TEST_VAR", "")

	_, err := GetEnv("OPTION_CHAIN_TEST_VAR")
	assert.Error(t, err)
	assert.Equal(t, "8080", GetEnvOrDefault("OPTION_CHAIN_TEST_VAR", "8080"))

	t.Setenv("OPTION_CHAIN_TEST_VAR", "9090")
	assert.Equal(t, "9090", GetEnvOrDefault("OPTION_CHAIN_TEST_VAR", "8080"))
}
