package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BM1366", cfg.AsicModel)

	_, err = os.Stat(path)
	require.NoError(t, err, "expected config file to be written")

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}

func TestSave_RotatesExistingFileToBak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.AsicModel = "BM1368"
	require.NoError(t, Save(path, cfg))

	cfg.AsicModel = "BM1370"
	require.NoError(t, Save(path, cfg))

	_, err := os.Stat(path + ".bak")
	require.NoError(t, err, "expected .bak file")

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BM1370", reloaded.AsicModel)
}

func TestLoad_OverridesOnlySetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `asic_model = "BM1397"
serial_port = "/dev/ttyACM0"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BM1397", cfg.AsicModel)
	assert.Equal(t, "/dev/ttyACM0", cfg.SerialPort)
	// Fields absent from the file keep their built-in defaults.
	assert.Equal(t, Default().UserAgent, cfg.UserAgent)
}
