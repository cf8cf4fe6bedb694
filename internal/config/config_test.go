package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, 3, cfg.Engine.MaxReplacementOptions)
	require.False(t, cfg.Engine.ProtectUrgentAssignments)
	require.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("store:\n  driver: memory\nengine:\n  protect_urgent_assignments: true\n"))
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.True(t, cfg.Engine.ProtectUrgentAssignments)
	require.Equal(t, 3, cfg.Engine.MaxReplacementOptions)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"driver":   "store:\n  driver: mongo\n",
		"postgres": "store:\n  driver: postgres\n",
		"redis":    "store:\n  driver: redis\n",
		"options":  "engine:\n  max_replacement_options: 0\n",
		"base":     "server:\n  base_path: v0\n",
		"format":   "log:\n  format: xml\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.ErrorContains(t, err, "not found")

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
