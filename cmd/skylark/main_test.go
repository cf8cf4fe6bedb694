package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/stackDawg/skylark2/internal/config"
	"github.com/stackDawg/skylark2/internal/domain"
)

func TestResourceFlags(t *testing.T) {
	kind, id, err := resourceFlags("P001", "")
	require.NoError(t, err)
	require.Equal(t, domain.ResourcePilot, kind)
	require.Equal(t, "P001", id)

	kind, _, err = resourceFlags("", "D001")
	require.NoError(t, err)
	require.Equal(t, domain.ResourceDrone, kind)

	_, _, err = resourceFlags("P001", "D001")
	require.Error(t, err)
	_, _, err = resourceFlags("", "")
	require.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("workspace", t.TempDir())
	viper.Set("driver", config.DriverMemory)
	viper.Set("log-level", "debug")
	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, config.DriverMemory, cfg.Store.Driver)
	require.Equal(t, "debug", cfg.Log.Level)

	viper.Set("driver", config.DriverPostgres)
	_, err = loadConfig()
	require.ErrorContains(t, err, "dsn")
}
