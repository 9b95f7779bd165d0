package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdrvl/rvl/pkg/config"
)

func TestBuildSettingsDefaults(t *testing.T) {
	settings, err := buildSettings(config.DefaultThreshold, config.DefaultTolerance, "", "", false)
	require.NoError(t, err)
	assert.Equal(t, 0.95, settings.Threshold)
	assert.Equal(t, 1e-9, settings.Tolerance)
	assert.False(t, settings.HasDelimiter)
}

func TestBuildSettingsFlagOverrides(t *testing.T) {
	settings, err := buildSettings(0.8, 0.001, "id", "tab", true)
	require.NoError(t, err)
	assert.Equal(t, 0.8, settings.Threshold)
	assert.Equal(t, 0.001, settings.Tolerance)
	assert.Equal(t, "id", settings.Key)
	assert.True(t, settings.HasDelimiter)
	assert.Equal(t, byte('\t'), settings.Delimiter)
	assert.True(t, settings.JSON)
}

func TestBuildSettingsRejectsInvalidValues(t *testing.T) {
	_, err := buildSettings(1.5, config.DefaultTolerance, "", "", false)
	assert.Error(t, err)

	_, err = buildSettings(config.DefaultThreshold, -1, "", "", false)
	assert.Error(t, err)

	_, err = buildSettings(config.DefaultThreshold, config.DefaultTolerance, "", `\t`, false)
	assert.Error(t, err)
}
