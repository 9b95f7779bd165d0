package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsDefaults(t *testing.T) {
	s := NewSettings()
	assert.Equal(t, 0.95, s.Threshold)
	assert.Equal(t, 1e-9, s.Tolerance)
	assert.False(t, s.HasDelimiter)
	assert.False(t, s.JSON)
	assert.NoError(t, s.Validate())
}

func TestValidateRanges(t *testing.T) {
	s := NewSettings()
	s.Threshold = 0
	assert.Error(t, s.Validate())
	s.Threshold = 1.5
	assert.Error(t, s.Validate())
	s.Threshold = 1.0
	assert.NoError(t, s.Validate())

	s.Tolerance = -1
	assert.Error(t, s.Validate())
	s.Tolerance = 0
	assert.NoError(t, s.Validate())
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rvl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 0.8\ntolerance: 0.001\n"), 0o644))

	s := NewSettings()
	require.NoError(t, s.LoadDefaults(path))
	assert.Equal(t, 0.8, s.Threshold)
	assert.Equal(t, 0.001, s.Tolerance)
}

func TestLoadDefaultsEnvSubstitution(t *testing.T) {
	t.Setenv("RVL_TEST_THRESHOLD", "0.75")
	dir := t.TempDir()
	path := filepath.Join(dir, "rvl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: ${RVL_TEST_THRESHOLD}\n"), 0o644))

	s := NewSettings()
	require.NoError(t, s.LoadDefaults(path))
	assert.Equal(t, 0.75, s.Threshold)
	assert.Equal(t, 1e-9, s.Tolerance)
}

func TestParseDelimiterNamed(t *testing.T) {
	cases := map[string]byte{
		"comma":     ',',
		"COMMA":     ',',
		"tab":       '\t',
		"TaB":       '\t',
		"semicolon": ';',
		"pipe":      '|',
		"caret":     '^',
	}
	for in, want := range cases {
		got, err := ParseDelimiter(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got)
	}
}

func TestParseDelimiterHexAndLiteral(t *testing.T) {
	got, err := ParseDelimiter("0x2c")
	require.NoError(t, err)
	assert.Equal(t, byte(','), got)

	got, err = ParseDelimiter("0X09")
	require.NoError(t, err)
	assert.Equal(t, byte('\t'), got)

	got, err = ParseDelimiter(",")
	require.NoError(t, err)
	assert.Equal(t, byte(','), got)

	got, err = ParseDelimiter("|")
	require.NoError(t, err)
	assert.Equal(t, byte('|'), got)
}

func TestParseDelimiterRejections(t *testing.T) {
	rejected := []string{
		"", "0x2", "0x2g", `"`, "\n", "0x00", "0x80", "0x0A", "::", "§", `\t`,
	}
	for _, in := range rejected {
		_, err := ParseDelimiter(in)
		assert.Error(t, err, "input %q", in)
	}
}
