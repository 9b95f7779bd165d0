// Package config holds the comparison settings threaded through the
// pipeline and the CLI/server surfaces: coverage threshold, per-cell
// tolerance, forced delimiter, key column, and output mode.
//
// Defaults can come from an optional YAML file (RVL_CONFIG) with ${ENV}
// substitution; explicit flags always win.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cmdrvl/rvl/pkg/errors"
)

const (
	// DefaultThreshold is the coverage target for REAL CHANGE.
	DefaultThreshold = 0.95
	// DefaultTolerance is the per-cell noise floor.
	DefaultTolerance = 1e-9
)

// Settings are the resolved comparison options for one run.
type Settings struct {
	// Threshold is the coverage target, 0 < x <= 1.
	Threshold float64
	// Tolerance is the per-cell noise floor, x >= 0.
	Tolerance float64
	// Key aligns rows by this column when non-empty (raw flag value,
	// decoded by the alignment engine).
	Key string
	// Delimiter forces a delimiter for both files when HasDelimiter.
	Delimiter    byte
	HasDelimiter bool
	// JSON selects the single-object JSON output.
	JSON bool
}

// Defaults is the optional YAML defaults file shape.
type Defaults struct {
	Threshold *float64 `yaml:"threshold"`
	Tolerance *float64 `yaml:"tolerance"`
}

// NewSettings returns settings at compiled-in defaults.
func NewSettings() Settings {
	return Settings{Threshold: DefaultThreshold, Tolerance: DefaultTolerance}
}

// Validate checks the numeric ranges.
func (s Settings) Validate() error {
	if !(s.Threshold > 0 && s.Threshold <= 1) {
		return errors.New(errors.TypeValidation, "threshold must be 0 < x <= 1")
	}
	if s.Tolerance < 0 {
		return errors.New(errors.TypeValidation, "tolerance must be >= 0")
	}
	return nil
}

// LoadDefaults overlays a YAML defaults file onto the settings. Environment
// references of the form ${VAR} are substituted before parsing.
func (s *Settings) LoadDefaults(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.TypeConfig, "failed to read defaults file")
	}

	var defaults Defaults
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &defaults); err != nil {
		return errors.Wrap(err, errors.TypeConfig, "failed to parse defaults file")
	}

	if defaults.Threshold != nil {
		s.Threshold = *defaults.Threshold
	}
	if defaults.Tolerance != nil {
		s.Tolerance = *defaults.Tolerance
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
