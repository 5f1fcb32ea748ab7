// Package config provides YAML configuration loading for conversion runs.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/geoplex/stacarrow/pkg/errors"
	"github.com/geoplex/stacarrow/pkg/logger"
)

// Config describes a file-to-GeoParquet conversion run.
type Config struct {
	// Inputs are the JSON files to convert (NDJSON, array, or
	// FeatureCollection; .gz and .zst are decompressed transparently).
	Inputs []string `yaml:"inputs"`
	// Output is the destination GeoParquet path.
	Output string `yaml:"output"`
	// ChunkSize bounds records per batch. Zero selects the default.
	ChunkSize int `yaml:"chunk_size"`
	// Compression selects the Parquet codec: snappy, zstd, gzip, or none.
	Compression string `yaml:"compression"`
	// Logging configures the process logger.
	Logging logger.Config `yaml:"logging"`
}

// Validate checks that the run is actionable.
func (c *Config) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New(errors.ErrorTypeConfig, "at least one input file is required")
	}
	if c.Output == "" {
		return errors.New(errors.ErrorTypeConfig, "output path is required")
	}
	if c.ChunkSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "chunk_size must not be negative")
	}
	return nil
}

// Load reads a YAML config file, substituting ${VAR} references with
// environment variable values before parsing.
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML").
			WithDetail("path", filePath)
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
