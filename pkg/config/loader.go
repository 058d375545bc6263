package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Load reads a YAML file over the defaults, substituting ${VAR} references
// with environment values, and validates the result
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	cfg := Default()
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to parse YAML").
			WithDetail("path", filePath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(filePath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write config file").
			WithDetail("path", filePath)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
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

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
