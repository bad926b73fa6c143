package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	example := Defaults()
	example.GitHub.Token = "${GITHUB_TOKEN}"
	example.GitHub.Repo = "${GITHUB_REPO}"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	header := "# contentsync configuration\n# Environment variables are expanded; GITHUB_TOKEN, GITHUB_REPO and GITHUB_BRANCH override these values.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
