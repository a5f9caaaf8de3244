package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable that overrides config discovery.
const EnvConfigPath = "NEXUS_CONFIG"

// Discover finds the config file by checking standard locations, in order:
// $NEXUS_CONFIG, ./config.yaml, ~/.config/nexus-cli/config.yaml,
// /etc/nexus-cli/config.yaml.
func Discover() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("$%s points to %s: %w", EnvConfigPath, p, err)
		}
		return p, nil
	}

	candidates := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "nexus-cli", "config.yaml"))
	}
	candidates = append(candidates, "/etc/nexus-cli/config.yaml")

	for _, c := range candidates {
		if fileExists(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $%s, ./config.yaml, ~/.config/nexus-cli, /etc/nexus-cli)", EnvConfigPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
