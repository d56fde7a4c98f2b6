package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is what `consolectl login` remembers between runs
type Settings struct {
	Server   string `yaml:"server"`
	Token    string `yaml:"token"`
	Username string `yaml:"username,omitempty"`
}

// defaultSettingsPath returns $XDG_CONFIG_HOME/consolectl/config.yaml or its OS equivalent
func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".consolectl.yaml"
	}
	return filepath.Join(dir, "consolectl", "config.yaml")
}

// LoadSettings reads path. A missing file yields empty settings.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, nil
}

func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
