// Package settings handles persistent application configuration: where the
// tkg repos and downloaded sources live, and user preferences saved between
// runs as YAML under the config directory.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the persisted application state.
type Settings struct {
	LinuxTKGPath   string `yaml:"linux_tkg_path"`
	WineTKGPath    string `yaml:"wine_tkg_path"`
	SourcesDir     string `yaml:"sources_dir"`
	UseMakepkg     bool   `yaml:"use_makepkg"`
	KeepWorkDir    bool   `yaml:"keep_work_dir"`
	LastVersion    string `yaml:"last_version,omitempty"`
	DefaultProfile string `yaml:"default_profile,omitempty"`
}

// Config locates the data and config directories.
type Config struct {
	DataDir      string
	SettingsPath string
	DBPath       string
}

// New resolves directories, honoring TKGFORGE_DATA_DIR for tests and
// non-standard setups.
func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("TKGFORGE_DATA_DIR", filepath.Join(homeDir, ".config", "tkgforge"))

	c := &Config{
		DataDir:      dataDir,
		SettingsPath: filepath.Join(dataDir, "settings.yaml"),
		DBPath:       filepath.Join(dataDir, "tkgforge.db"),
	}

	return c, nil
}

// EnsureDataDir creates the data directory tree.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// Load reads settings from disk. A missing file yields defaults, not an
// error.
func (c *Config) Load() (*Settings, error) {
	s := Defaults(c.DataDir)

	data, err := os.ReadFile(c.SettingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, nil
}

// Save writes settings back to disk.
func (c *Config) Save(s *Settings) error {
	if err := c.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(c.SettingsPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Defaults returns the settings used before the user saves anything.
func Defaults(dataDir string) *Settings {
	return &Settings{
		LinuxTKGPath: filepath.Join(dataDir, "linux-tkg"),
		WineTKGPath:  filepath.Join(dataDir, "wine-tkg-git"),
		SourcesDir:   filepath.Join(dataDir, "sources"),
		UseMakepkg:   onArch(),
	}
}

// IsCloned reports whether a tkg checkout exists at path. The marker is the
// PKGBUILD file every tkg repo carries.
func IsCloned(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(path, "PKGBUILD"))
	return err == nil
}

// onArch detects an Arch-family host, where makepkg is the native build
// path.
func onArch() bool {
	_, err := os.Stat("/etc/arch-release")
	return err == nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
