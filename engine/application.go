package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ProjectFileName is the project configuration file looked up in a project
// directory.
const ProjectFileName = "anima.toml"

type ApplicationConfig struct {
	// The application name, used in log output.
	Name string `toml:"name"`
	// Directory holding the assets. Relative paths are resolved against the
	// project directory.
	AssetDirectory string `toml:"asset_directory"`
	// Manifest location. Empty means AssetRegistry.yaml in the project directory.
	ManifestFile string `toml:"manifest_file,omitempty"`
	// One of debug, info, warn, error, fatal.
	LogLevel string `toml:"log_level"`
	// Import files the manifest does not know yet when starting up.
	ScanOnInit bool `toml:"scan_on_init"`
	// Watch the asset directory for changes.
	Watch bool `toml:"watch"`
	// How often file events are drained, as a Go duration string.
	PollInterval string `toml:"poll_interval"`

	projectDir string
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:           "Anima Assets",
		AssetDirectory: "Assets",
		LogLevel:       "info",
		ScanOnInit:     true,
		Watch:          false,
		PollInterval:   "250ms",
		projectDir:     ".",
	}
}

// LoadApplicationConfig reads anima.toml from the project directory. A
// missing file yields the defaults.
func LoadApplicationConfig(projectDir string) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()
	config.projectDir = projectDir

	data, err := os.ReadFile(filepath.Join(projectDir, ProjectFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ProjectFileName, err)
	}
	if _, err := config.PollDuration(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration to anima.toml in the project directory.
func (c *ApplicationConfig) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.projectDir, ProjectFileName), data, 0o644)
}

func (c *ApplicationConfig) ProjectDirectory() string {
	return c.projectDir
}

// AssetPath returns the asset directory resolved against the project directory.
func (c *ApplicationConfig) AssetPath() string {
	return c.resolve(c.AssetDirectory)
}

// ManifestPath returns the resolved manifest location, or "" for the default.
func (c *ApplicationConfig) ManifestPath() string {
	if c.ManifestFile == "" {
		return ""
	}
	return c.resolve(c.ManifestFile)
}

func (c *ApplicationConfig) PollDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll_interval must be positive, got %s", d)
	}
	return d, nil
}

func (c *ApplicationConfig) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.projectDir, p)
}
