package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadApplicationConfigMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	config, err := LoadApplicationConfig(dir)
	require.NoError(t, err)

	defaults := DefaultApplicationConfig()
	require.Equal(t, defaults.Name, config.Name)
	require.Equal(t, filepath.Join(dir, "Assets"), config.AssetPath())
	require.Empty(t, config.ManifestPath())
	d, err := config.PollDuration()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)
}

func TestLoadApplicationConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte(`
name = "Sandbox"
asset_directory = "content"
manifest_file = "meta/registry.yaml"
log_level = "debug"
watch = true
poll_interval = "1s"
`), 0o644))

	config, err := LoadApplicationConfig(dir)
	require.NoError(t, err)
	require.Equal(t, "Sandbox", config.Name)
	require.Equal(t, filepath.Join(dir, "content"), config.AssetPath())
	require.Equal(t, filepath.Join(dir, "meta", "registry.yaml"), config.ManifestPath())
	require.Equal(t, "debug", config.LogLevel)
	require.True(t, config.Watch)
	// Keys left out keep their defaults.
	require.True(t, config.ScanOnInit)
}

func TestLoadApplicationConfigErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectFileName)

	require.NoError(t, os.WriteFile(path, []byte("name = "), 0o644))
	_, err := LoadApplicationConfig(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`poll_interval = "soon"`), 0o644))
	_, err = LoadApplicationConfig(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`poll_interval = "-1s"`), 0o644))
	_, err = LoadApplicationConfig(dir)
	require.Error(t, err)
}

func TestApplicationConfigSave(t *testing.T) {
	dir := t.TempDir()
	config, err := LoadApplicationConfig(dir)
	require.NoError(t, err)
	config.Name = "Saved"
	config.Watch = true
	require.NoError(t, config.Save())

	again, err := LoadApplicationConfig(dir)
	require.NoError(t, err)
	require.Equal(t, "Saved", again.Name)
	require.True(t, again.Watch)
}

func TestAbsoluteAssetDirectory(t *testing.T) {
	abs := t.TempDir()
	config := DefaultApplicationConfig()
	config.AssetDirectory = abs
	require.Equal(t, abs, config.AssetPath())
}
