package assets

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/anima-assets/engine/core"
)

// DefaultManifestName is the manifest file name used when none is configured.
const DefaultManifestName = "AssetRegistry.yaml"

type manifestEntry struct {
	Handle   string `yaml:"Handle"`
	Kind     string `yaml:"Kind"`
	FilePath string `yaml:"FilePath"`
}

type manifestDocument struct {
	Assets []manifestEntry `yaml:"Assets"`
}

// Manifest persists the imported asset registry as a flat YAML list of
// {Handle, Kind, FilePath} rows.
type Manifest struct {
	path string
}

func NewManifest(path string) *Manifest {
	return &Manifest{path: path}
}

func (m *Manifest) Path() string {
	return m.path
}

// Load reads every row of the manifest. A missing manifest is an empty
// registry. Rows with an invalid handle or kind are skipped.
func (m *Manifest) Load() ([]AssetMetaData, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogInfo("No asset manifest at '%s', starting with an empty registry.", m.path)
			return nil, nil
		}
		return nil, fmt.Errorf("reading asset manifest: %w", err)
	}

	var doc manifestDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing asset manifest %s: %w", m.path, err)
	}

	entries := make([]AssetMetaData, 0, len(doc.Assets))
	for _, row := range doc.Assets {
		handle, herr := ParseAssetHandle(row.Handle)
		kind, kerr := ParseAssetKind(row.Kind)
		if herr != nil || kerr != nil || !handle.IsValid() || kind == AssetKindNone || row.FilePath == "" {
			core.LogWarn("Skipping malformed manifest row handle=%q kind=%q path='%s'.", row.Handle, row.Kind, row.FilePath)
			continue
		}
		entries = append(entries, AssetMetaData{
			Handle:   handle,
			Kind:     kind,
			FilePath: filepath.ToSlash(row.FilePath),
		})
	}
	return entries, nil
}

// Write replaces the manifest with the given entries. Memory assets are
// skipped. Rows are sorted by handle. The document is rendered into a buffer
// first and moved into place with a rename, so a crash never leaves a
// truncated manifest behind.
func (m *Manifest) Write(entries []AssetMetaData) error {
	doc := manifestDocument{Assets: make([]manifestEntry, 0, len(entries))}
	for _, e := range entries {
		if e.IsMemoryAsset || e.FilePath == "" {
			continue
		}
		doc.Assets = append(doc.Assets, manifestEntry{
			Handle:   e.Handle.String(),
			Kind:     e.Kind.String(),
			FilePath: e.FilePath,
		})
	}
	// Fixed width hex, so string order is handle order.
	sort.Slice(doc.Assets, func(i, j int) bool {
		return doc.Assets[i].Handle < doc.Assets[j].Handle
	})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding asset manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding asset manifest: %w", err)
	}

	return WriteFileAtomic(m.path, buf.Bytes())
}

// WriteFileAtomic writes data to a temporary sibling, syncs it and renames it
// over path. Missing parent directories are created.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
