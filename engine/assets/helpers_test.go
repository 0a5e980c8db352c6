package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-assets/engine/core"
)

// textAsset stands in for a script: the file content is the asset.
type textAsset struct {
	BaseAsset
	Text string
}

func (a *textAsset) Kind() AssetKind {
	return AssetKindScript
}

type imageAsset struct {
	BaseAsset
}

func (a *imageAsset) Kind() AssetKind {
	return AssetKindTexture
}

// countingSerializer reads and writes textAssets and counts how often each
// handle was deserialized. A file containing "broken" yields a partial asset
// plus an error, "nothing" yields no asset at all and "panic" panics.
type countingSerializer struct {
	root  string
	delay time.Duration

	mu    sync.Mutex
	loads map[AssetHandle]int
}

func newCountingSerializer(root string) *countingSerializer {
	return &countingSerializer{root: root, loads: make(map[AssetHandle]int)}
}

func (s *countingSerializer) TryLoadData(meta AssetMetaData) (Asset, error) {
	s.mu.Lock()
	s.loads[meta.Handle]++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(meta.FilePath)))
	if err != nil {
		return nil, err
	}
	switch string(data) {
	case "broken":
		return &textAsset{Text: "partial"}, errors.New("broken script")
	case "nothing":
		return nil, errors.New("unreadable script")
	case "panic":
		panic("script decoder blew up")
	}
	return &textAsset{Text: string(data)}, nil
}

func (s *countingSerializer) Serialize(asset Asset, meta AssetMetaData) error {
	a, ok := asset.(*textAsset)
	if !ok {
		return core.ErrTypeMismatch
	}
	return WriteFileAtomic(filepath.Join(s.root, filepath.FromSlash(meta.FilePath)), []byte(a.Text))
}

func (s *countingSerializer) Loads(h AssetHandle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[h]
}

type testProject struct {
	dir        string
	root       string
	rm         *ResourceManager
	serializer *countingSerializer
}

// newTestProject creates <tmp>/Assets with the manifest next to it and an
// initialized resource manager.
func newTestProject(t *testing.T) *testProject {
	t.Helper()
	dir := t.TempDir()
	p := &testProject{dir: dir, root: filepath.Join(dir, "Assets")}
	require.NoError(t, os.MkdirAll(p.root, 0o755))
	p.rm, p.serializer = p.open(t, false)
	return p
}

// open builds a fresh manager over the same project, as after a restart.
func (p *testProject) open(t *testing.T, scan bool) (*ResourceManager, *countingSerializer) {
	t.Helper()
	serializer := newCountingSerializer(p.root)
	registry := NewSerializerRegistry()
	require.NoError(t, registry.Register(AssetKindScript, serializer))

	rm, err := NewResourceManager(ResourceManagerConfig{AssetDirectory: p.root, ScanOnInit: scan}, registry, nil)
	require.NoError(t, err)
	require.NoError(t, rm.Init())
	return rm, serializer
}

func (p *testProject) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(p.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (p *testProject) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (p *testProject) move(t *testing.T, from, to string) {
	t.Helper()
	dst := filepath.Join(p.root, filepath.FromSlash(to))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.Rename(filepath.Join(p.root, filepath.FromSlash(from)), dst))
}

func (p *testProject) manifest(t *testing.T) []AssetMetaData {
	t.Helper()
	entries, err := NewManifest(p.rm.ManifestPath()).Load()
	require.NoError(t, err)
	return entries
}

// recordEvents collects the contexts fired for code on the manager's bus.
func recordEvents(rm *ResourceManager, code core.SystemEventCode) *[]core.EventContext {
	var (
		mu  sync.Mutex
		got []core.EventContext
	)
	rm.Events().Register(code, &got, func(_ core.SystemEventCode, _ interface{}, _ interface{}, ctx core.EventContext) bool {
		mu.Lock()
		got = append(got, ctx)
		mu.Unlock()
		return false
	})
	return &got
}
