package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-assets/engine/core"
)

/** @brief The configuration for the resource manager */
type ResourceManagerConfig struct {
	/** @brief Root directory all asset paths are relative to. */
	AssetDirectory string
	/** @brief Manifest file location. Defaults to AssetRegistry.yaml inside the project directory above AssetDirectory. */
	ManifestPath string
	/** @brief Import every recognised file under AssetDirectory that the manifest does not know yet. */
	ScanOnInit bool
}

// ResourceManager owns the imported registry, the memory asset pool and the
// loaded-instance cache. Mutating operations are meant to run on a single
// thread; queries may come from anywhere.
type ResourceManager struct {
	config      ResourceManagerConfig
	root        string
	serializers *SerializerRegistry
	events      *core.EventBus
	metrics     *core.Metrics
	manifest    *Manifest

	mu           sync.RWMutex
	registry     map[AssetHandle]AssetMetaData
	memoryAssets map[AssetHandle]AssetMetaData
	loaded       map[AssetHandle]Asset
	inflight     map[AssetHandle]chan struct{}
	// Paths written by SaveAsset/CreateAsset whose watcher echo should not
	// trigger a reload. An entry only matches while the file is unchanged.
	ownWrites map[string]ownWrite
}

// ownWrite is the size and modification time of a file right after we
// wrote it.
type ownWrite struct {
	size    int64
	modTime time.Time
}

func NewResourceManager(config ResourceManagerConfig, serializers *SerializerRegistry, events *core.EventBus) (*ResourceManager, error) {
	if config.AssetDirectory == "" {
		return nil, fmt.Errorf("resource manager requires an asset directory")
	}
	root, err := filepath.Abs(config.AssetDirectory)
	if err != nil {
		return nil, fmt.Errorf("resolving asset directory: %w", err)
	}
	if config.ManifestPath == "" {
		config.ManifestPath = filepath.Join(filepath.Dir(root), DefaultManifestName)
	}
	if serializers == nil {
		serializers = NewSerializerRegistry()
	}
	if events == nil {
		events = core.NewEventBus()
	}

	return &ResourceManager{
		config:       config,
		root:         root,
		serializers:  serializers,
		events:       events,
		metrics:      core.NewMetrics(),
		manifest:     NewManifest(config.ManifestPath),
		registry:     make(map[AssetHandle]AssetMetaData),
		memoryAssets: make(map[AssetHandle]AssetMetaData),
		loaded:       make(map[AssetHandle]Asset),
		inflight:     make(map[AssetHandle]chan struct{}),
		ownWrites:    make(map[string]ownWrite),
	}, nil
}

// Init loads the manifest. Rows whose file is gone are dropped and the
// manifest is rewritten without them.
func (rm *ResourceManager) Init() error {
	if err := os.MkdirAll(rm.root, 0o755); err != nil {
		return fmt.Errorf("creating asset directory: %w", err)
	}

	entries, err := rm.manifest.Load()
	if err != nil {
		return err
	}

	dirty := false
	rm.mu.Lock()
	paths := make(map[string]AssetHandle, len(entries))
	for _, e := range entries {
		rel, err := rm.relativePath(e.FilePath)
		if err != nil {
			core.LogWarn("Dropping asset %s from the manifest: %s", e.Handle, err)
			dirty = true
			continue
		}
		if rel != e.FilePath {
			e.FilePath = rel
			dirty = true
		}
		if _, exists := rm.registry[e.Handle]; exists {
			core.Assert(false, "duplicate handle %s in manifest", e.Handle)
			dirty = true
			continue
		}
		if other, exists := paths[e.FilePath]; exists {
			core.LogWarn("Manifest maps '%s' to both %s and %s, keeping %s.", e.FilePath, other, e.Handle, other)
			dirty = true
			continue
		}
		if !fileExists(rm.absolutePath(e.FilePath)) {
			core.LogDebug("Dropping asset %s, file '%s' no longer exists.", e.Handle, e.FilePath)
			dirty = true
			continue
		}
		rm.registry[e.Handle] = e
		paths[e.FilePath] = e.Handle
	}
	rm.mu.Unlock()

	if rm.config.ScanOnInit {
		imported, err := rm.importDirectory()
		if err != nil {
			return err
		}
		// ImportAsset already rewrote the manifest for new files.
		if imported > 0 {
			dirty = false
		}
	}

	if dirty {
		if err := rm.writeManifest(); err != nil {
			return err
		}
	}

	core.LogInfo("Resource manager initialized with %d assets from '%s'.", len(rm.GetAssetRegistry()), rm.root)
	return nil
}

// importDirectory imports every recognised file under the asset root.
func (rm *ResourceManager) importDirectory() (int, error) {
	imported := 0
	err := filepath.WalkDir(rm.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || KindFromPath(p) == AssetKindNone {
			return nil
		}
		rel, err := rm.relativePath(p)
		if err != nil {
			return nil
		}
		if rm.GetAssetHandleFromFilePath(rel).IsValid() {
			return nil
		}
		if rm.ImportAsset(rel).IsValid() {
			imported++
		}
		return nil
	})
	if err != nil {
		return imported, fmt.Errorf("scanning asset directory: %w", err)
	}
	return imported, nil
}

// Shutdown evicts every loaded instance.
func (rm *ResourceManager) Shutdown() error {
	rm.mu.RLock()
	handles := make([]AssetHandle, 0, len(rm.loaded))
	for h := range rm.loaded {
		handles = append(handles, h)
	}
	rm.mu.RUnlock()

	for _, h := range handles {
		rm.UnloadAsset(h)
	}
	return nil
}

func (rm *ResourceManager) AssetDirectory() string {
	return rm.root
}

func (rm *ResourceManager) ManifestPath() string {
	return rm.manifest.Path()
}

func (rm *ResourceManager) Serializers() *SerializerRegistry {
	return rm.serializers
}

func (rm *ResourceManager) Events() *core.EventBus {
	return rm.events
}

func (rm *ResourceManager) Stats() core.MetricsSnapshot {
	return rm.metrics.Snapshot()
}

// IsValidAssetHandle reports whether h is known as an imported or memory asset.
func (rm *ResourceManager) IsValidAssetHandle(h AssetHandle) bool {
	if !h.IsValid() {
		return false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, _, ok := rm.lookupLocked(h)
	return ok
}

func (rm *ResourceManager) IsMemoryAsset(h AssetHandle) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.memoryAssets[h]
	return ok
}

func (rm *ResourceManager) IsAssetLoaded(h AssetHandle) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	meta, _, ok := rm.lookupLocked(h)
	return ok && meta.IsDataLoaded
}

// GetMetadata returns a copy of the metadata for h.
func (rm *ResourceManager) GetMetadata(h AssetHandle) (AssetMetaData, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	meta, _, ok := rm.lookupLocked(h)
	return meta, ok
}

// GetAssetHandleFromFilePath returns the imported handle stored for path, or
// InvalidHandle. Path may be absolute or relative to the asset directory.
func (rm *ResourceManager) GetAssetHandleFromFilePath(path string) AssetHandle {
	rel, err := rm.relativePath(path)
	if err != nil {
		return InvalidHandle
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.handleForPathLocked(rel)
}

// GetAssetRegistry returns a snapshot of the imported registry sorted by handle.
func (rm *ResourceManager) GetAssetRegistry() []AssetMetaData {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.snapshotLocked()
}

// GetMemoryAssets returns a snapshot of the memory asset pool sorted by handle.
func (rm *ResourceManager) GetMemoryAssets() []AssetMetaData {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]AssetMetaData, 0, len(rm.memoryAssets))
	for _, m := range rm.memoryAssets {
		out = append(out, m)
	}
	sortByHandle(out)
	return out
}

// ImportAsset registers the file at path and returns its handle. Importing a
// path twice returns the same handle. InvalidHandle is returned when the
// extension is not recognised or the file does not exist under the asset
// directory.
func (rm *ResourceManager) ImportAsset(path string) AssetHandle {
	rel, err := rm.relativePath(path)
	if err != nil {
		core.LogError("ImportAsset - %s", err)
		return InvalidHandle
	}
	kind := KindFromPath(rel)
	if kind == AssetKindNone {
		core.LogError("ImportAsset - '%s' has no recognised asset kind.", rel)
		return InvalidHandle
	}
	if !fileExists(rm.absolutePath(rel)) {
		core.LogError("ImportAsset - '%s' does not exist in '%s'.", rel, rm.root)
		return InvalidHandle
	}

	rm.mu.Lock()
	if h := rm.handleForPathLocked(rel); h.IsValid() {
		rm.mu.Unlock()
		return h
	}
	h := rm.newHandleLocked()
	rm.registry[h] = AssetMetaData{
		Handle:   h,
		Kind:     kind,
		FilePath: rel,
	}
	rm.mu.Unlock()

	core.LogDebug("Imported %s '%s' as %s.", kind, rel, h)
	rm.registryChanged()
	return h
}

// LoadAsset makes sure h has an instance in the cache. A loaded handle is a
// cache hit; the serializer runs at most once until the asset is unloaded.
// Returns false for unknown handles and for loads that failed. A failed load
// still caches a flagged stand-in.
func (rm *ResourceManager) LoadAsset(h AssetHandle) bool {
	for {
		rm.mu.Lock()
		meta, _, ok := rm.lookupLocked(h)
		if !ok {
			rm.mu.Unlock()
			core.LogError("LoadAsset - unknown asset handle %s.", h)
			return false
		}
		if meta.IsDataLoaded {
			asset := rm.loaded[h]
			rm.mu.Unlock()
			if core.Assert(asset != nil, "asset %s marked loaded without a cached instance", h) != nil {
				return false
			}
			rm.metrics.RecordCacheHit()
			return !asset.IsErrored()
		}
		if wait, busy := rm.inflight[h]; busy {
			rm.mu.Unlock()
			<-wait
			continue
		}
		done := make(chan struct{})
		rm.inflight[h] = done
		rm.mu.Unlock()

		asset, err := rm.deserialize(meta)

		rm.mu.Lock()
		delete(rm.inflight, h)
		close(done)
		meta, _, ok = rm.lookupLocked(h)
		if !ok {
			// Deleted while loading.
			rm.mu.Unlock()
			return false
		}
		b := asset.base()
		b.handle = h
		b.setFlag(AssetFlagUnloading, false)
		rm.loaded[h] = asset
		meta.IsDataLoaded = true
		rm.storeLocked(meta)
		rm.mu.Unlock()

		rm.events.Fire(core.EVENT_CODE_ASSET_LOADED, rm, core.EventContext{Handle: uint64(h), Path: meta.FilePath, Data: asset})
		return err == nil
	}
}

// deserialize runs the serializer for meta. It always returns an instance;
// on failure the instance carries AssetFlagInvalid.
func (rm *ResourceManager) deserialize(meta AssetMetaData) (Asset, error) {
	clock := core.NewClock()
	clock.Start()

	var (
		asset Asset
		err   error
	)
	serializer := rm.serializers.Get(meta.Kind)
	switch {
	case serializer == nil:
		err = fmt.Errorf("%w: no serializer registered for %s", core.ErrUnknownKind, meta.Kind)
	case meta.FilePath != "" && !fileExists(rm.absolutePath(meta.FilePath)):
		err = fmt.Errorf("%w: '%s'", core.ErrNotFound, meta.FilePath)
	default:
		asset, err = tryLoadData(serializer, meta)
		if err == nil && asset == nil {
			err = fmt.Errorf("serializer for %s returned no asset", meta.Kind)
		}
		if err == nil && asset.Kind() != meta.Kind {
			err = fmt.Errorf("%w: serializer for %s produced %s", core.ErrTypeMismatch, meta.Kind, asset.Kind())
			asset = nil
		}
	}

	clock.Update()
	rm.metrics.RecordLoad(clock.Elapsed(), err == nil)

	if err != nil {
		err = fmt.Errorf("%w: %s '%s': %w", core.ErrDeserialize, meta.Kind, meta.FilePath, err)
		core.LogError("LoadAsset - %s", err)
		if asset == nil {
			asset = newPlaceholder(meta.Kind, err)
		}
		asset.base().setFlag(AssetFlagInvalid, true)
		if errors.Is(err, core.ErrNotFound) {
			asset.base().setFlag(AssetFlagMissing, true)
		}
		return asset, err
	}
	core.LogDebug("Loaded %s '%s' in %s.", meta.Kind, meta.FilePath, clock.Elapsed())
	return asset, nil
}

// tryLoadData runs the serializer and turns a panic into an error.
func tryLoadData(serializer Serializer, meta AssetMetaData) (asset Asset, err error) {
	defer func() {
		if r := recover(); r != nil {
			asset = nil
			err = fmt.Errorf("serializer for %s panicked: %v", meta.Kind, r)
		}
	}()
	return serializer.TryLoadData(meta)
}

// GetAsset loads h if needed and returns the cached instance. Failed loads
// return the stand-in together with an error wrapping core.ErrDeserialize.
func (rm *ResourceManager) GetAsset(h AssetHandle) (Asset, error) {
	if !rm.IsValidAssetHandle(h) {
		core.LogError("GetAsset - unknown asset handle %s.", h)
		return nil, fmt.Errorf("%w: handle %s", core.ErrNotFound, h)
	}
	rm.LoadAsset(h)

	rm.mu.RLock()
	asset, ok := rm.loaded[h]
	rm.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: handle %s", core.ErrNotFound, h)
	}
	if p, isPlaceholder := asset.(*Placeholder); isPlaceholder {
		return asset, p.Err
	}
	return asset, nil
}

// SaveAsset writes the loaded instance of h back to its file. Memory assets,
// unloaded assets and broken stand-ins cannot be saved.
func (rm *ResourceManager) SaveAsset(h AssetHandle) bool {
	rm.mu.RLock()
	meta, _, ok := rm.lookupLocked(h)
	asset := rm.loaded[h]
	rm.mu.RUnlock()

	switch {
	case !ok:
		core.LogError("SaveAsset - unknown asset handle %s.", h)
		return false
	case meta.IsMemoryAsset:
		core.LogWarn("SaveAsset - %s is a memory asset, nothing to persist.", h)
		return false
	case !meta.IsDataLoaded || asset == nil:
		core.LogWarn("SaveAsset - %s '%s' is not loaded.", meta.Kind, meta.FilePath)
		return false
	case asset.HasFlag(AssetFlagInvalid):
		core.LogWarn("SaveAsset - refusing to overwrite '%s' with a broken asset.", meta.FilePath)
		return false
	}

	serializer := rm.serializers.Get(meta.Kind)
	if serializer == nil {
		core.LogError("SaveAsset - no serializer registered for %s.", meta.Kind)
		return false
	}
	if err := serializer.Serialize(asset, meta); err != nil {
		core.LogError("SaveAsset - failed to serialize '%s': %s", meta.FilePath, err)
		return false
	}
	rm.noteOwnWrite(meta.FilePath)
	rm.metrics.RecordSave()
	return true
}

// UnloadAsset evicts the instance of h. Listeners of EVENT_CODE_ASSET_UNLOADING
// see the instance flagged as unloading before it leaves the cache. Memory
// assets have nothing to reload from and are removed entirely.
func (rm *ResourceManager) UnloadAsset(h AssetHandle) {
	rm.mu.Lock()
	meta, _, ok := rm.lookupLocked(h)
	if !ok {
		rm.mu.Unlock()
		core.LogWarn("UnloadAsset - unknown asset handle %s.", h)
		return
	}
	asset := rm.loaded[h]
	if asset != nil {
		asset.base().setFlag(AssetFlagUnloading, true)
	}
	rm.mu.Unlock()

	if asset != nil {
		rm.events.Fire(core.EVENT_CODE_ASSET_UNLOADING, rm, core.EventContext{Handle: uint64(h), Path: meta.FilePath, Data: asset})
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.loaded, h)
	if meta.IsMemoryAsset {
		delete(rm.memoryAssets, h)
		return
	}
	if meta, ok = rm.registry[h]; ok {
		meta.IsDataLoaded = false
		rm.registry[h] = meta
	}
}

// ReloadAsset drops the cached instance of h and deserializes it again.
func (rm *ResourceManager) ReloadAsset(h AssetHandle) bool {
	if rm.IsMemoryAsset(h) {
		core.LogWarn("ReloadAsset - %s is a memory asset and has no file to reload from.", h)
		return false
	}
	if !rm.IsValidAssetHandle(h) {
		core.LogError("ReloadAsset - unknown asset handle %s.", h)
		return false
	}
	rm.UnloadAsset(h)
	ok := rm.LoadAsset(h)

	meta, _ := rm.GetMetadata(h)
	rm.events.Fire(core.EVENT_CODE_ASSET_RELOADED, rm, core.EventContext{Handle: uint64(h), Path: meta.FilePath})
	return ok
}

// DeleteAsset forgets h. Imported assets are removed from the manifest; the
// file on disk is left alone.
func (rm *ResourceManager) DeleteAsset(h AssetHandle) {
	meta, ok := rm.GetMetadata(h)
	if !ok {
		core.LogWarn("DeleteAsset - unknown asset handle %s.", h)
		return
	}
	rm.UnloadAsset(h)

	rm.mu.Lock()
	delete(rm.loaded, h)
	delete(rm.memoryAssets, h)
	delete(rm.registry, h)
	rm.mu.Unlock()

	rm.events.Fire(core.EVENT_CODE_ASSET_DELETED, rm, core.EventContext{Handle: uint64(h), Path: meta.FilePath})
	if !meta.IsMemoryAsset {
		rm.registryChanged()
	}
}

// registerCreated inserts a freshly built, already serialized instance.
func (rm *ResourceManager) registerCreated(meta AssetMetaData, asset Asset) {
	rm.mu.Lock()
	_, _, exists := rm.lookupLocked(meta.Handle)
	if core.Assert(!exists, "handle %s inserted twice", meta.Handle) != nil {
		rm.mu.Unlock()
		return
	}
	b := asset.base()
	b.handle = meta.Handle
	b.flags = AssetFlagNone
	meta.IsDataLoaded = true
	rm.loaded[meta.Handle] = asset
	rm.storeLocked(meta)
	rm.mu.Unlock()

	rm.events.Fire(core.EVENT_CODE_ASSET_LOADED, rm, core.EventContext{Handle: uint64(meta.Handle), Path: meta.FilePath, Data: asset})
	if !meta.IsMemoryAsset {
		rm.registryChanged()
	}
}

// registryChanged rewrites the manifest from the current registry.
func (rm *ResourceManager) registryChanged() {
	if err := rm.writeManifest(); err != nil {
		core.LogError("Failed to write asset manifest: %s", err)
		return
	}
	rm.events.Fire(core.EVENT_CODE_REGISTRY_CHANGED, rm, core.EventContext{Path: rm.manifest.Path()})
}

func (rm *ResourceManager) writeManifest() error {
	return rm.manifest.Write(rm.GetAssetRegistry())
}

func (rm *ResourceManager) noteOwnWrite(rel string) {
	info, err := os.Stat(rm.absolutePath(rel))
	if err != nil {
		return
	}
	rm.mu.Lock()
	rm.ownWrites[rel] = ownWrite{size: info.Size(), modTime: info.ModTime()}
	rm.mu.Unlock()
}

// isOwnWrite reports whether rel still holds exactly what we wrote. Entries
// for files changed since are dropped.
func (rm *ResourceManager) isOwnWrite(rel string) bool {
	rm.mu.RLock()
	w, ok := rm.ownWrites[rel]
	rm.mu.RUnlock()
	if !ok {
		return false
	}

	info, err := os.Stat(rm.absolutePath(rel))
	if err == nil && info.Size() == w.size && info.ModTime().Equal(w.modTime) {
		return true
	}
	rm.forgetOwnWrite(rel)
	return false
}

func (rm *ResourceManager) forgetOwnWrite(rel string) {
	rm.mu.Lock()
	delete(rm.ownWrites, rel)
	rm.mu.Unlock()
}

func (rm *ResourceManager) lookupLocked(h AssetHandle) (AssetMetaData, bool, bool) {
	if meta, ok := rm.registry[h]; ok {
		return meta, false, true
	}
	if meta, ok := rm.memoryAssets[h]; ok {
		return meta, true, true
	}
	return AssetMetaData{}, false, false
}

func (rm *ResourceManager) storeLocked(meta AssetMetaData) {
	if meta.IsMemoryAsset {
		rm.memoryAssets[meta.Handle] = meta
		return
	}
	rm.registry[meta.Handle] = meta
}

func (rm *ResourceManager) handleForPathLocked(rel string) AssetHandle {
	for h, meta := range rm.registry {
		if meta.FilePath == rel {
			return h
		}
	}
	return InvalidHandle
}

func (rm *ResourceManager) newHandleLocked() AssetHandle {
	for {
		h := NewAssetHandle()
		if _, _, taken := rm.lookupLocked(h); !taken {
			return h
		}
	}
}

func (rm *ResourceManager) snapshotLocked() []AssetMetaData {
	out := make([]AssetMetaData, 0, len(rm.registry))
	for _, m := range rm.registry {
		out = append(out, m)
	}
	sortByHandle(out)
	return out
}

// relativePath normalises p into a slash separated path relative to the
// asset directory. Paths escaping the directory are rejected.
func (rm *ResourceManager) relativePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", core.ErrNotFound)
	}
	native := filepath.FromSlash(p)
	if filepath.IsAbs(native) {
		rel, err := filepath.Rel(rm.root, native)
		if err != nil {
			return "", fmt.Errorf("'%s' is not inside the asset directory: %w", p, err)
		}
		native = rel
	}
	rel := filepath.ToSlash(filepath.Clean(native))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("'%s' is not inside the asset directory '%s'", p, rm.root)
	}
	return rel, nil
}

func (rm *ResourceManager) absolutePath(rel string) string {
	return filepath.Join(rm.root, filepath.FromSlash(rel))
}

// AbsolutePath resolves a registry path to a location on disk.
func (rm *ResourceManager) AbsolutePath(meta AssetMetaData) string {
	return rm.absolutePath(meta.FilePath)
}

func sortByHandle(entries []AssetMetaData) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Handle < entries[j].Handle })
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
