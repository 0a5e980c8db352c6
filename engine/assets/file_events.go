package assets

import (
	"os"
	"strings"

	"github.com/spaghettifunk/anima-assets/engine/core"
)

// FileEventKind is the kind of change reported for a path.
type FileEventKind int

const (
	FileEventAdded FileEventKind = iota
	FileEventModified
	FileEventDeleted
	// FileEventOldName is always immediately followed by FileEventNewName.
	FileEventOldName
	FileEventNewName
)

func (k FileEventKind) String() string {
	switch k {
	case FileEventAdded:
		return "Added"
	case FileEventModified:
		return "Modified"
	case FileEventDeleted:
		return "Deleted"
	case FileEventOldName:
		return "OldName"
	case FileEventNewName:
		return "NewName"
	}
	return "Unknown"
}

// FileEvent is one change notification for a path, absolute or relative to
// the asset directory.
type FileEvent struct {
	Path string
	Kind FileEventKind
}

type fileAction struct {
	kind    FileEventKind
	path    string
	newPath string
}

// groupFileEvents pairs OldName/NewName events into renames. Unpaired halves
// are dropped.
func groupFileEvents(events []FileEvent) []fileAction {
	actions := make([]fileAction, 0, len(events))
	for i := 0; i < len(events); i++ {
		e := events[i]
		switch e.Kind {
		case FileEventOldName:
			if i+1 < len(events) && events[i+1].Kind == FileEventNewName {
				actions = append(actions, fileAction{kind: FileEventOldName, path: e.Path, newPath: events[i+1].Path})
				i++
				continue
			}
			core.LogWarn("Rename of '%s' has no new name, ignoring.", e.Path)
		case FileEventNewName:
			core.LogWarn("Rename to '%s' has no old name, ignoring.", e.Path)
		default:
			actions = append(actions, fileAction{kind: e.Kind, path: e.Path})
		}
	}
	return actions
}

// OnFileEvents applies a batch of external file changes to the registry.
// Renames and deletes are matched against stored paths, also as directory
// prefixes. Renames to a path that does not exist and events for unknown
// paths are ignored. Added files are imported, modified loaded files reloaded.
func (rm *ResourceManager) OnFileEvents(events []FileEvent) {
	echoes := make(map[string]struct{})
	defer func() {
		rm.mu.Lock()
		for rel := range echoes {
			delete(rm.ownWrites, rel)
		}
		rm.mu.Unlock()
	}()

	for _, action := range groupFileEvents(events) {
		switch action.kind {
		case FileEventOldName:
			rm.applyRename(action.path, action.newPath, echoes)
		case FileEventDeleted:
			for _, h := range rm.handlesUnder(action.path) {
				rm.OnAssetDeleted(h)
			}
		case FileEventAdded, FileEventModified:
			rm.fileChanged(action.path, echoes)
		}
	}
}

// fileChanged imports an unknown file or reloads a loaded one. Changes caused
// by our own writes are only recorded in echoes.
func (rm *ResourceManager) fileChanged(path string, echoes map[string]struct{}) {
	rel, err := rm.relativePath(path)
	if err != nil {
		return
	}
	if rm.isOwnWrite(rel) {
		echoes[rel] = struct{}{}
		return
	}
	h := rm.GetAssetHandleFromFilePath(rel)
	if !h.IsValid() {
		if KindFromPath(rel) != AssetKindNone && fileExists(rm.absolutePath(rel)) {
			rm.ImportAsset(rel)
		}
		return
	}
	if rm.IsAssetLoaded(h) {
		rm.ReloadAsset(h)
	}
}

func (rm *ResourceManager) applyRename(oldPath, newPath string, echoes map[string]struct{}) {
	newRel, err := rm.relativePath(newPath)
	if err != nil {
		core.LogWarn("Ignoring rename of '%s' out of the asset directory.", oldPath)
		return
	}
	info, err := os.Stat(rm.absolutePath(newRel))
	if err != nil {
		core.LogDebug("Ignoring rename '%s' -> '%s', target does not exist.", oldPath, newRel)
		return
	}
	oldRel, err := rm.relativePath(oldPath)
	if err != nil {
		return
	}

	if !info.IsDir() {
		if h := rm.GetAssetHandleFromFilePath(oldRel); h.IsValid() {
			rm.OnAssetRenamed(h, newRel)
			return
		}
		// Unknown source: the rename itself is ignored. Editors save by
		// renaming a temporary file over the original, so a loaded target
		// is still refreshed.
		if rm.GetAssetHandleFromFilePath(newRel).IsValid() {
			rm.fileChanged(newRel, echoes)
		}
		return
	}

	prefix := oldRel + "/"
	for _, h := range rm.handlesUnder(oldRel) {
		meta, ok := rm.GetMetadata(h)
		if !ok {
			continue
		}
		rm.OnAssetRenamed(h, newRel+"/"+strings.TrimPrefix(meta.FilePath, prefix))
	}
}

// handlesUnder returns the imported handle stored for path, or every handle
// inside path when it names a directory.
func (rm *ResourceManager) handlesUnder(path string) []AssetHandle {
	rel, err := rm.relativePath(path)
	if err != nil {
		return nil
	}
	prefix := rel + "/"

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	var handles []AssetHandle
	for h, meta := range rm.registry {
		if meta.FilePath == rel || strings.HasPrefix(meta.FilePath, prefix) {
			handles = append(handles, h)
		}
	}
	return handles
}

// OnAssetRenamed points h at newPath and rewrites the manifest. When the new
// extension belongs to another kind the old entry is dropped and the file
// imported afresh.
func (rm *ResourceManager) OnAssetRenamed(h AssetHandle, newPath string) {
	newRel, err := rm.relativePath(newPath)
	if err != nil {
		core.LogError("OnAssetRenamed - %s", err)
		return
	}

	rm.mu.Lock()
	meta, ok := rm.registry[h]
	if !ok {
		rm.mu.Unlock()
		core.LogWarn("OnAssetRenamed - unknown asset handle %s.", h)
		return
	}
	if KindFromPath(newRel) != meta.Kind {
		rm.mu.Unlock()
		core.LogInfo("'%s' renamed to '%s' changes its kind, re-importing.", meta.FilePath, newRel)
		rm.DeleteAsset(h)
		if KindFromPath(newRel) != AssetKindNone {
			rm.ImportAsset(newRel)
		}
		return
	}
	stale := rm.handleForPathLocked(newRel)
	rm.mu.Unlock()

	// The target file was replaced, its previous handle no longer describes it.
	if stale.IsValid() && stale != h {
		core.LogWarn("'%s' was overwritten by a rename, dropping asset %s.", newRel, stale)
		rm.DeleteAsset(stale)
	}

	rm.mu.Lock()
	meta, ok = rm.registry[h]
	if !ok {
		rm.mu.Unlock()
		return
	}
	oldRel := meta.FilePath
	meta.FilePath = newRel
	rm.registry[h] = meta
	rm.mu.Unlock()

	core.LogDebug("Asset %s renamed '%s' -> '%s'.", h, oldRel, newRel)
	rm.events.Fire(core.EVENT_CODE_ASSET_RENAMED, rm, core.EventContext{Handle: uint64(h), Path: newRel, OldPath: oldRel})
	rm.registryChanged()
}

// OnAssetDeleted handles the backing file of h disappearing.
func (rm *ResourceManager) OnAssetDeleted(h AssetHandle) {
	rm.DeleteAsset(h)
}
