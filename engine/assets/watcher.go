package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-assets/engine/containers"
	"github.com/spaghettifunk/anima-assets/engine/core"
)

// DefaultWatcherCapacity is the number of events buffered between two polls.
const DefaultWatcherCapacity = 4096

// FileWatcher watches the asset directory recursively and turns fsnotify
// operations into FileEvents. Events are buffered until Poll is called from
// the thread that owns the resource manager.
type FileWatcher struct {
	root     string
	fsnotify *fsnotify.Watcher

	mu            sync.Mutex
	queue         *containers.RingQueue[FileEvent]
	pendingRename string
	pendingPolled bool
	// Old name of the last paired move, to drop the directory's own echo.
	lastMoved string
	dropped   int
	isStarted bool
	isClosed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewFileWatcher(root string, capacity int) (*FileWatcher, error) {
	if capacity <= 0 {
		capacity = DefaultWatcherCapacity
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		root:     root,
		fsnotify: fsWatch,
		queue:    containers.NewRingQueue[FileEvent](capacity),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the directory tree and begins collecting events.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	if fw.isClosed {
		fw.mu.Unlock()
		return errors.New("file watcher already closed")
	}
	if fw.isStarted {
		fw.mu.Unlock()
		return errors.New("file watcher already started")
	}
	fw.isStarted = true
	fw.mu.Unlock()

	if err := fw.watchRecursive(fw.root); err != nil {
		fw.mu.Lock()
		fw.isStarted = false
		fw.mu.Unlock()
		return err
	}
	fw.wg.Add(1)
	go fw.start()
	core.LogInfo("Watching '%s' for asset changes.", fw.root)
	return nil
}

// Poll returns the events collected since the last call. A rename whose new
// name never arrived by the following poll is reported as a delete.
func (fw *FileWatcher) Poll() []FileEvent {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.pendingRename != "" {
		if fw.pendingPolled {
			fw.enqueue(FileEvent{Path: fw.pendingRename, Kind: FileEventDeleted})
			fw.clearPending()
		} else {
			fw.pendingPolled = true
		}
	}
	if fw.dropped > 0 {
		core.LogWarn("File watcher queue overflowed, %d events dropped.", fw.dropped)
		fw.dropped = 0
	}
	return fw.queue.Drain()
}

// Close stops watching and waits for the event loop to exit.
func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	if fw.isClosed {
		fw.mu.Unlock()
		return nil
	}
	fw.isClosed = true
	started := fw.isStarted
	fw.mu.Unlock()

	if !started {
		return fw.fsnotify.Close()
	}
	close(fw.done)
	fw.wg.Wait()
	return nil
}

func (fw *FileWatcher) start() {
	defer fw.wg.Done()
	for {
		select {
		case e, ok := <-fw.fsnotify.Events:
			if !ok {
				return
			}
			fw.handle(e)

		case err, ok := <-fw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("file watcher: %s", err)

		case <-fw.done:
			fw.fsnotify.Close()
			return
		}
	}
}

func (fw *FileWatcher) handle(e fsnotify.Event) {
	isDir := false
	if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
		isDir = true
	}

	fw.mu.Lock()
	for _, fe := range fw.translate(e, isDir) {
		fw.enqueue(fe)
	}
	fw.mu.Unlock()

	// After the translated events, so a moved directory is reported as a
	// rename before its contents show up as added.
	if isDir && e.Has(fsnotify.Create) {
		if err := fw.watchRecursive(e.Name); err != nil {
			core.LogWarn("file watcher: cannot watch '%s': %s", e.Name, err)
		}
	}
}

// translate maps one fsnotify operation to file events. A Rename carries only
// the old name; inotify delivers the new one as a Create right after it. A
// pending rename followed by anything else is a move out of the tree and is
// reported as a delete before the event itself.
func (fw *FileWatcher) translate(e fsnotify.Event, isDir bool) []FileEvent {
	if e.Op == fsnotify.Chmod {
		return nil
	}
	if e.Has(fsnotify.Rename) && (e.Name == fw.pendingRename || e.Name == fw.lastMoved) {
		// A watched directory reports its own move as well.
		return nil
	}

	var out []FileEvent
	if fw.pendingRename != "" {
		if e.Has(fsnotify.Create) {
			out = append(out,
				FileEvent{Path: fw.pendingRename, Kind: FileEventOldName},
				FileEvent{Path: e.Name, Kind: FileEventNewName})
			fw.lastMoved = fw.pendingRename
			fw.clearPending()
			return out
		}
		out = append(out, FileEvent{Path: fw.pendingRename, Kind: FileEventDeleted})
		fw.clearPending()
	}
	fw.lastMoved = ""

	switch {
	case e.Has(fsnotify.Rename):
		fw.pendingRename = e.Name
		fw.pendingPolled = false
	case e.Has(fsnotify.Create):
		if !isDir {
			out = append(out, FileEvent{Path: e.Name, Kind: FileEventAdded})
		}
	case e.Has(fsnotify.Remove):
		out = append(out, FileEvent{Path: e.Name, Kind: FileEventDeleted})
	case e.Has(fsnotify.Write):
		if !isDir {
			out = append(out, FileEvent{Path: e.Name, Kind: FileEventModified})
		}
	}
	return out
}

func (fw *FileWatcher) clearPending() {
	fw.pendingRename = ""
	fw.pendingPolled = false
}

func (fw *FileWatcher) enqueue(e FileEvent) {
	if err := fw.queue.Enqueue(e); err != nil {
		fw.dropped++
	}
}

// watchRecursive adds every directory below path to the watch list. Files
// found in a newly created directory are reported as added, since they may
// have been written before the watch was in place.
func (fw *FileWatcher) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.fsnotify.Add(walkPath)
		}
		if path != fw.root {
			fw.mu.Lock()
			fw.enqueue(FileEvent{Path: walkPath, Kind: FileEventAdded})
			fw.mu.Unlock()
		}
		return nil
	})
}
