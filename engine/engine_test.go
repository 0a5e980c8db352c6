package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/assets/serializers"
	"github.com/spaghettifunk/anima-assets/engine/core"
)

func newTestEngine(t *testing.T, watch bool) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	config, err := LoadApplicationConfig(dir)
	require.NoError(t, err)
	config.Watch = watch
	config.PollInterval = "10ms"
	require.NoError(t, os.MkdirAll(config.AssetPath(), 0o755))

	e, err := New(&Game{ApplicationConfig: config})
	require.NoError(t, err)
	return e, config.AssetPath()
}

func TestEngineLifecycle(t *testing.T) {
	e, root := newTestEngine(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "player.lua"), []byte("print('hi')"), 0o644))
	require.Equal(t, EngineStageUninitialized, e.Stage())

	require.NoError(t, e.Initialize())
	require.Equal(t, EngineStageInitialized, e.Stage())
	require.Error(t, e.Initialize())

	h := e.Resources().GetAssetHandleFromFilePath("player.lua")
	require.True(t, h.IsValid())
	script, err := assets.GetAsset[*serializers.Script](e.Resources(), h)
	require.NoError(t, err)
	require.Equal(t, "player", script.ClassName)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	require.Eventually(t, func() bool { return e.Stage() == EngineStageRunning }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	unloading := 0
	e.Events().Register(core.EVENT_CODE_ASSET_UNLOADING, t, func(core.SystemEventCode, interface{}, interface{}, core.EventContext) bool {
		unloading++
		return false
	})
	require.NoError(t, e.Shutdown())
	require.Equal(t, 1, unloading)
	require.Equal(t, EngineStageShutdown, e.Stage())
	require.NoError(t, e.Shutdown())
	_, err = os.Stat(filepath.Join(filepath.Dir(root), assets.DefaultManifestName))
	require.NoError(t, err)
}

func TestEngineRunRequiresInitialize(t *testing.T) {
	e, _ := newTestEngine(t, false)
	require.Error(t, e.Run(context.Background()))
}

func TestEngineStopEndsRun(t *testing.T) {
	e, _ := newTestEngine(t, false)
	require.NoError(t, e.Initialize())

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	e.Stop()
	e.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	require.NoError(t, e.Shutdown())
}

func TestEngineGameHooks(t *testing.T) {
	dir := t.TempDir()
	config, err := LoadApplicationConfig(dir)
	require.NoError(t, err)
	config.PollInterval = "5ms"

	var initialized, updates, shutdowns int
	failure := errors.New("stop here")
	g := &Game{
		ApplicationConfig: config,
		FnInitialize: func(*Engine) error {
			initialized++
			return nil
		},
		FnUpdate: func(_ *Engine, delta float64) error {
			updates++
			if delta < 0 {
				return errors.New("negative delta")
			}
			if updates == 3 {
				return failure
			}
			return nil
		},
		FnShutdown: func(*Engine) error {
			shutdowns++
			return nil
		},
	}
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.ErrorIs(t, e.Run(context.Background()), failure)
	require.NoError(t, e.Shutdown())

	require.Equal(t, 1, initialized)
	require.Equal(t, 3, updates)
	require.Equal(t, 1, shutdowns)
}

func TestEngineWatchImportsNewFiles(t *testing.T) {
	e, root := newTestEngine(t, true)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	require.NoError(t, os.WriteFile(filepath.Join(root, "late.lua"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		if err := e.Update(); err != nil {
			return false
		}
		return e.Resources().GetAssetHandleFromFilePath("late.lua").IsValid()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewRejectsBadPollInterval(t *testing.T) {
	config := DefaultApplicationConfig()
	config.PollInterval = "never"
	_, err := New(&Game{ApplicationConfig: config})
	require.Error(t, err)
}

func TestEnginePreload(t *testing.T) {
	e, root := newTestEngine(t, false)
	for _, name := range []string{"a.lua", "b.lua", "c.lua"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("-- "+name), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.lua"), []byte{0xff, 0xfe}, 0o644))
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	var handles []assets.AssetHandle
	for _, meta := range e.Resources().GetAssetRegistry() {
		handles = append(handles, meta.Handle)
	}
	require.Len(t, handles, 4)
	// Duplicates collapse onto one load.
	handles = append(handles, handles[0])

	loaded, err := e.Preload(handles)
	require.NoError(t, err)
	require.Equal(t, 4, loaded)
	for _, h := range handles {
		require.True(t, e.Resources().IsAssetLoaded(h))
	}

	loaded, err = e.Preload(nil)
	require.NoError(t, err)
	require.Zero(t, loaded)
}
