package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/assets/serializers"
	"github.com/spaghettifunk/anima-assets/engine/core"
	"github.com/spaghettifunk/anima-assets/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine has released every resource
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Engine ties the resource manager to the project configuration and, when
// watching is enabled, pumps file events into it.
type Engine struct {
	mu           sync.Mutex
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	events       *core.EventBus
	resources    *assets.ResourceManager
	watcher      *assets.FileWatcher
	clock        *core.Clock
	lastTime     time.Duration
	pollInterval time.Duration
	stop         chan struct{}
}

func New(g *Game) (*Engine, error) {
	if g == nil {
		g = &Game{}
	}
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	config := g.ApplicationConfig

	interval, err := config.PollDuration()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	events := core.NewEventBus()
	registry := assets.NewSerializerRegistry()
	rm, err := assets.NewResourceManager(assets.ResourceManagerConfig{
		AssetDirectory: config.AssetPath(),
		ManifestPath:   config.ManifestPath(),
		ScanOnInit:     config.ScanOnInit,
	}, registry, events)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := serializers.RegisterDefaults(registry, rm.AssetDirectory()); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       config,
		events:       events,
		resources:    rm,
		clock:        core.NewClock(),
		pollInterval: interval,
		stop:         make(chan struct{}),
	}, nil
}

func (e *Engine) Initialize() error {
	e.mu.Lock()
	if e.currentStage != EngineStageUninitialized {
		e.mu.Unlock()
		return fmt.Errorf("engine cannot initialize from stage %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	e.mu.Unlock()

	if err := core.SetLogLevel(e.config.LogLevel); err != nil {
		core.LogWarn("Unknown log level '%s', keeping the current one.", e.config.LogLevel)
	}

	if err := e.resources.Init(); err != nil {
		return err
	}

	if e.config.Watch {
		w, err := assets.NewFileWatcher(e.resources.AssetDirectory(), assets.DefaultWatcherCapacity)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			_ = w.Close()
			return err
		}
		e.watcher = w
		core.LogInfo("Watching '%s' for changes.", e.resources.AssetDirectory())
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.currentStage = EngineStageInitialized
	e.mu.Unlock()
	core.LogInfo("%s initialized with %d assets.", e.config.Name, len(e.resources.GetAssetRegistry()))
	return nil
}

// Update drains pending file events into the resource manager and runs the
// game update hook. It must be called from the thread that owns the engine.
func (e *Engine) Update() error {
	e.clock.Update()
	current := e.clock.Elapsed()
	delta := (current - e.lastTime).Seconds()
	e.lastTime = current

	if e.watcher != nil {
		if batch := e.watcher.Poll(); len(batch) > 0 {
			e.resources.OnFileEvents(batch)
		}
	}

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(e, delta); err != nil {
			return err
		}
	}
	return nil
}

// Run ticks Update at the configured poll interval until the context is
// cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.currentStage != EngineStageInitialized {
		e.mu.Unlock()
		return fmt.Errorf("engine cannot run from stage %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.mu.Unlock()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stop:
			return nil
		case <-ticker.C:
			if err := e.Update(); err != nil {
				core.LogError("Update failed, stopping: %s", err)
				return err
			}
		}
	}
}

// Stop makes Run return. Safe to call from any goroutine, more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

func (e *Engine) Shutdown() error {
	e.Stop()

	e.mu.Lock()
	if e.currentStage == EngineStageShuttingDown || e.currentStage == EngineStageShutdown {
		e.mu.Unlock()
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.mu.Unlock()

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown(e))
	}
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	errs = append(errs, e.resources.Shutdown())
	e.events.Shutdown()
	e.clock.Stop()

	e.mu.Lock()
	e.currentStage = EngineStageShutdown
	e.mu.Unlock()
	return errors.Join(errs...)
}

// Preload loads the given assets on a pool of workers and returns how many
// loaded without error. Concurrent loads of one handle run the serializer once.
func (e *Engine) Preload(handles []assets.AssetHandle) (int, error) {
	workers := runtime.NumCPU()
	if workers > len(handles) {
		workers = len(handles)
	}
	if workers == 0 {
		return 0, nil
	}
	js, err := systems.NewJobSystem(workers, len(handles))
	if err != nil {
		return 0, err
	}

	var loaded atomic.Int32
	for _, h := range handles {
		js.Submit(systems.JobTask{
			OnStart: func() error {
				if !e.resources.LoadAsset(h) {
					return fmt.Errorf("preloading %s failed", h)
				}
				return nil
			},
			OnComplete: func() { loaded.Add(1) },
		})
	}
	if err := js.Shutdown(); err != nil {
		return int(loaded.Load()), err
	}
	return int(loaded.Load()), nil
}

func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStage
}

func (e *Engine) Config() *ApplicationConfig {
	return e.config
}

func (e *Engine) Resources() *assets.ResourceManager {
	return e.resources
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}
