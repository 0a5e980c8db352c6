package core

import "sync"

// EventContext carries the payload of a fired event.
type EventContext struct {
	// Handle of the asset the event refers to, 0 when not applicable.
	Handle uint64
	// Path is the asset-root relative path after the change.
	Path string
	// OldPath is set for renames.
	OldPath string
	// Data is free-form payload, e.g. the asset instance about to unload.
	Data interface{}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// An asset instance entered the loaded-instance cache.
	/* Context usage:
	 * Handle = asset handle, Data = the instance
	 */
	EVENT_CODE_ASSET_LOADED SystemEventCode = 0x01

	// An asset instance is about to leave the cache. The instance is
	// still reachable and carries the unloading flag.
	/* Context usage:
	 * Handle = asset handle, Data = the instance
	 */
	EVENT_CODE_ASSET_UNLOADING SystemEventCode = 0x02

	// An asset was reloaded after an external edit.
	EVENT_CODE_ASSET_RELOADED SystemEventCode = 0x03

	// An imported asset moved on disk.
	/* Context usage:
	 * Handle = asset handle, OldPath = previous path, Path = new path
	 */
	EVENT_CODE_ASSET_RENAMED SystemEventCode = 0x04

	// An asset was removed from the registry.
	EVENT_CODE_ASSET_DELETED SystemEventCode = 0x05

	// The imported registry changed and the manifest was rewritten.
	EVENT_CODE_REGISTRY_CHANGED SystemEventCode = 0x06

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events to registered listeners. Each owner creates its
// own bus; there is no process-wide instance.
type EventBus struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return FALSE.
 * @param code The event code to listen for.
 * @param listener A listener instance. Can be nil.
 * @param onEvent The callback invoked when the event code is fired.
 * @returns TRUE if the event is successfully registered; otherwise false.
 */
func (eb *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if onEvent == nil {
		return false
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, e := range eb.registered[code] {
		if e.listener == listener {
			LogWarn("event code %d already has this listener registered", code)
			return false
		}
	}
	eb.registered[code] = append(eb.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 */
func (eb *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	events := eb.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eb.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 * @returns TRUE if handled, otherwise FALSE.
 */
func (eb *EventBus) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if eb == nil {
		return false
	}
	eb.mu.RLock()
	events := make([]*registeredEvent, len(eb.registered[code]))
	copy(events, eb.registered[code])
	eb.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (eb *EventBus) Shutdown() {
	eb.mu.Lock()
	eb.registered = make(map[SystemEventCode][]*registeredEvent)
	eb.mu.Unlock()
}
