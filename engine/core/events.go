package core

import (
	"fmt"

	"github.com/google/uuid"
)

type EventContext struct {
	// The resource the event is about, if any.
	Handle Handle
	// The pipeline the event is about, if any.
	Pipeline uuid.UUID
	// Free-form payload for application events.
	Data interface{}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// A resource is about to be destroyed. Its handle is still valid while
	// listeners run and is released right after.
	/* Context usage:
	 * Handle = destroyed resource
	 */
	EVENT_CODE_RESOURCE_DESTROYED SystemEventCode = 0x01

	// A pipeline became the active consumer of a context.
	/* Context usage:
	 * Pipeline = activated pipeline id
	 */
	EVENT_CODE_PIPELINE_ACTIVATED SystemEventCode = 0x02

	// A pipeline was destroyed.
	/* Context usage:
	 * Pipeline = destroyed pipeline id
	 */
	EVENT_CODE_PIPELINE_DESTROYED SystemEventCode = 0x03

	// The configuration file changed on disk and was reloaded.
	/* Context usage:
	 * Data = *Config
	 */
	EVENT_CODE_CONFIG_RELOADED SystemEventCode = 0x04
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

// Should return true if handled. A handled event is not passed on to the
// remaining listeners.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// EventSystem dispatches events synchronously, in registration order, on
// the calling goroutine.
type EventSystem struct {
	// Lookup table for event codes.
	registered [MAX_MESSAGE_CODES]eventCodeEntry
}

func NewEventSystem() *EventSystem {
	return &EventSystem{}
}

// Register adds a listener for code. A listener can register only once per code.
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) error {
	if code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return fmt.Errorf("event code %d out of range", code)
	}
	entry := &es.registered[code]
	for _, e := range entry.events {
		if e.listener == listener {
			return fmt.Errorf("listener already registered for event code %d", code)
		}
	}
	entry.events = append(entry.events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return nil
}

// Unregister removes the listener for code.
func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}) error {
	if code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return fmt.Errorf("event code %d out of range", code)
	}
	entry := &es.registered[code]
	for i, e := range entry.events {
		if e.listener == listener {
			entry.events = append(entry.events[:i], entry.events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("listener not registered for event code %d", code)
}

// Fire dispatches the event and reports whether a listener handled it.
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	// Listeners may unregister themselves while handling the event.
	events := append([]*registeredEvent(nil), es.registered[code].events...)
	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}
