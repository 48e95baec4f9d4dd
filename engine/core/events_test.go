package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSystemDispatchOrder(t *testing.T) {
	es := NewEventSystem()
	var got []string
	listen := func(name string, handled bool) FnOnEvent {
		return func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
			got = append(got, name)
			assert.Equal(t, NewHandle(1, 1), data.Handle)
			return handled
		}
	}
	first, second, third := new(int), new(int), new(int)
	require.NoError(t, es.Register(EVENT_CODE_RESOURCE_DESTROYED, first, listen("first", false)))
	require.NoError(t, es.Register(EVENT_CODE_RESOURCE_DESTROYED, second, listen("second", true)))
	require.NoError(t, es.Register(EVENT_CODE_RESOURCE_DESTROYED, third, listen("third", false)))

	assert.True(t, es.Fire(EVENT_CODE_RESOURCE_DESTROYED, nil, EventContext{Handle: NewHandle(1, 1)}))
	assert.Equal(t, []string{"first", "second"}, got)

	require.NoError(t, es.Unregister(EVENT_CODE_RESOURCE_DESTROYED, second))
	got = nil
	assert.False(t, es.Fire(EVENT_CODE_RESOURCE_DESTROYED, nil, EventContext{Handle: NewHandle(1, 1)}))
	assert.Equal(t, []string{"first", "third"}, got)
}

func TestEventSystemRegistrationErrors(t *testing.T) {
	es := NewEventSystem()
	l := new(int)
	noop := func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }

	require.NoError(t, es.Register(EVENT_CODE_PIPELINE_ACTIVATED, l, noop))
	assert.Error(t, es.Register(EVENT_CODE_PIPELINE_ACTIVATED, l, noop))
	assert.Error(t, es.Register(SystemEventCode(MAX_MESSAGE_CODES), l, noop))
	assert.Error(t, es.Unregister(EVENT_CODE_PIPELINE_DESTROYED, l))
	assert.False(t, es.Fire(SystemEventCode(-1), nil, EventContext{}))
}

func TestListenerMayUnregisterWhileHandling(t *testing.T) {
	es := NewEventSystem()
	l := new(int)
	calls := 0
	require.NoError(t, es.Register(EVENT_CODE_CONFIG_RELOADED, l, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls++
		require.NoError(t, es.Unregister(code, listener))
		return false
	}))
	es.Fire(EVENT_CODE_CONFIG_RELOADED, nil, EventContext{})
	es.Fire(EVENT_CODE_CONFIG_RELOADED, nil, EventContext{})
	assert.Equal(t, 1, calls)
}
