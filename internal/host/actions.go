package host

import (
	"go.uber.org/zap"

	"github.com/l1jgo/luahost/internal/world"
)

// Action is a deferred world mutation produced during script execution.
// Queued actions apply exactly once, in enqueue order, during
// ApplyQueuedChanges — never inside Update.
type Action interface {
	Apply(*world.View) error
}

// MessageSink receives UI messages queued by scripts.
type MessageSink interface {
	ShowMessage(text string)
}

// QueueAction defers a world mutation to the next ApplyQueuedChanges.
func (m *Manager) QueueAction(a Action) {
	m.actions = append(m.actions, a)
}

// QueueTeleport sets the single teleport slot. Only the last teleport queued
// during a tick wins; it applies after the regular action queue.
func (m *Manager) QueueTeleport(a Action) {
	m.teleport = a
}

// QueueMessage defers a UI message to the next ApplyQueuedChanges.
func (m *Manager) QueueMessage(text string) {
	m.uiMessages = append(m.uiMessages, text)
}

// ApplyQueuedChanges flushes script-produced side effects: UI messages to
// the sink, then queued actions in order, then the teleport slot. Called by
// the driver at a point where mutating world state is safe; an action error
// is logged and the rest of the queue still applies.
func (m *Manager) ApplyQueuedChanges() {
	if m.sink != nil {
		for _, text := range m.uiMessages {
			m.sink.ShowMessage(text)
		}
	}
	m.uiMessages = m.uiMessages[:0]

	actions := m.actions
	m.actions = nil
	for _, a := range actions {
		if err := a.Apply(m.view); err != nil {
			m.log.Error("queued action failed", zap.Error(err))
		}
	}

	if m.teleport != nil {
		if err := m.teleport.Apply(m.view); err != nil {
			m.log.Error("teleport failed", zap.Error(err))
		}
		m.teleport = nil
	}
}
