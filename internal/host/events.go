package host

import (
	"go.uber.org/zap"

	"github.com/l1jgo/luahost/internal/object"
	"github.com/l1jgo/luahost/internal/scripting"
)

// GlobalEvent is delivered to every global script with a matching handler.
// Payload holds the serialized argument, frozen at enqueue time.
type GlobalEvent struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload,omitempty"`
}

// LocalEvent is delivered to the destination's container, if the destination
// resolves to a valid entity that has one; dropped and logged otherwise.
type LocalEvent struct {
	Dest    object.ID `json:"dest"`
	Name    string    `json:"name"`
	Payload []byte    `json:"payload,omitempty"`
}

// localEngineEvent routes a lifecycle notification to a destination. Unlike
// LocalEvent it survives a container-less destination: only a wholly
// unresolvable identity drops it.
type localEngineEvent struct {
	Dest  object.ID
	Event scripting.EngineEvent
}

// KeyEvent is one buffered input press, delivered to the player container.
type KeyEvent struct {
	Code int32
	Mod  uint16
}

// EnqueueGlobalEvent queues an event for the next unpaused tick.
func (m *Manager) EnqueueGlobalEvent(name string, payload []byte) {
	m.globalEvents = append(m.globalEvents, GlobalEvent{Name: name, Payload: payload})
}

// EnqueueLocalEvent queues an event addressed to one entity for the next
// unpaused tick.
func (m *Manager) EnqueueLocalEvent(dest object.ID, name string, payload []byte) {
	m.localEvents = append(m.localEvents, LocalEvent{Dest: dest, Name: name, Payload: payload})
}

func (m *Manager) enqueueEngineEvent(dest object.ID, e scripting.EngineEvent) {
	m.engineEvents = append(m.engineEvents, localEngineEvent{Dest: dest, Event: e})
}

// KeyPressed buffers an input press for the player container. The buffer is
// cleared on every Update, so presses never outlive the tick they arrive in.
func (m *Manager) KeyPressed(code int32, mod uint16) {
	m.keyPresses = append(m.keyPresses, KeyEvent{Code: code, Mod: mod})
}

func (m *Manager) deliverLocalEvent(ev LocalEvent) {
	e, ok := m.registry.Get(ev.Dest)
	if !ok || !e.Valid() {
		m.log.Debug("local event for missing object",
			zap.String("object", ev.Dest.String()), zap.String("event", ev.Name))
		return
	}
	if e.Ref == nil || e.Ref.Scripts == nil {
		m.log.Info("local event for object without scripts",
			zap.String("object", ev.Dest.String()), zap.String("event", ev.Name))
		return
	}
	e.Ref.Scripts.ReceiveEvent(ev.Name, ev.Payload)
}

func (m *Manager) deliverEngineEvent(ev localEngineEvent) {
	e, ok := m.registry.Get(ev.Dest)
	if !ok || !e.Valid() {
		m.log.Debug("engine event for missing object",
			zap.String("object", ev.Dest.String()),
			zap.String("kind", ev.Event.Kind.String()))
		return
	}
	// A container-less destination is a meaningful no-op here, not a drop.
	if e.Ref == nil || e.Ref.Scripts == nil {
		return
	}
	e.Ref.Scripts.ReceiveEngineEvent(ev.Event, m.registry)
}
