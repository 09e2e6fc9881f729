package host

import (
	"go.uber.org/zap"

	"github.com/l1jgo/luahost/internal/object"
	"github.com/l1jgo/luahost/internal/scripting"
	"github.com/l1jgo/luahost/internal/world"
)

// createLocalContainer builds and attaches a fresh local container for an
// entity, injecting the core package, the registered local packages, and —
// for the player — the player-only packages.
func (m *Manager) createLocalContainer(e *world.Entity, player bool) *scripting.Container {
	c := scripting.NewLocalContainer(m.env, e.ID(), m.log)
	c.SetSerializer(m.localSerializer)
	c.RegisterPackage("core", m.corePackage())
	for _, name := range m.localPackageNames {
		c.RegisterPackage(name, m.localPackages[name])
	}
	if player {
		for _, name := range m.playerPackageNames {
			c.RegisterPackage(name, m.playerPackages[name])
		}
	}
	e.Ref.Scripts = c
	return c
}

// RegisterObject adds an entity to the registry. Auto-attach scripts for its
// record are applied on first registration.
func (m *Manager) RegisterObject(e *world.Entity) object.ID {
	id := m.registry.Register(e)
	if e.Ref.Scripts == nil {
		if paths := m.scripts.PathsForRecord(e.RecordID); len(paths) > 0 {
			c := m.createLocalContainer(e, false)
			for _, path := range paths {
				c.AddNewScript(path)
			}
		}
	}
	return id
}

// DeregisterObject invalidates an entity's handle. Its container, if any,
// survives; the entity may be re-registered later (cell transitions swap
// handles without destroying script state).
func (m *Manager) DeregisterObject(id object.ID) {
	m.registry.Deregister(id)
}

// AddLocalScript attaches a script to an entity, creating its container if
// absent. The container does not join the active set until the entity enters
// the scene.
func (m *Manager) AddLocalScript(e *world.Entity, path string) bool {
	c := e.Ref.Scripts
	if c == nil {
		c = m.createLocalContainer(e, false)
	}
	return c.AddNewScript(path)
}

// ObjectAddedToScene marks an entity in-scene. Its container, if any, joins
// the active set and gets an Activated notification next tick; non-player
// actors additionally trigger the global actor notification.
func (m *Manager) ObjectAddedToScene(e *world.Entity) {
	id := m.registry.Register(e)
	m.view.ObjectAddedToScene(id)
	if e.Ref.Scripts != nil {
		m.activate(e.Ref.Scripts)
		m.enqueueEngineEvent(id, scripting.EngineEvent{Kind: scripting.EngineActivated})
	}
	if e.Actor && id != m.playerID {
		m.actorActiveQueue = append(m.actorActiveQueue, id)
	}
}

// ObjectRemovedFromScene drops the entity's container from the active set.
// An entity that still resolves (leaving the scene, not destroyed) gets a
// Deactivated notification next tick.
func (m *Manager) ObjectRemovedFromScene(e *world.Entity) {
	id := e.ID()
	m.view.ObjectRemovedFromScene(id)
	if e.Ref.Scripts != nil {
		m.deactivate(e.Ref.Scripts)
	}
	if m.registry.Resolves(id) {
		m.enqueueEngineEvent(id, scripting.EngineEvent{Kind: scripting.EngineDeactivated})
	}
}

// SetupPlayer designates the session's player entity. Callable exactly once
// per session; the player's container is created if absent, forced into the
// active set, and the global onPlayerAdded notification is armed.
func (m *Manager) SetupPlayer(e *world.Entity) error {
	if m.playerSetUp {
		return ErrPlayerAlreadySetUp
	}
	id := m.registry.Register(e)
	m.player = e
	m.playerID = id
	m.playerSetUp = true

	c := e.Ref.Scripts
	if c == nil {
		c = m.createLocalContainer(e, true)
		for _, path := range m.scripts.PlayerPaths() {
			c.AddNewScript(path)
		}
	}
	m.activate(c)
	m.enqueueEngineEvent(id, scripting.EngineEvent{Kind: scripting.EngineActivated})
	m.playerAdded = true
	m.log.Info("player set up", zap.String("object", id.String()))
	return nil
}

// Applied queues a Consumed notification for an entity that had a record
// (item, ingredient) applied to it.
func (m *Manager) Applied(to object.ID, recordID string) {
	m.enqueueEngineEvent(to, scripting.EngineEvent{
		Kind:   scripting.EngineConsumed,
		Record: recordID,
	})
}

// Clear resets session state: queues, active set, registry, world view, and
// player designation. Global script attachments survive (their state is the
// session's to load); the compile cache survives too.
func (m *Manager) Clear() {
	m.active = nil
	m.activeIdx = make(map[*scripting.Container]int)
	m.globalEvents = nil
	m.localEvents = nil
	m.engineEvents = nil
	m.keyPresses = nil
	m.actions = nil
	m.teleport = nil
	m.uiMessages = nil
	m.actorActiveQueue = nil
	m.player = nil
	m.playerID = object.ID{}
	m.playerSetUp = false
	m.playerAdded = false
	m.registry.Clear()
	m.view.Clear()
}
