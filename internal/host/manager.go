package host

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/luahost/internal/data"
	"github.com/l1jgo/luahost/internal/object"
	"github.com/l1jgo/luahost/internal/scripting"
	"github.com/l1jgo/luahost/internal/world"
)

var (
	// ErrPlayerChanged means the player handle resolved to a different
	// identity mid-session. The caller contract is broken; the driver
	// should treat this as fatal.
	ErrPlayerChanged = errors.New("player identity changed mid-session")
	// ErrPlayerAlreadySetUp means SetupPlayer was called twice in one
	// session.
	ErrPlayerAlreadySetUp = errors.New("player already set up")
)

// PlayerSource re-resolves the player handle each tick; the simulation owns
// player placement (scene group swaps invalidate handles), the Manager only
// checks that the identity stayed put.
type PlayerSource func() *world.Entity

// Manager orchestrates every script container in the host: per-tick
// dispatch, event and action queues, lifecycle hooks, and the save/load/
// reload protocol. Single-goroutine access only (game loop).
type Manager struct {
	log      *zap.Logger
	env      *scripting.Environment
	view     *world.View
	registry *world.Registry
	scripts  *data.ScriptList

	contentFiles []string
	fileMapping  object.FileMapping // shared with both loaders, filled on load

	global           *scripting.Container
	globalSerializer scripting.Serializer
	globalLoader     scripting.Serializer
	localSerializer  scripting.Serializer
	localLoader      scripting.Serializer

	// Active set: attachment-ordered for deterministic dispatch, with an
	// index map for swap-delete removal.
	active    []*scripting.Container
	activeIdx map[*scripting.Container]int

	// Back buffers. Swapped out atomically at the top of each unpaused
	// tick; production during dispatch lands in the next tick's buffers.
	globalEvents []GlobalEvent
	localEvents  []LocalEvent
	engineEvents []localEngineEvent
	keyPresses   []KeyEvent

	actions    []Action
	teleport   Action
	uiMessages []string
	sink       MessageSink

	player       *world.Entity
	playerID     object.ID
	playerSetUp  bool
	playerAdded  bool // edge-trigger for the global onPlayerAdded hook
	playerSource PlayerSource

	actorActiveQueue []object.ID

	globalPackageNames []string
	globalPackages     map[string]scripting.PackageFunc
	localPackageNames  []string
	localPackages      map[string]scripting.PackageFunc
	playerPackageNames []string
	playerPackages     map[string]scripting.PackageFunc

	initialized bool
}

// NewManager wires the orchestrator. contentFiles is the current load order;
// the position of a name is its content-file index.
func NewManager(env *scripting.Environment, view *world.View, scripts *data.ScriptList, contentFiles []string, log *zap.Logger) *Manager {
	vm := env.VM()
	mapping := object.FileMapping{}
	m := &Manager{
		log:          log,
		env:          env,
		view:         view,
		registry:     view.Registry(),
		scripts:      scripts,
		contentFiles: contentFiles,
		fileMapping:  mapping,

		globalSerializer: scripting.NewSerializer(vm),
		globalLoader:     scripting.NewLoader(vm, mapping),
		localSerializer:  scripting.NewSerializer(vm),
		localLoader:      scripting.NewLoader(vm, mapping),

		activeIdx:      make(map[*scripting.Container]int),
		globalPackages: make(map[string]scripting.PackageFunc),
		localPackages:  make(map[string]scripting.PackageFunc),
		playerPackages: make(map[string]scripting.PackageFunc),
	}
	m.global = scripting.NewGlobalContainer(env, log)
	m.global.SetSerializer(m.globalSerializer)
	return m
}

// SetPlayerSource installs the per-tick player revalidation hook.
func (m *Manager) SetPlayerSource(src PlayerSource) { m.playerSource = src }

// SetMessageSink installs the UI message collaborator.
func (m *Manager) SetMessageSink(sink MessageSink) { m.sink = sink }

// View exposes the scripting-facing world state.
func (m *Manager) View() *world.View { return m.view }

// GlobalContainer exposes the world-scope container.
func (m *Manager) GlobalContainer() *scripting.Container { return m.global }

// Init attaches the built-in core package and the canonical global script
// list. Must run once before the first Update.
func (m *Manager) Init() error {
	if m.initialized {
		return errors.New("manager already initialized")
	}
	m.global.RegisterPackage("core", m.corePackage())
	for _, name := range m.globalPackageNames {
		m.global.RegisterPackage(name, m.globalPackages[name])
	}
	for _, path := range m.scripts.GlobalPaths() {
		if !m.global.AddNewScript(path) {
			m.log.Warn("global script not attached", zap.String("script", path))
		}
	}
	m.initialized = true
	m.log.Info("scripting host initialized",
		zap.Int("globalScripts", m.global.ScriptCount()),
		zap.Int("contentFiles", len(m.contentFiles)))
	return nil
}

// Update runs one simulation tick of script dispatch. Ordering contract:
// player revalidation, time advance, paused short-circuit (drops pending key
// presses only), queue swap, timers, global events, local events, key
// presses, engine events, active-local update hooks, edge-triggered player
// notification, actor notifications, global update hook. The key-press
// buffer never survives a call, paused or not.
func (m *Manager) Update(paused bool, dt float64) error {
	if m.playerSetUp && m.playerSource != nil {
		if p := m.playerSource(); p != nil {
			if p.ID() != m.playerID {
				return fmt.Errorf("%w: had %s, resolved %s",
					ErrPlayerChanged, m.playerID, p.ID())
			}
			m.player = p
		}
	}

	m.view.Advance(dt)

	if paused {
		m.keyPresses = nil
		return nil
	}

	globalEvents := m.globalEvents
	localEvents := m.localEvents
	engineEvents := m.engineEvents
	keyPresses := m.keyPresses
	m.globalEvents = nil
	m.localEvents = nil
	m.engineEvents = nil
	m.keyPresses = nil

	seconds, hours := m.view.Seconds(), m.view.GameHours()
	m.global.ProcessTimers(seconds, hours)
	for _, c := range m.active {
		c.ProcessTimers(seconds, hours)
	}

	for _, ev := range globalEvents {
		m.global.ReceiveEvent(ev.Name, ev.Payload)
	}
	for _, ev := range localEvents {
		m.deliverLocalEvent(ev)
	}

	if pc := m.playerContainer(); pc != nil {
		for _, k := range keyPresses {
			pc.KeyPress(k.Code, k.Mod)
		}
	}

	for _, ev := range engineEvents {
		m.deliverEngineEvent(ev)
	}

	for _, c := range m.active {
		c.Update(dt)
	}

	if m.playerAdded {
		m.playerAdded = false
		m.global.PlayerAdded(m.playerID)
	}
	for _, id := range m.actorActiveQueue {
		m.global.ActorActive(id)
	}
	m.actorActiveQueue = m.actorActiveQueue[:0]

	m.global.Update(dt)
	return nil
}

func (m *Manager) playerContainer() *scripting.Container {
	if m.player == nil || m.player.Ref == nil {
		return nil
	}
	return m.player.Ref.Scripts
}

// activate adds a container to the active set; idempotent.
func (m *Manager) activate(c *scripting.Container) {
	if _, ok := m.activeIdx[c]; ok {
		return
	}
	m.activeIdx[c] = len(m.active)
	m.active = append(m.active, c)
}

// deactivate removes a container from the active set by swap-delete.
func (m *Manager) deactivate(c *scripting.Container) {
	i, ok := m.activeIdx[c]
	if !ok {
		return
	}
	last := len(m.active) - 1
	m.active[i] = m.active[last]
	m.activeIdx[m.active[i]] = i
	m.active = m.active[:last]
	delete(m.activeIdx, c)
}

// IsActive reports active-set membership of an entity's container.
func (m *Manager) IsActive(e *world.Entity) bool {
	if e == nil || e.Ref == nil || e.Ref.Scripts == nil {
		return false
	}
	_, ok := m.activeIdx[e.Ref.Scripts]
	return ok
}
