package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/luahost/internal/object"
)

// PackageContext is handed to a package builder when a script instance is
// created, so packages can close over the container and the instance's
// identity (needed for per-script timer callbacks).
type PackageContext struct {
	VM         *lua.LState
	Container  *Container
	ScriptPath string
}

// PackageFunc builds the capability table a script sees under a package
// name. It runs once per script instance.
type PackageFunc func(PackageContext) lua.LValue

// script is one attached script instance: its sandbox environment and the
// handler tables the chunk returned.
type script struct {
	path           string
	env            *lua.LTable
	engineHandlers *lua.LTable
	eventHandlers  *lua.LTable
	timerCallbacks map[string]*lua.LFunction
}

func (s *script) engineHandler(name string) *lua.LFunction {
	if s.engineHandlers == nil {
		return nil
	}
	fn, _ := s.engineHandlers.RawGetString(name).(*lua.LFunction)
	return fn
}

func (s *script) eventHandler(name string) *lua.LFunction {
	if s.eventHandlers == nil {
		return nil
	}
	fn, _ := s.eventHandlers.RawGetString(name).(*lua.LFunction)
	return fn
}

// Container owns an ordered set of attached script instances sharing one
// language environment scope, a pending-timer set, and engine-handler
// dispatch. A container is either global (bound to the world) or local
// (owned by exactly one entity, identified by owner; the entity handle is
// resolved lazily through the registry, never held).
//
// A container with zero attached scripts still participates in dispatch as
// a no-op.
type Container struct {
	env    *Environment
	log    *zap.Logger
	global bool
	owner  object.ID

	scripts []*script
	byPath  map[string]*script
	timers  []TimerData

	serializer Serializer

	packageNames []string
	packages     map[string]PackageFunc
}

// NewGlobalContainer creates the world-scope container.
func NewGlobalContainer(env *Environment, log *zap.Logger) *Container {
	return &Container{
		env:      env,
		log:      log,
		global:   true,
		byPath:   make(map[string]*script),
		packages: make(map[string]PackageFunc),
	}
}

// NewLocalContainer creates a container owned by a single entity.
func NewLocalContainer(env *Environment, owner object.ID, log *zap.Logger) *Container {
	return &Container{
		env:      env,
		log:      log,
		owner:    owner,
		byPath:   make(map[string]*script),
		packages: make(map[string]PackageFunc),
	}
}

func (c *Container) Global() bool     { return c.global }
func (c *Container) Owner() object.ID { return c.owner }
func (c *Container) ScriptCount() int { return len(c.scripts) }

// Paths returns the attached script paths in attachment order.
func (c *Container) Paths() []string {
	paths := make([]string, len(c.scripts))
	for i, s := range c.scripts {
		paths[i] = s.path
	}
	return paths
}

// RegisterPackage makes a capability table available to scripts attached
// after this call, under the given name in the script environment.
func (c *Container) RegisterPackage(name string, build PackageFunc) {
	if _, ok := c.packages[name]; !ok {
		c.packageNames = append(c.packageNames, name)
	}
	c.packages[name] = build
}

// SetSerializer swaps the active serializer. The loader variant is only
// active for the duration of a Load call; scripts invoked afterwards must
// see live-consistent identities again.
func (c *Container) SetSerializer(s Serializer) { c.serializer = s }

// Serializer returns the currently active serializer.
func (c *Container) Serializer() Serializer { return c.serializer }

// AddNewScript attaches a script by source path. Script identity is the
// path: adding an already-attached path is a no-op. Returns false when the
// path is already attached or the source fails to compile or run; failures
// are logged and never abort the container.
func (c *Container) AddNewScript(path string) bool {
	if _, ok := c.byPath[path]; ok {
		c.log.Debug("script already attached", zap.String("script", path))
		return false
	}

	proto, err := c.env.Compile(path)
	if err != nil {
		c.log.Error("script load failed", zap.String("script", path), zap.Error(err))
		return false
	}

	vm := c.env.VM()
	inst := &script{
		path:           path,
		timerCallbacks: make(map[string]*lua.LFunction),
	}

	// Sandbox: fresh environment table inheriting globals, with the
	// container's packages and (for local scripts) the owner handle
	// injected before the chunk runs.
	env := vm.NewTable()
	meta := vm.NewTable()
	meta.RawSetString("__index", vm.G.Global)
	vm.SetMetatable(env, meta)
	if !c.global {
		env.RawSetString("self", PushObject(vm, c.owner))
	}
	for _, name := range c.packageNames {
		env.RawSetString(name, c.packages[name](PackageContext{
			VM:         vm,
			Container:  c,
			ScriptPath: path,
		}))
	}
	inst.env = env

	// Attach before running the chunk: top-level code may register timer
	// callbacks against its own path.
	c.scripts = append(c.scripts, inst)
	c.byPath[path] = inst

	fn := vm.NewFunctionFromProto(proto)
	vm.SetFEnv(fn, env)
	if err := vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		c.log.Error("script init failed", zap.String("script", path), zap.Error(err))
		c.detach(path)
		return false
	}
	ret := vm.Get(-1)
	vm.Pop(1)

	if tbl, ok := ret.(*lua.LTable); ok {
		inst.engineHandlers, _ = tbl.RawGetString("engineHandlers").(*lua.LTable)
		inst.eventHandlers, _ = tbl.RawGetString("eventHandlers").(*lua.LTable)
	} else if ret != lua.LNil {
		c.log.Error("script did not return a table", zap.String("script", path))
		c.detach(path)
		return false
	}
	return true
}

// detach removes one script and its pending timers after a failed init.
func (c *Container) detach(path string) {
	delete(c.byPath, path)
	for i, s := range c.scripts {
		if s.path == path {
			c.scripts = append(c.scripts[:i], c.scripts[i+1:]...)
			break
		}
	}
	kept := c.timers[:0]
	for _, tm := range c.timers {
		if tm.Script != path {
			kept = append(kept, tm)
		}
	}
	c.timers = kept
}

// RemoveAllScripts detaches every script and discards their timers.
func (c *Container) RemoveAllScripts() {
	c.scripts = nil
	c.byPath = make(map[string]*script)
	c.timers = nil
}

// call invokes a handler with protection; handler errors are logged and
// never propagate to siblings or the caller.
func (c *Container) call(path string, fn *lua.LFunction, nret int, args ...lua.LValue) []lua.LValue {
	vm := c.env.VM()
	if err := vm.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		c.log.Error("script handler error", zap.String("script", path), zap.Error(err))
		return nil
	}
	if nret == 0 {
		return nil
	}
	rets := make([]lua.LValue, nret)
	for i := nret - 1; i >= 0; i-- {
		rets[i] = vm.Get(-1)
		vm.Pop(1)
	}
	return rets
}

// ReceiveEvent delivers a script-raised event to every attached script that
// registered a handler for it. The payload is decoded once with the active
// serializer and shared between handlers.
func (c *Container) ReceiveEvent(name string, payload []byte) {
	if len(c.scripts) == 0 {
		return
	}
	value, err := c.decode(payload)
	if err != nil {
		c.log.Error("event payload decode failed",
			zap.String("event", name), zap.Error(err))
		return
	}
	for _, s := range c.scripts {
		if fn := s.eventHandler(name); fn != nil {
			c.call(s.path, fn, 0, value)
		}
	}
}

// ReceiveEngineEvent dispatches a lifecycle notification by pattern match
// on the event kind. The resolver is available for consistency checks; a
// container may legitimately receive engine events while its owner is
// between registrations.
func (c *Container) ReceiveEngineEvent(e EngineEvent, res Resolver) {
	if !c.global && res != nil && !res.Resolves(c.owner) {
		c.log.Debug("engine event for unresolved owner",
			zap.String("object", c.owner.String()), zap.String("kind", e.Kind.String()))
	}
	for _, s := range c.scripts {
		switch e.Kind {
		case EngineActivated:
			if fn := s.engineHandler("onActive"); fn != nil {
				c.call(s.path, fn, 0)
			}
		case EngineDeactivated:
			if fn := s.engineHandler("onInactive"); fn != nil {
				c.call(s.path, fn, 0)
			}
		case EngineConsumed:
			if fn := s.engineHandler("onConsume"); fn != nil {
				c.call(s.path, fn, 0, lua.LString(e.Record))
			}
		}
	}
}

// KeyPress delivers an input press to every script with an onKeyPress
// handler. Only the player's container ever receives these.
func (c *Container) KeyPress(code int32, mod uint16) {
	for _, s := range c.scripts {
		if fn := s.engineHandler("onKeyPress"); fn != nil {
			c.call(s.path, fn, 0, lua.LNumber(code), lua.LNumber(mod))
		}
	}
}

// PlayerAdded notifies global scripts that the player entered the session.
func (c *Container) PlayerAdded(id object.ID) {
	vm := c.env.VM()
	for _, s := range c.scripts {
		if fn := s.engineHandler("onPlayerAdded"); fn != nil {
			c.call(s.path, fn, 0, PushObject(vm, id))
		}
	}
}

// ActorActive notifies global scripts that a non-player actor entered the
// scene.
func (c *Container) ActorActive(id object.ID) {
	vm := c.env.VM()
	for _, s := range c.scripts {
		if fn := s.engineHandler("onActorActive"); fn != nil {
			c.call(s.path, fn, 0, PushObject(vm, id))
		}
	}
}

// Update runs the per-tick update hook on every attached script.
func (c *Container) Update(dt float64) {
	for _, s := range c.scripts {
		if fn := s.engineHandler("onUpdate"); fn != nil {
			c.call(s.path, fn, 0, lua.LNumber(dt))
		}
	}
}

func (c *Container) decode(data []byte) (lua.LValue, error) {
	if c.serializer == nil || len(data) == 0 {
		return lua.LNil, nil
	}
	return c.serializer.Decode(data)
}
