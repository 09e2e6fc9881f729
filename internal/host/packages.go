package host

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/luahost/internal/scripting"
)

// RegisterGlobalPackage exposes a capability table to global scripts.
// Must be called before Init.
func (m *Manager) RegisterGlobalPackage(name string, build scripting.PackageFunc) {
	if _, ok := m.globalPackages[name]; !ok {
		m.globalPackageNames = append(m.globalPackageNames, name)
	}
	m.globalPackages[name] = build
}

// RegisterLocalPackage exposes a capability table to local scripts attached
// after this call.
func (m *Manager) RegisterLocalPackage(name string, build scripting.PackageFunc) {
	if _, ok := m.localPackages[name]; !ok {
		m.localPackageNames = append(m.localPackageNames, name)
	}
	m.localPackages[name] = build
}

// RegisterPlayerPackage exposes a capability table only to the player's
// container.
func (m *Manager) RegisterPlayerPackage(name string, build scripting.PackageFunc) {
	if _, ok := m.playerPackages[name]; !ok {
		m.playerPackageNames = append(m.playerPackageNames, name)
	}
	m.playerPackages[name] = build
}

// corePackage builds the built-in `core` table every script sees: clocks,
// event sending, timers, and UI messages. Event payloads are encoded at send
// time so the queue holds frozen snapshots.
func (m *Manager) corePackage() scripting.PackageFunc {
	return func(ctx scripting.PackageContext) lua.LValue {
		vm := ctx.VM
		pkg := vm.NewTable()

		pkg.RawSetString("getSimulationTime", vm.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(m.view.Seconds()))
			return 1
		}))
		pkg.RawSetString("getGameHours", vm.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(m.view.GameHours()))
			return 1
		}))

		pkg.RawSetString("sendGlobalEvent", vm.NewFunction(func(L *lua.LState) int {
			name := L.CheckString(1)
			payload, err := ctx.Container.Serializer().Encode(L.Get(2))
			if err != nil {
				L.RaiseError("sendGlobalEvent: %v", err)
				return 0
			}
			m.EnqueueGlobalEvent(name, payload)
			return 0
		}))
		pkg.RawSetString("sendLocalEvent", vm.NewFunction(func(L *lua.LState) int {
			dest, ok := scripting.ObjectFromValue(L.Get(1))
			if !ok {
				L.RaiseError("sendLocalEvent: first argument must be an object")
				return 0
			}
			name := L.CheckString(2)
			payload, err := ctx.Container.Serializer().Encode(L.Get(3))
			if err != nil {
				L.RaiseError("sendLocalEvent: %v", err)
				return 0
			}
			m.EnqueueLocalEvent(dest, name, payload)
			return 0
		}))

		pkg.RawSetString("registerTimerCallback", vm.NewFunction(func(L *lua.LState) int {
			name := L.CheckString(1)
			fn := L.CheckFunction(2)
			ctx.Container.RegisterTimerCallback(ctx.ScriptPath, name, fn)
			return 0
		}))
		pkg.RawSetString("newTimerSeconds", vm.NewFunction(func(L *lua.LState) int {
			m.addTimer(L, ctx, scripting.TimerSeconds)
			return 0
		}))
		pkg.RawSetString("newTimerHours", vm.NewFunction(func(L *lua.LState) int {
			m.addTimer(L, ctx, scripting.TimerHours)
			return 0
		}))

		pkg.RawSetString("message", vm.NewFunction(func(L *lua.LState) int {
			m.QueueMessage(L.CheckString(1))
			return 0
		}))

		return pkg
	}
}

func (m *Manager) addTimer(L *lua.LState, ctx scripting.PackageContext, kind scripting.TimerKind) {
	at := float64(L.CheckNumber(1))
	callback := L.CheckString(2)
	arg, err := ctx.Container.Serializer().Encode(L.Get(3))
	if err != nil {
		L.RaiseError("timer argument: %v", err)
		return
	}
	ctx.Container.AddTimer(ctx.ScriptPath, kind, at, callback, arg)
	m.log.Debug("timer scheduled",
		zap.String("script", ctx.ScriptPath),
		zap.String("callback", callback),
		zap.Float64("at", at))
}
