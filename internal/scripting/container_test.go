package scripting

import (
	"os"
	"path/filepath"
	"testing"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/luahost/internal/object"
)

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestEnv(t *testing.T) *Environment {
	t.Helper()
	dir := t.TempDir()
	env := NewEnvironment(dir, zap.NewNop())
	t.Cleanup(env.Close)
	return env
}

// capturePackage exposes a note(...) function to scripts and records what
// they pass to it.
func capturePackage(calls *[]lua.LValue) PackageFunc {
	return func(ctx PackageContext) lua.LValue {
		pkg := ctx.VM.NewTable()
		pkg.RawSetString("note", ctx.VM.NewFunction(func(L *lua.LState) int {
			*calls = append(*calls, L.Get(1))
			return 0
		}))
		return pkg
	}
}

func TestAddNewScriptDuplicate(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "a.lua", `return {}`)

	c := NewGlobalContainer(env, zap.NewNop())
	if !c.AddNewScript("a.lua") {
		t.Fatal("first attach failed")
	}
	if c.AddNewScript("a.lua") {
		t.Error("duplicate attach succeeded")
	}
	if c.ScriptCount() != 1 {
		t.Errorf("ScriptCount = %d, want 1", c.ScriptCount())
	}
}

func TestAddNewScriptBadSource(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "broken.lua", `this is not lua (`)

	c := NewGlobalContainer(env, zap.NewNop())
	if c.AddNewScript("broken.lua") {
		t.Error("attach of unparsable script succeeded")
	}
	if c.AddNewScript("missing.lua") {
		t.Error("attach of missing script succeeded")
	}
	if c.ScriptCount() != 0 {
		t.Errorf("ScriptCount = %d, want 0", c.ScriptCount())
	}
}

func TestUpdateHandler(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "tick.lua", `
		return {
			engineHandlers = {
				onUpdate = function(dt) cap.note(dt) end,
			},
		}
	`)

	var calls []lua.LValue
	c := NewGlobalContainer(env, zap.NewNop())
	c.RegisterPackage("cap", capturePackage(&calls))
	if !c.AddNewScript("tick.lua") {
		t.Fatal("attach failed")
	}

	c.Update(0.25)
	c.Update(0.5)
	if len(calls) != 2 || calls[0] != lua.LNumber(0.25) || calls[1] != lua.LNumber(0.5) {
		t.Errorf("onUpdate calls = %v", calls)
	}
}

func TestHandlerErrorDoesNotStopSiblings(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "bad.lua", `
		return {
			engineHandlers = {
				onUpdate = function(dt) error("boom") end,
			},
		}
	`)
	writeScript(t, env.root, "good.lua", `
		return {
			engineHandlers = {
				onUpdate = function(dt) cap.note(dt) end,
			},
		}
	`)

	var calls []lua.LValue
	c := NewGlobalContainer(env, zap.NewNop())
	c.RegisterPackage("cap", capturePackage(&calls))
	c.AddNewScript("bad.lua")
	c.AddNewScript("good.lua")

	c.Update(1)
	if len(calls) != 1 {
		t.Errorf("sibling did not run after handler error: %v", calls)
	}
}

func TestLocalScriptSeesSelf(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "who.lua", `
		cap.note(self)
		return {}
	`)

	var calls []lua.LValue
	owner := object.ID{ContentFile: 1, Index: 3}
	c := NewLocalContainer(env, owner, zap.NewNop())
	c.RegisterPackage("cap", capturePackage(&calls))
	if !c.AddNewScript("who.lua") {
		t.Fatal("attach failed")
	}

	if len(calls) != 1 {
		t.Fatalf("init did not run: %v", calls)
	}
	got, ok := ObjectFromValue(calls[0])
	if !ok || got != owner {
		t.Errorf("self = %v, want %v", calls[0], owner)
	}
}

func TestScriptsDoNotShareEnvironments(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "writer.lua", `
		shared = "leak"
		return {}
	`)
	writeScript(t, env.root, "reader.lua", `
		cap.note(shared)
		return {}
	`)

	var calls []lua.LValue
	c := NewGlobalContainer(env, zap.NewNop())
	c.RegisterPackage("cap", capturePackage(&calls))
	c.AddNewScript("writer.lua")
	c.AddNewScript("reader.lua")

	if len(calls) != 1 || calls[0] != lua.LNil {
		t.Errorf("reader saw writer's global: %v", calls)
	}
}

func TestReceiveEvent(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "ev.lua", `
		return {
			eventHandlers = {
				Ping = function(data) cap.note(data.x) end,
			},
		}
	`)

	var calls []lua.LValue
	c := NewGlobalContainer(env, zap.NewNop())
	c.SetSerializer(NewSerializer(env.VM()))
	c.RegisterPackage("cap", capturePackage(&calls))
	c.AddNewScript("ev.lua")

	c.ReceiveEvent("Ping", []byte(`{"x":7}`))
	c.ReceiveEvent("Unhandled", []byte(`{"x":8}`))
	if len(calls) != 1 || calls[0] != lua.LNumber(7) {
		t.Errorf("Ping handler calls = %v", calls)
	}
}

func TestReceiveEngineEvent(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "life.lua", `
		return {
			engineHandlers = {
				onActive = function() cap.note("active") end,
				onInactive = function() cap.note("inactive") end,
				onConsume = function(record) cap.note(record) end,
			},
		}
	`)

	var calls []lua.LValue
	c := NewLocalContainer(env, object.ID{ContentFile: 0, Index: 1}, zap.NewNop())
	c.RegisterPackage("cap", capturePackage(&calls))
	c.AddNewScript("life.lua")

	c.ReceiveEngineEvent(EngineEvent{Kind: EngineActivated}, nil)
	c.ReceiveEngineEvent(EngineEvent{Kind: EngineDeactivated}, nil)
	c.ReceiveEngineEvent(EngineEvent{Kind: EngineConsumed, Record: "potion_heal"}, nil)

	want := []lua.LValue{lua.LString("active"), lua.LString("inactive"), lua.LString("potion_heal")}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestTimersFireOnceOnCorrectClock(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "tm.lua", `
		return {}
	`)

	var calls []lua.LValue
	c := NewGlobalContainer(env, zap.NewNop())
	c.SetSerializer(NewSerializer(env.VM()))
	c.RegisterPackage("cap", capturePackage(&calls))
	c.AddNewScript("tm.lua")

	vm := env.VM()
	c.RegisterTimerCallback("tm.lua", "ring", vm.NewFunction(func(L *lua.LState) int {
		calls = append(calls, L.Get(1))
		return 0
	}))

	c.AddTimer("tm.lua", TimerSeconds, 10, "ring", []byte(`"sec"`))
	c.AddTimer("tm.lua", TimerHours, 2, "ring", []byte(`"hr"`))

	c.ProcessTimers(5, 1)
	if len(calls) != 0 {
		t.Fatalf("timer fired early: %v", calls)
	}
	c.ProcessTimers(10, 1)
	if len(calls) != 1 || calls[0] != lua.LString("sec") {
		t.Fatalf("seconds timer: %v", calls)
	}
	c.ProcessTimers(11, 2)
	if len(calls) != 2 || calls[1] != lua.LString("hr") {
		t.Fatalf("hours timer: %v", calls)
	}
	// Fired timers never fire again.
	c.ProcessTimers(100, 100)
	if len(calls) != 2 {
		t.Errorf("timer fired twice: %v", calls)
	}
	if c.PendingTimers() != 0 {
		t.Errorf("PendingTimers = %d, want 0", c.PendingTimers())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "state.lua", `
		local counter = 0
		return {
			engineHandlers = {
				onUpdate = function(dt) counter = counter + 1 end,
				onSave = function() return { counter = counter } end,
				onLoad = function(data) cap.note(data.counter) end,
			},
		}
	`)

	var calls []lua.LValue
	c := NewGlobalContainer(env, zap.NewNop())
	c.SetSerializer(NewSerializer(env.VM()))
	c.RegisterPackage("cap", capturePackage(&calls))
	c.AddNewScript("state.lua")

	c.Update(1)
	c.Update(1)
	c.AddTimer("state.lua", TimerSeconds, 99, "later", nil)

	var d Data
	c.Save(&d)
	if len(d.Scripts) != 1 || d.Scripts[0].Path != "state.lua" {
		t.Fatalf("saved scripts = %+v", d.Scripts)
	}
	if len(d.Timers) != 1 || d.Timers[0].At != 99 {
		t.Fatalf("saved timers = %+v", d.Timers)
	}

	// Fresh container restores the script list from the snapshot.
	c2 := NewGlobalContainer(env, zap.NewNop())
	c2.SetSerializer(NewSerializer(env.VM()))
	c2.RegisterPackage("cap", capturePackage(&calls))
	c2.Load(d, true)

	if c2.ScriptCount() != 1 {
		t.Fatalf("ScriptCount after load = %d", c2.ScriptCount())
	}
	if len(calls) != 1 || calls[0] != lua.LNumber(2) {
		t.Errorf("onLoad calls = %v", calls)
	}
	if c2.PendingTimers() != 1 {
		t.Errorf("PendingTimers after load = %d", c2.PendingTimers())
	}
}

func TestLoadWithoutResetKeepsAttachments(t *testing.T) {
	env := newTestEnv(t)
	writeScript(t, env.root, "keep.lua", `
		return {
			engineHandlers = {
				onLoad = function(data) cap.note(data) end,
			},
		}
	`)

	var calls []lua.LValue
	c := NewGlobalContainer(env, zap.NewNop())
	c.SetSerializer(NewSerializer(env.VM()))
	c.RegisterPackage("cap", capturePackage(&calls))
	c.AddNewScript("keep.lua")

	d := Data{
		Scripts: []ScriptData{
			{Path: "keep.lua", Data: []byte(`"saved"`)},
			{Path: "gone.lua", Data: []byte(`"orphan"`)},
		},
	}
	c.Load(d, false)

	if c.ScriptCount() != 1 {
		t.Errorf("ScriptCount = %d, want 1", c.ScriptCount())
	}
	if len(calls) != 1 || calls[0] != lua.LString("saved") {
		t.Errorf("onLoad calls = %v", calls)
	}
}
