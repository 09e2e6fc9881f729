package scripting

import "github.com/l1jgo/luahost/internal/object"

// EngineEventKind enumerates the lifecycle notifications the simulation
// itself delivers to a local container, as opposed to script-raised events.
type EngineEventKind uint8

const (
	// EngineActivated fires when the owning entity becomes part of the
	// active scene.
	EngineActivated EngineEventKind = iota
	// EngineDeactivated fires when the owning entity leaves the scene but
	// still exists.
	EngineDeactivated
	// EngineConsumed fires when a record (item, ingredient) is applied to
	// the owning entity; Record carries the record id.
	EngineConsumed
)

func (k EngineEventKind) String() string {
	switch k {
	case EngineActivated:
		return "activated"
	case EngineDeactivated:
		return "deactivated"
	case EngineConsumed:
		return "consumed"
	}
	return "unknown"
}

// EngineEvent is a closed tagged union; Record is only meaningful for
// EngineConsumed.
type EngineEvent struct {
	Kind   EngineEventKind
	Record string
}

// Resolver reports whether an object identity currently resolves to a
// live, valid handle. "Not found" is a normal outcome, never exceptional.
type Resolver interface {
	Resolves(object.ID) bool
}

// TimerKind selects which clock a pending timer fires against.
type TimerKind uint8

const (
	TimerSeconds TimerKind = iota // absolute simulation seconds
	TimerHours                    // absolute game-time hours
)

// Data is a container's persistable snapshot: the attached script set with
// each script's opaque data blob, and the pending timers in absolute time.
type Data struct {
	Scripts []ScriptData `json:"scripts,omitempty"`
	Timers  []TimerData  `json:"timers,omitempty"`
}

// ScriptData pairs a script's identity (its source path) with the opaque
// blob its onSave handler produced.
type ScriptData struct {
	Path string `json:"path"`
	Data []byte `json:"data,omitempty"`
}

// TimerData is one pending timer. Arg holds the serialized callback
// argument so the timer survives a save/load cycle.
type TimerData struct {
	Script   string    `json:"script"`
	Kind     TimerKind `json:"kind"`
	At       float64   `json:"at"`
	Callback string    `json:"callback"`
	Arg      []byte    `json:"arg,omitempty"`
}
