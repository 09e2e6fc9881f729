package world

import (
	"sort"

	"github.com/l1jgo/luahost/internal/object"
)

// View is the scripting-facing picture of the simulation: the two clocks
// and the set of objects currently in the active scene. It advances only
// inside the unpaused part of the frame.
type View struct {
	registry  *Registry
	seconds   float64
	gameHours float64
	timeScale float64
	inScene   map[object.ID]struct{}
}

// ViewState is the persisted form of a View.
type ViewState struct {
	Seconds   float64     `json:"seconds"`
	GameHours float64     `json:"gameHours"`
	Scene     []object.ID `json:"scene,omitempty"`
}

// NewView wraps a registry. timeScale converts real simulation seconds into
// game-time hours (seconds * timeScale / 3600).
func NewView(registry *Registry, timeScale float64) *View {
	return &View{
		registry:  registry,
		timeScale: timeScale,
		inScene:   make(map[object.ID]struct{}),
	}
}

func (v *View) Registry() *Registry { return v.registry }
func (v *View) Seconds() float64    { return v.seconds }
func (v *View) GameHours() float64  { return v.gameHours }

func (v *View) SetTimeScale(scale float64) { v.timeScale = scale }

// Advance moves both clocks forward by dt real seconds.
func (v *View) Advance(dt float64) {
	v.seconds += dt
	v.gameHours += dt * v.timeScale / 3600
}

func (v *View) ObjectAddedToScene(id object.ID) {
	v.inScene[id] = struct{}{}
}

func (v *View) ObjectRemovedFromScene(id object.ID) {
	delete(v.inScene, id)
}

func (v *View) InScene(id object.ID) bool {
	_, ok := v.inScene[id]
	return ok
}

// Snapshot captures the clocks and the scene set. Scene ids are sorted so
// the persisted form is deterministic.
func (v *View) Snapshot() ViewState {
	scene := make([]object.ID, 0, len(v.inScene))
	for id := range v.inScene {
		scene = append(scene, id)
	}
	sort.Slice(scene, func(i, j int) bool { return scene[i].Less(scene[j]) })
	return ViewState{
		Seconds:   v.seconds,
		GameHours: v.gameHours,
		Scene:     scene,
	}
}

// Restore replaces the clocks and scene set with a snapshot's.
func (v *View) Restore(st ViewState) {
	v.seconds = st.Seconds
	v.gameHours = st.GameHours
	v.inScene = make(map[object.ID]struct{}, len(st.Scene))
	for _, id := range st.Scene {
		v.inScene[id] = struct{}{}
	}
}

// Clear resets the clocks and empties the scene set.
func (v *View) Clear() {
	v.seconds = 0
	v.gameHours = 0
	v.inScene = make(map[object.ID]struct{})
}
