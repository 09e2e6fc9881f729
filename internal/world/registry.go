package world

import (
	"github.com/l1jgo/luahost/internal/object"
)

// Registry maps object identities to entities. Deregistering invalidates
// the entity's handle but keeps the entry so late lookups can tell "known
// but gone" apart from "never existed"; only Clear drops entries.
// Single-goroutine access only (game loop).
type Registry struct {
	entities map[object.ID]*Entity
	nextGen  uint32
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[object.ID]*Entity)}
}

// Register adds an entity and marks its handle valid. An entity with a zero
// id gets a generated identity (negative content-file index) so it can never
// collide with content-defined objects.
func (r *Registry) Register(e *Entity) object.ID {
	if e.id.IsZero() {
		r.nextGen++
		e.id = object.ID{ContentFile: object.GeneratedFile, Index: r.nextGen}
	}
	e.valid = true
	r.entities[e.id] = e
	return e.id
}

// Deregister invalidates the entity's handle. Looking up the id afterwards
// still finds the entry, but Valid reports false.
func (r *Registry) Deregister(id object.ID) {
	if e, ok := r.entities[id]; ok {
		e.valid = false
	}
}

// Get returns the entity for an id. The second result is false when the id
// was never registered; callers must additionally check Valid.
func (r *Registry) Get(id object.ID) (*Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// Resolves reports whether the id refers to a currently valid entity.
func (r *Registry) Resolves(id object.ID) bool {
	e, ok := r.entities[id]
	return ok && e.valid
}

// Each visits every registered entity, valid or not.
func (r *Registry) Each(fn func(*Entity)) {
	for _, e := range r.entities {
		fn(e)
	}
}

// Clear drops every entry and resets generated-id allocation.
func (r *Registry) Clear() {
	r.entities = make(map[object.ID]*Entity)
	r.nextGen = 0
}
