package world

import (
	"github.com/l1jgo/luahost/internal/object"
	"github.com/l1jgo/luahost/internal/scripting"
)

// RefData is the mutable per-entity payload scripts attach to. A nil
// Scripts container means the entity never carried local scripts.
type RefData struct {
	Scripts *scripting.Container
}

// Entity is a simulation object. Identity (the object.ID) is stable for the
// object's lifetime; the Entity value itself is a handle that can go invalid
// when the object is deregistered, and must be revalidated through the
// registry before use.
type Entity struct {
	id       object.ID
	RecordID string
	Actor    bool
	valid    bool
	Ref      *RefData
}

// NewEntity creates an unregistered entity. The id may be zero, in which
// case the registry assigns a generated one at registration.
func NewEntity(id object.ID, recordID string, actor bool) *Entity {
	return &Entity{
		id:       id,
		RecordID: recordID,
		Actor:    actor,
		Ref:      &RefData{},
	}
}

func (e *Entity) ID() object.ID { return e.id }

// Valid reports whether the handle still refers to a registered object.
func (e *Entity) Valid() bool { return e != nil && e.valid }
