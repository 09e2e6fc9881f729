package host

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"github.com/l1jgo/luahost/internal/object"
	"github.com/l1jgo/luahost/internal/persist"
	"github.com/l1jgo/luahost/internal/scripting"
	"github.com/l1jgo/luahost/internal/world"
)

// sessionRecord is the persisted body of the scripting host: the world view,
// the global container snapshot, and every queued-but-undelivered event, so
// cross-session delivery order survives a save/load cycle.
type sessionRecord struct {
	View         world.ViewState `json:"view"`
	ContentFiles []string        `json:"contentFiles"`
	Global       scripting.Data  `json:"global"`
	GlobalEvents []GlobalEvent   `json:"globalEvents,omitempty"`
	LocalEvents  []LocalEvent    `json:"localEvents,omitempty"`
}

// WriteRecord serializes the host's state as one framed record.
func (m *Manager) WriteRecord(w io.Writer) error {
	rec := sessionRecord{
		View:         m.view.Snapshot(),
		ContentFiles: m.contentFiles,
		GlobalEvents: m.globalEvents,
		LocalEvents:  m.localEvents,
	}
	m.global.Save(&rec.Global)

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	framed, err := persist.WriteRecord(persist.RecordLuaScripts, persist.RecordVersion, payload)
	if err != nil {
		return fmt.Errorf("frame session record: %w", err)
	}
	if _, err := w.Write(framed); err != nil {
		return fmt.Errorf("write session record: %w", err)
	}
	return nil
}

// ReadRecord restores the host's state from a framed record. The saved
// content-file order is reconciled with the current one first, so every
// object identity embedded in the record is remapped exactly once. In-memory
// state is not guaranteed consistent after a failed load; the caller must
// treat load as atomic-or-abort.
func (m *Manager) ReadRecord(r io.Reader) error {
	framed, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read session record: %w", err)
	}
	version, payload, err := persist.ReadRecord(framed, persist.RecordLuaScripts)
	if err != nil {
		return err
	}
	if version > persist.RecordVersion {
		return fmt.Errorf("session record version %d is newer than supported %d",
			version, persist.RecordVersion)
	}
	var rec sessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return fmt.Errorf("unmarshal session record: %w", err)
	}

	// The loaders hold a reference to this map; refill it in place.
	for k := range m.fileMapping {
		delete(m.fileMapping, k)
	}
	for k, v := range object.BuildFileMapping(rec.ContentFiles, m.contentFiles) {
		m.fileMapping[k] = v
	}

	m.view.Restore(rec.View)

	m.global.SetSerializer(m.globalLoader)
	m.global.Load(rec.Global, true)
	m.global.SetSerializer(m.globalSerializer)

	m.globalEvents = m.globalEvents[:0]
	for _, ev := range rec.GlobalEvents {
		ev.Payload, err = m.remapPayload(m.globalLoader, m.globalSerializer, ev.Payload)
		if err != nil {
			return fmt.Errorf("remap global event %s: %w", ev.Name, err)
		}
		m.globalEvents = append(m.globalEvents, ev)
	}
	m.localEvents = m.localEvents[:0]
	for _, ev := range rec.LocalEvents {
		ev.Dest = m.fileMapping.Apply(ev.Dest)
		ev.Payload, err = m.remapPayload(m.localLoader, m.localSerializer, ev.Payload)
		if err != nil {
			return fmt.Errorf("remap local event %s: %w", ev.Name, err)
		}
		m.localEvents = append(m.localEvents, ev)
	}
	return nil
}

// remapPayload pushes an opaque blob through the loader and back through the
// runtime serializer, applying the content-file mapping to embedded ids.
func (m *Manager) remapPayload(loader, runtime scripting.Serializer, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	value, err := loader.Decode(payload)
	if err != nil {
		return nil, err
	}
	return runtime.Encode(value)
}

// SaveLocalScripts snapshots an entity's container. An entity with no
// scripts saves as nil: no container is recreated for it on load.
func (m *Manager) SaveLocalScripts(e *world.Entity) ([]byte, error) {
	c := e.Ref.Scripts
	if c == nil || c.ScriptCount() == 0 {
		return nil, nil
	}
	var d scripting.Data
	c.Save(&d)
	blob, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal local scripts %s: %w", e.ID(), err)
	}
	return blob, nil
}

// LoadLocalScripts restores an entity's container from its saved block. An
// empty block clears the container reference entirely; otherwise a container
// is created if absent and loaded with content-file remapping applied.
func (m *Manager) LoadLocalScripts(e *world.Entity, blob []byte) error {
	if len(blob) == 0 {
		e.Ref.Scripts = nil
		return nil
	}
	var d scripting.Data
	if err := json.Unmarshal(blob, &d); err != nil {
		return fmt.Errorf("unmarshal local scripts %s: %w", e.ID(), err)
	}
	c := e.Ref.Scripts
	if c == nil {
		c = m.createLocalContainer(e, false)
	}
	c.SetSerializer(m.localLoader)
	c.Load(d, true)
	c.SetSerializer(m.localSerializer)
	if c.ScriptCount() == 0 {
		e.Ref.Scripts = nil
	}
	return nil
}
