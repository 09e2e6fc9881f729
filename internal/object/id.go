package object

import "fmt"

// GeneratedFile is the content-file index used for entities created at
// runtime rather than introduced by a content file. Generated ids are
// stable within a save but are never remapped on load.
const GeneratedFile int32 = -1

// missingFile marks an id whose content file is absent from the current
// load. Lookups for such ids fail; they are kept so a later load with the
// file present can resolve them again.
const missingFile int32 = -2

// ID names a simulated entity independent of any in-memory handle.
// ContentFile is the index of the content file that introduced the entity
// and Index is the entity's position within that file. Equality is
// structural; the same ID refers to the same logical entity across sessions
// once the content-file index has been remapped to the current load order.
type ID struct {
	ContentFile int32  `json:"file"`
	Index       uint32 `json:"index"`
}

func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.ContentFile, id.Index)
}

// Less orders ids by (ContentFile, Index) for deterministic snapshots.
func (id ID) Less(other ID) bool {
	if id.ContentFile != other.ContentFile {
		return id.ContentFile < other.ContentFile
	}
	return id.Index < other.Index
}

// FileMapping translates content-file indices recorded at save time to the
// indices of the currently loaded content set. The same logical content
// file may load at a different index in a different session.
type FileMapping map[int32]int32

// Apply remaps the content-file index of an id. Generated ids and indices
// without a mapping entry pass through unchanged.
func (m FileMapping) Apply(id ID) ID {
	if id.ContentFile < 0 || m == nil {
		return id
	}
	if current, ok := m[id.ContentFile]; ok {
		id.ContentFile = current
	}
	return id
}

// BuildFileMapping matches the content-file names recorded in a save
// against the currently loaded set. Files absent from the current load map
// to an index that never resolves.
func BuildFileMapping(saved, current []string) FileMapping {
	byName := make(map[string]int32, len(current))
	for i, name := range current {
		byName[name] = int32(i)
	}
	mapping := make(FileMapping, len(saved))
	for i, name := range saved {
		if j, ok := byName[name]; ok {
			mapping[int32(i)] = j
		} else {
			mapping[int32(i)] = missingFile
		}
	}
	return mapping
}
