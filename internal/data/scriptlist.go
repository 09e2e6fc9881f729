package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScriptEntry names one script and the object kinds it auto-attaches to.
// A global entry runs in the world-scope container; Records lists record
// ids whose instances get the script as a local; Player marks player-only
// scripts.
type ScriptEntry struct {
	Path    string   `yaml:"path"`
	Global  bool     `yaml:"global"`
	Player  bool     `yaml:"player"`
	Records []string `yaml:"records"`
}

// ScriptList is the canonical script configuration: which scripts exist and
// where they attach. Order in the file is attachment order.
type ScriptList struct {
	entries  []ScriptEntry
	byRecord map[string][]string // record id → script paths
}

// GlobalPaths returns the global script paths in file order.
func (l *ScriptList) GlobalPaths() []string {
	var paths []string
	for _, e := range l.entries {
		if e.Global {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// PlayerPaths returns the player-only script paths in file order.
func (l *ScriptList) PlayerPaths() []string {
	var paths []string
	for _, e := range l.entries {
		if e.Player {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// PathsForRecord returns the scripts auto-attached to instances of a record.
func (l *ScriptList) PathsForRecord(recordID string) []string {
	return l.byRecord[recordID]
}

// Count returns the number of script entries loaded.
func (l *ScriptList) Count() int {
	return len(l.entries)
}

// --- YAML loading ---

type scriptListFile struct {
	Scripts []ScriptEntry `yaml:"scripts"`
}

// LoadScriptList loads the script configuration from YAML.
func LoadScriptList(path string) (*ScriptList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scriptlist: read %s: %w", path, err)
	}

	var f scriptListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("scriptlist: parse %s: %w", path, err)
	}

	l := &ScriptList{
		entries:  f.Scripts,
		byRecord: make(map[string][]string),
	}
	for _, e := range f.Scripts {
		for _, rec := range e.Records {
			l.byRecord[rec] = append(l.byRecord[rec], e.Path)
		}
	}
	return l, nil
}

type contentListFile struct {
	Content []string `yaml:"content"`
}

// LoadContentFiles loads the ordered content file list. The position of a
// name in this list is its content-file index for object identities.
func LoadContentFiles(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contentfiles: read %s: %w", path, err)
	}

	var f contentListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("contentfiles: parse %s: %w", path, err)
	}
	return f.Content, nil
}
