package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"
)

// Environment wraps a single gopher-lua VM shared by every script container
// in the host, plus a compiled-chunk cache keyed by script path.
// Single-goroutine access only (game loop).
type Environment struct {
	vm     *lua.LState
	log    *zap.Logger
	root   string
	protos map[string]*lua.FunctionProto
}

// NewEnvironment creates the shared Lua VM. root is the directory script
// paths are resolved against.
func NewEnvironment(root string, log *zap.Logger) *Environment {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	registerObjectType(vm)
	return &Environment{
		vm:     vm,
		log:    log,
		root:   root,
		protos: make(map[string]*lua.FunctionProto),
	}
}

func (e *Environment) VM() *lua.LState { return e.vm }

// Compile returns the compiled chunk for a script path, compiling and
// caching it on first use. Paths are slash-separated and relative to the
// environment root; the path itself is the script's identity.
func (e *Environment) Compile(path string) (*lua.FunctionProto, error) {
	if proto, ok := e.protos[path]; ok {
		return proto, nil
	}
	src, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	chunk, err := parse.Parse(strings.NewReader(string(src)), path)
	if err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", path, err)
	}
	e.protos[path] = proto
	return proto, nil
}

// DropScriptCache discards every cached compiled chunk so the next
// instantiation re-reads script sources from disk.
func (e *Environment) DropScriptCache() {
	e.protos = make(map[string]*lua.FunctionProto)
	e.log.Debug("script cache dropped")
}

// Close shuts down the Lua VM.
func (e *Environment) Close() {
	e.vm.Close()
}
