package scripting

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
	lua "github.com/yuin/gopher-lua"

	"github.com/l1jgo/luahost/internal/object"
)

const objectTypeName = "luahost.object"

// objectKey marks an encoded object reference inside a value tree.
const objectKey = "$object"

// Serializer converts opaque script-side values to and from their persisted
// representation. Two independent instances exist per scope: a runtime
// serializer that references live identities directly, and a persistence
// loader that remaps content-file indices recorded under an old load order.
type Serializer interface {
	Encode(v lua.LValue) ([]byte, error)
	Decode(data []byte) (lua.LValue, error)
}

// ValueSerializer encodes Lua values as JSON. Tables with consecutive
// integer keys 1..n become arrays; everything else becomes an object with
// string keys (numeric keys are stringified and stay strings on decode, so
// persisted script data should prefer string keys). Object handles survive
// as tagged references.
type ValueSerializer struct {
	vm      *lua.LState
	mapping object.FileMapping // nil for the runtime serializer
}

// NewSerializer creates a runtime serializer for live execution.
func NewSerializer(vm *lua.LState) *ValueSerializer {
	return &ValueSerializer{vm: vm}
}

// NewLoader creates a persistence loader. Every object reference decoded
// through it has mapping applied to its content-file index before any
// lookup can be attempted. The mapping may be filled in after construction;
// the loader reads it at decode time.
func NewLoader(vm *lua.LState, mapping object.FileMapping) *ValueSerializer {
	return &ValueSerializer{vm: vm, mapping: mapping}
}

func (s *ValueSerializer) Encode(v lua.LValue) ([]byte, error) {
	if v == nil || v == lua.LNil {
		return nil, nil
	}
	tree, err := toTree(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

func (s *ValueSerializer) Decode(data []byte) (lua.LValue, error) {
	if len(data) == 0 {
		return lua.LNil, nil
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode script value: %w", err)
	}
	return s.fromTree(tree), nil
}

func toTree(v lua.LValue) (any, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LUserData:
		id, ok := val.Value.(object.ID)
		if !ok {
			return nil, fmt.Errorf("cannot serialize userdata of type %T", val.Value)
		}
		return map[string]any{objectKey: []any{float64(id.ContentFile), float64(id.Index)}}, nil
	case *lua.LTable:
		return tableToTree(val)
	default:
		return nil, fmt.Errorf("cannot serialize %s value", v.Type())
	}
}

func tableToTree(t *lua.LTable) (any, error) {
	n := t.MaxN()
	total := 0
	var walkErr error
	t.ForEach(func(lua.LValue, lua.LValue) { total++ })

	if n > 0 && n == total {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			item, err := toTree(t.RawGetInt(i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
		return arr, nil
	}

	obj := make(map[string]any, total)
	t.ForEach(func(k, v lua.LValue) {
		if walkErr != nil {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kv), 'g', -1, 64)
		default:
			walkErr = fmt.Errorf("cannot serialize table key of type %s", k.Type())
			return
		}
		item, err := toTree(v)
		if err != nil {
			walkErr = err
			return
		}
		obj[key] = item
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return obj, nil
}

func (s *ValueSerializer) fromTree(tree any) lua.LValue {
	switch val := tree.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := s.vm.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, s.fromTree(item))
		}
		return t
	case map[string]any:
		if ref, ok := val[objectKey]; ok && len(val) == 1 {
			if id, ok := refToID(ref); ok {
				return PushObject(s.vm, s.mapping.Apply(id))
			}
		}
		t := s.vm.NewTable()
		for key, item := range val {
			t.RawSetString(key, s.fromTree(item))
		}
		return t
	default:
		return lua.LNil
	}
}

func refToID(ref any) (object.ID, bool) {
	parts, ok := ref.([]any)
	if !ok || len(parts) != 2 {
		return object.ID{}, false
	}
	file, ok1 := parts[0].(float64)
	index, ok2 := parts[1].(float64)
	if !ok1 || !ok2 {
		return object.ID{}, false
	}
	return object.ID{ContentFile: int32(file), Index: uint32(index)}, true
}

// registerObjectType installs the shared metatable for object handles.
func registerObjectType(vm *lua.LState) {
	mt := vm.NewTypeMetatable(objectTypeName)
	vm.SetField(mt, "__tostring", vm.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		if id, ok := ud.Value.(object.ID); ok {
			L.Push(lua.LString("object(" + id.String() + ")"))
		} else {
			L.Push(lua.LString("object(?)"))
		}
		return 1
	}))
	vm.SetField(mt, "__eq", vm.NewFunction(func(L *lua.LState) int {
		a, aok := L.CheckUserData(1).Value.(object.ID)
		b, bok := L.CheckUserData(2).Value.(object.ID)
		L.Push(lua.LBool(aok && bok && a == b))
		return 1
	}))
}

// PushObject wraps an object identity as Lua userdata. Only the identity
// crosses into script space; handle resolution always goes through the
// registry on the Go side.
func PushObject(vm *lua.LState, id object.ID) *lua.LUserData {
	ud := vm.NewUserData()
	ud.Value = id
	vm.SetMetatable(ud, vm.GetTypeMetatable(objectTypeName))
	return ud
}

// ObjectFromValue extracts an object identity from a script value.
func ObjectFromValue(v lua.LValue) (object.ID, bool) {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return object.ID{}, false
	}
	id, ok := ud.Value.(object.ID)
	return id, ok
}
