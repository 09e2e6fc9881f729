package scripting

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/l1jgo/luahost/internal/object"
)

func newTestVM(t *testing.T) *lua.LState {
	t.Helper()
	vm := lua.NewState()
	t.Cleanup(vm.Close)
	registerObjectType(vm)
	return vm
}

func TestSerializerRoundTrip(t *testing.T) {
	vm := newTestVM(t)
	s := NewSerializer(vm)

	tbl := vm.NewTable()
	tbl.RawSetString("name", lua.LString("guard"))
	tbl.RawSetString("count", lua.LNumber(3))
	tbl.RawSetString("alive", lua.LTrue)
	inner := vm.NewTable()
	inner.RawSetInt(1, lua.LNumber(10))
	inner.RawSetInt(2, lua.LNumber(20))
	tbl.RawSetString("values", inner)

	blob, err := s.Encode(tbl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := s.Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := back.(*lua.LTable)
	if !ok {
		t.Fatalf("decoded %s, want table", back.Type())
	}
	if v := got.RawGetString("name"); v != lua.LString("guard") {
		t.Errorf("name = %v", v)
	}
	if v := got.RawGetString("count"); v != lua.LNumber(3) {
		t.Errorf("count = %v", v)
	}
	if v := got.RawGetString("alive"); v != lua.LTrue {
		t.Errorf("alive = %v", v)
	}
	arr, ok := got.RawGetString("values").(*lua.LTable)
	if !ok || arr.MaxN() != 2 || arr.RawGetInt(2) != lua.LNumber(20) {
		t.Errorf("values did not round-trip: %v", got.RawGetString("values"))
	}
}

func TestSerializerNil(t *testing.T) {
	vm := newTestVM(t)
	s := NewSerializer(vm)

	blob, err := s.Encode(lua.LNil)
	if err != nil {
		t.Fatalf("Encode(nil): %v", err)
	}
	if blob != nil {
		t.Errorf("Encode(nil) = %q, want no bytes", blob)
	}
	v, err := s.Decode(nil)
	if err != nil || v != lua.LNil {
		t.Errorf("Decode(nil) = %v, %v", v, err)
	}
}

func TestSerializerObjectReference(t *testing.T) {
	vm := newTestVM(t)
	s := NewSerializer(vm)

	id := object.ID{ContentFile: 2, Index: 41}
	tbl := vm.NewTable()
	tbl.RawSetString("target", PushObject(vm, id))

	blob, err := s.Encode(tbl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := s.Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := ObjectFromValue(back.(*lua.LTable).RawGetString("target"))
	if !ok {
		t.Fatal("target is not an object handle")
	}
	if got != id {
		t.Errorf("target = %v, want %v", got, id)
	}
}

func TestLoaderRemapsObjectReferences(t *testing.T) {
	vm := newTestVM(t)
	runtime := NewSerializer(vm)

	tbl := vm.NewTable()
	tbl.RawSetString("target", PushObject(vm, object.ID{ContentFile: 1, Index: 7}))
	blob, err := runtime.Encode(tbl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// The mapping may be filled after loader construction.
	mapping := object.FileMapping{}
	loader := NewLoader(vm, mapping)
	mapping[1] = 4

	back, err := loader.Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, _ := ObjectFromValue(back.(*lua.LTable).RawGetString("target"))
	want := object.ID{ContentFile: 4, Index: 7}
	if got != want {
		t.Errorf("remapped target = %v, want %v", got, want)
	}

	// The runtime serializer never remaps.
	back, err = runtime.Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, _ = ObjectFromValue(back.(*lua.LTable).RawGetString("target"))
	if got != (object.ID{ContentFile: 1, Index: 7}) {
		t.Errorf("runtime decode remapped: %v", got)
	}
}

func TestSerializerRejectsFunctions(t *testing.T) {
	vm := newTestVM(t)
	s := NewSerializer(vm)

	tbl := vm.NewTable()
	tbl.RawSetString("fn", vm.NewFunction(func(*lua.LState) int { return 0 }))
	if _, err := s.Encode(tbl); err == nil {
		t.Error("Encode accepted a function value")
	}
}
