package luabind

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// safeLibs are the standard libraries opened in every host state.
// io, os, debug and package are intentionally absent.
var safeLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// newState creates a sandboxed Lua state. Functions that load code from
// disk or from strings are removed, and so is the module loader.
func newState(o options) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: o.callStackSize,
		RegistrySize:  o.registrySize,
	})

	for _, lib := range safeLibs {
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("open %s library: %w", lib.name, err)
		}
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L, nil
}
