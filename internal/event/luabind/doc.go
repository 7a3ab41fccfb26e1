// Package luabind lets Lua scripts listen to and trigger dispatcher events.
//
// A Host owns one sandboxed gopher-lua state. Only the base, table, string
// and math libraries are available; dofile, loadfile, load and loadstring
// are removed. Scripts talk to the dispatcher through the global loop
// module described on Host.
//
// Payloads cross the boundary by value: Lua tables become []any or
// map[string]any, integral numbers become int64, and Go maps, slices and
// scalars become the matching Lua values. A Lua error raised by a listener
// is reported by the dispatcher like any other listener failure.
//
// # Usage
//
//	h, err := luabind.NewHost(d, luabind.WithOutput(os.Stdout))
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//	if err := h.DoFile("countdown.lua"); err != nil {
//	    return err
//	}
//	return d.Loop()
package luabind
