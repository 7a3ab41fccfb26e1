package luabind

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/runloop/internal/event"
	"github.com/dshills/runloop/internal/event/dispatch"
)

// eventTypeName is the metatable name of event handles.
const eventTypeName = "loop.event"

// Option configures a Host.
type Option func(*options)

type options struct {
	out           io.Writer
	logger        zerolog.Logger
	callStackSize int
	registrySize  int
}

// WithOutput sets where the script's print writes. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

// WithLogger sets the logger for script loading.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCallStackSize sets the Lua call stack size. Zero keeps the gopher-lua
// default.
func WithCallStackSize(n int) Option {
	return func(o *options) {
		o.callStackSize = n
	}
}

// WithRegistrySize sets the initial Lua registry size. Zero keeps the
// gopher-lua default.
func WithRegistrySize(n int) Option {
	return func(o *options) {
		o.registrySize = n
	}
}

// Host runs Lua scripts whose functions listen to dispatcher events.
//
// A script sees a global loop module:
//
//	loop.event(name)             -- event handle emitted by the host
//	loop.on(evt, fn [, data])    -- fn(name, payload, data) runs on dispatch
//	loop.off(evt)                -- remove this script's listeners on evt
//	loop.trigger(evt [, payload])
//	loop.exit()
//	loop.queue_size()
//
// evt is a handle or the name of a built-in event ("loop_start",
// "loop_end", "queue_empty") or of an event made with loop.event.
//
// Lua state is not goroutine-safe; a Host must be used from the goroutine
// that runs the dispatcher loop.
type Host struct {
	d      *dispatch.Dispatcher
	L      *lua.LState
	out    io.Writer
	logger zerolog.Logger

	events    map[string]*event.Event
	handles   map[*event.Event]*lua.LUserData
	listeners []*listener
	closed    bool
}

// listener binds one Lua function to an event. The host keeps every
// listener reachable until it is unregistered.
type listener struct {
	host *Host
	fn   *lua.LFunction
	ev   *event.Event
}

// NewHost creates a host bound to d.
func NewHost(d *dispatch.Dispatcher, opts ...Option) (*Host, error) {
	o := options{
		out:    os.Stdout,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	L, err := newState(o)
	if err != nil {
		return nil, err
	}

	h := &Host{
		d:       d,
		L:       L,
		out:     o.out,
		logger:  o.logger,
		events:  make(map[string]*event.Event),
		handles: make(map[*event.Event]*lua.LUserData),
	}
	h.install()
	return h, nil
}

func (h *Host) install() {
	mt := h.L.NewTypeMetatable(eventTypeName)
	h.L.SetField(mt, "__tostring", h.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(h.checkEvent(L, 1).String()))
		return 1
	}))
	h.L.SetField(mt, "__index", h.L.SetFuncs(h.L.NewTable(), map[string]lua.LGFunction{
		"name": func(L *lua.LState) int {
			L.Push(lua.LString(h.checkEvent(L, 1).Name()))
			return 1
		},
		"id": func(L *lua.LState) int {
			L.Push(lua.LString(h.checkEvent(L, 1).ID()))
			return 1
		},
	}))

	mod := h.L.SetFuncs(h.L.NewTable(), map[string]lua.LGFunction{
		"event":      h.luaEvent,
		"on":         h.luaOn,
		"off":        h.luaOff,
		"trigger":    h.luaTrigger,
		"exit":       h.luaExit,
		"queue_size": h.luaQueueSize,
	})
	h.L.SetGlobal("loop", mod)
	h.L.SetGlobal("print", h.L.NewFunction(h.luaPrint))
}

// DoFile runs the script at path. Listeners it registers take part in the
// next dispatcher loop.
func (h *Host) DoFile(path string) error {
	if h.closed {
		return ErrHostClosed
	}
	h.logger.Debug().Str("script", path).Msg("loading script")
	if err := h.L.DoFile(path); err != nil {
		return fmt.Errorf("run script %s: %w", path, err)
	}
	return nil
}

// DoString runs a chunk of Lua code.
func (h *Host) DoString(code string) error {
	if h.closed {
		return ErrHostClosed
	}
	if err := h.L.DoString(code); err != nil {
		return fmt.Errorf("run script: %w", err)
	}
	return nil
}

// Event returns the event made by loop.event(name).
func (h *Host) Event(name string) (*event.Event, bool) {
	ev, ok := h.events[name]
	return ev, ok
}

// Len returns the number of registered script listeners.
func (h *Host) Len() int {
	return len(h.listeners)
}

// Close unregisters every listener of the script and closes the Lua state.
func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	for _, l := range h.listeners {
		event.UnregisterOwner(l.ev, l)
	}
	h.listeners = nil
	clear(h.handles)
	h.L.Close()
	return nil
}

// handle calls the Lua function with the event name, the payload and the
// listener data.
func (l *listener) handle(ev *event.Event, payload, data any) error {
	h := l.host
	if h.closed {
		return ErrHostClosed
	}
	lv, ok := data.(lua.LValue)
	if !ok {
		lv = lua.LNil
	}
	err := h.L.CallByParam(lua.P{
		Fn:      l.fn,
		NRet:    0,
		Protect: true,
	}, lua.LString(ev.Name()), h.payload(payload), lv)
	if err != nil {
		return fmt.Errorf("lua listener on %s: %w", ev.Name(), err)
	}
	return nil
}

func (h *Host) payload(v any) lua.LValue {
	if ev, ok := v.(*event.Event); ok {
		return h.eventValue(ev)
	}
	return toLua(h.L, v)
}

// eventValue returns the Lua handle of ev. Each event has one handle, so
// handles compare equal in Lua.
func (h *Host) eventValue(ev *event.Event) *lua.LUserData {
	if ud, ok := h.handles[ev]; ok {
		return ud
	}
	ud := h.L.NewUserData()
	ud.Value = ev
	h.L.SetMetatable(ud, h.L.GetTypeMetatable(eventTypeName))
	h.handles[ev] = ud
	return ud
}

func (h *Host) lookup(name string) (*event.Event, bool) {
	switch name {
	case "loop_start":
		return h.d.LoopStart(), true
	case "loop_end":
		return h.d.LoopEnd(), true
	case "queue_empty":
		return h.d.QueueEmpty(), true
	}
	ev, ok := h.events[name]
	return ev, ok
}

// checkEvent resolves argument n to an event or raises a Lua error.
func (h *Host) checkEvent(L *lua.LState, n int) *event.Event {
	switch v := L.Get(n).(type) {
	case lua.LString:
		if ev, ok := h.lookup(string(v)); ok {
			return ev
		}
		L.ArgError(n, fmt.Sprintf("%s %q", ErrUnknownEvent, string(v)))
	case *lua.LUserData:
		if ev, ok := v.Value.(*event.Event); ok {
			return ev
		}
	}
	L.ArgError(n, "event expected")
	return nil
}

func (h *Host) luaEvent(L *lua.LState) int {
	name := L.CheckString(1)
	ev, ok := h.lookup(name)
	if !ok {
		ev = event.New(h, event.WithName(name), event.WithQueue(h.d))
		h.events[name] = ev
	}
	L.Push(h.eventValue(ev))
	return 1
}

func (h *Host) luaOn(L *lua.LState) int {
	ev := h.checkEvent(L, 1)
	l := &listener{
		host: h,
		fn:   L.CheckFunction(2),
		ev:   ev,
	}
	if err := event.Register(ev, l, (*listener).handle, L.Get(3)); err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	h.listeners = append(h.listeners, l)
	return 0
}

func (h *Host) luaOff(L *lua.LState) int {
	ev := h.checkEvent(L, 1)
	h.listeners = slices.DeleteFunc(h.listeners, func(l *listener) bool {
		if l.ev != ev {
			return false
		}
		event.UnregisterOwner(ev, l)
		return true
	})
	return 0
}

func (h *Host) luaTrigger(L *lua.LState) int {
	ev := h.checkEvent(L, 1)
	if err := ev.Trigger(toGo(L.Get(2))); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

func (h *Host) luaExit(*lua.LState) int {
	h.d.SetExit(true)
	return 0
}

func (h *Host) luaQueueSize(L *lua.LState) int {
	L.Push(lua.LNumber(h.d.QueueSize()))
	return 1
}

func (h *Host) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	fmt.Fprintln(h.out, strings.Join(parts, "\t"))
	return 0
}
