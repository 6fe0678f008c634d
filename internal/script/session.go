// Package script hosts the sandboxed Lua guest: sessions, compiled
// bytecode and the value bridge between guest tables and value.Value.
package script

import (
	"context"
	"errors"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const (
	callStackSize = 200
	registrySize  = 1024 * 16
)

// EnvLookup resolves an environment variable for the guest os.getenv shim.
type EnvLookup func(name string) (string, bool)

type options struct {
	logger  *zap.Logger
	lookup  EnvLookup
	globals map[string]lua.LGFunction
}

// Option configures a Session.
type Option func(*options)

// WithLogger routes guest print output to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEnvLookup installs os.getenv backed by lookup. Without it the guest
// has no os table at all.
func WithEnvLookup(lookup EnvLookup) Option {
	return func(o *options) { o.lookup = lookup }
}

// WithGlobals exposes host functions as guest globals.
func WithGlobals(fns map[string]lua.LGFunction) Option {
	return func(o *options) {
		if o.globals == nil {
			o.globals = make(map[string]lua.LGFunction, len(fns))
		}
		for k, v := range fns {
			o.globals[k] = v
		}
	}
}

// Session is one isolated guest interpreter. It is not safe for concurrent
// use; open one per invocation.
type Session struct {
	L      *lua.LState
	env    *lua.LTable
	logger *zap.Logger
}

// NewSession creates a fresh interpreter whose guest environment contains
// only pure library functions plus whatever the options add.
func NewSession(opts ...Option) *Session {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: callStackSize,
		RegistrySize:  registrySize,
	})
	s := &Session{L: L, logger: o.logger}
	s.env = s.buildEnv(o)
	return s
}

// Env is the sandbox table every loaded function runs in.
func (s *Session) Env() *lua.LTable { return s.env }

// Close releases the interpreter.
func (s *Session) Close() { s.L.Close() }

// Load binds b into this session.
func (s *Session) Load(b *Bytecode) *lua.LFunction {
	fn := s.L.NewFunctionFromProto(b.proto)
	fn.Env = s.env
	return fn
}

// Run compiles src as a chunk and executes it in the sandbox.
func (s *Session) Run(ctx context.Context, name, src string) error {
	proto, err := CompileChunk(name, src)
	if err != nil {
		return err
	}
	fn := s.L.NewFunctionFromProto(proto)
	fn.Env = s.env
	_, err = s.Call(ctx, fn)
	return err
}

// Call invokes fn with args and returns its first result. Guest faults and
// host panics inside guest callbacks come back as *ScriptError.
func (s *Session) Call(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return lua.LNil, &ScriptError{Message: err.Error(), Err: err}
		}
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}

	top := s.L.GetTop()
	err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	if err != nil {
		s.L.SetTop(top)
		se := &ScriptError{Message: guestMessage(err)}
		if ctx != nil && ctx.Err() != nil {
			se.Err = ctx.Err()
		}
		return lua.LNil, se
	}
	ret := s.L.Get(-1)
	s.L.SetTop(top)
	return ret, nil
}

var pureBase = []string{
	"assert", "error", "ipairs", "next", "pairs", "pcall", "xpcall",
	"select", "tonumber", "tostring", "type", "unpack",
	"rawget", "rawset", "rawequal", "setmetatable", "getmetatable",
}

// buildEnv opens the libraries into the interpreter's own globals and then
// copies the allowed entries into an empty table. Guest code only ever sees
// that table.
func (s *Session) buildEnv(o options) *lua.LTable {
	L := s.L
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	env := L.NewTable()
	for _, name := range pureBase {
		env.RawSetString(name, L.GetGlobal(name))
	}
	for _, lib := range []string{lua.TabLibName, lua.StringLibName, lua.MathLibName} {
		env.RawSetString(lib, L.GetGlobal(lib))
	}
	if str, ok := L.GetGlobal(lua.StringLibName).(*lua.LTable); ok {
		str.RawSetString("dump", lua.LNil)
	}
	env.RawSetString("_G", env)
	env.RawSetString("print", L.NewFunction(s.print))

	if o.lookup != nil {
		osTable := L.NewTable()
		osTable.RawSetString("getenv", L.NewFunction(getenv(o.lookup)))
		env.RawSetString("os", osTable)
	}
	for name, fn := range o.globals {
		setPath(L, env, name, L.NewFunction(fn))
	}
	return env
}

func (s *Session) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	s.logger.Info("script output", zap.String("text", strings.Join(parts, "\t")))
	return 0
}

func getenv(lookup EnvLookup) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		if v, ok := lookup(name); ok {
			L.Push(lua.LString(v))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}
}

// setPath sets "a.b" style names, creating intermediate tables.
func setPath(L *lua.LState, env *lua.LTable, name string, fn lua.LValue) {
	parts := strings.Split(name, ".")
	tbl := env
	for _, p := range parts[:len(parts)-1] {
		next, ok := tbl.RawGetString(p).(*lua.LTable)
		if !ok {
			next = L.NewTable()
			tbl.RawSetString(p, next)
		}
		tbl = next
	}
	tbl.RawSetString(parts[len(parts)-1], fn)
}

// IsTimeout reports whether err was caused by the call's context expiring.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
