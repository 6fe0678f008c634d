package script

import (
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// ErrCapturesUpvalues is returned for functions that close over locals of
// the chunk that defined them. Such functions cannot run outside the
// session that created them.
var ErrCapturesUpvalues = errors.New("function captures upvalues")

// Bytecode is a compiled guest function. It is immutable and may be loaded
// into any number of sessions, concurrently.
type Bytecode struct {
	name  string
	proto *lua.FunctionProto
}

// Name is the chunk name used in guest error messages.
func (b *Bytecode) Name() string { return b.name }

// NumParams is the number of declared fixed parameters.
func (b *Bytecode) NumParams() int { return int(b.proto.NumParameters) }

// CompileChunk parses and compiles a whole chunk of guest source.
func CompileChunk(name, src string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, &CompileError{Name: name, Err: err}
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, &CompileError{Name: name, Err: err}
	}
	return proto, nil
}

// Compile turns the source of a single function expression, e.g.
// "function(args) return args.a end", into Bytecode.
func Compile(name, src string) (*Bytecode, error) {
	proto, err := CompileChunk(name, "return "+src)
	if err != nil {
		return nil, err
	}
	if len(proto.FunctionPrototypes) != 1 || !returnsClosure(proto) {
		return nil, &CompileError{Name: name, Err: errors.New("source is not a single function expression")}
	}
	return fromProto(name, proto.FunctionPrototypes[0])
}

// FromFunction captures the prototype of a guest function created in some
// session so it can be reloaded elsewhere.
func FromFunction(name string, fn *lua.LFunction) (*Bytecode, error) {
	if fn == nil || fn.IsG || fn.Proto == nil {
		return nil, &CompileError{Name: name, Err: errors.New("not a guest function")}
	}
	return fromProto(name, fn.Proto)
}

func fromProto(name string, proto *lua.FunctionProto) (*Bytecode, error) {
	if proto.NumUpvalues > 0 {
		return nil, &CompileError{
			Name: name,
			Err:  fmt.Errorf("%w: %s", ErrCapturesUpvalues, strings.Join(proto.DbgUpvalues, ", ")),
		}
	}
	return &Bytecode{name: name, proto: proto}, nil
}

// returnsClosure checks that the wrapped chunk is exactly
// "CLOSURE; RETURN" so no other statements ride along.
func returnsClosure(proto *lua.FunctionProto) bool {
	for _, inst := range proto.Code {
		switch int(inst >> 26) {
		case lua.OP_CLOSURE, lua.OP_RETURN, lua.OP_MOVE:
		default:
			return false
		}
	}
	return true
}
