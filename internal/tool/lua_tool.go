package tool

import (
	"context"
	"fmt"

	"kota/internal/domain"
	"kota/internal/script"
	"kota/internal/value"

	"go.uber.org/zap"
)

// LuaTool runs a manifest-defined tool. Each Invoke opens its own session,
// so a LuaTool may be shared freely.
type LuaTool struct {
	desc   Descriptor
	opts   []script.Option
	logger *zap.Logger
}

var _ domain.Tool = (*LuaTool)(nil)

// NewLuaTool wraps desc. opts are applied to every session the tool opens.
func NewLuaTool(desc Descriptor, logger *zap.Logger, opts ...script.Option) *LuaTool {
	return &LuaTool{
		desc:   desc,
		opts:   append([]script.Option{script.WithLogger(logger.Named(desc.Name))}, opts...),
		logger: logger,
	}
}

func (t *LuaTool) Name() string            { return t.desc.Name }
func (t *LuaTool) Description() string     { return t.desc.Description }
func (t *LuaTool) Parameters() value.Value { return t.desc.Parameters }

// Descriptor returns the loaded definition backing t.
func (t *LuaTool) Descriptor() Descriptor { return t.desc }

// Invoke runs load, validate, convert-in, call and convert-out in a fresh
// session and reports the failing stage in an *InvokeError.
func (t *LuaTool) Invoke(ctx context.Context, args value.Value) (value.Value, error) {
	if t.desc.Entry == nil {
		return value.Null(), t.fail(StageLoad, fmt.Errorf("no compiled entry"))
	}

	s := script.NewSession(t.opts...)
	defer s.Close()
	fn := s.Load(t.desc.Entry)

	if args.IsNull() {
		args = value.FromMap(nil)
	}
	if t.desc.schema != nil {
		if err := t.desc.schema.Validate(args.Any()); err != nil {
			return value.Null(), t.fail(StageValidate, err)
		}
	}

	in, err := script.ToGuest(s.L, args)
	if err != nil {
		return value.Null(), t.fail(StageConvertIn, err)
	}

	ret, err := s.Call(ctx, fn, in)
	if err != nil {
		return value.Null(), t.fail(StageCall, err)
	}

	out, err := script.ToHost(ret)
	if err != nil {
		return value.Null(), t.fail(StageConvertOut, err)
	}
	return out, nil
}

func (t *LuaTool) fail(stage Stage, err error) error {
	return &InvokeError{Tool: t.desc.Name, Stage: stage, Err: err}
}
