package script

import (
	"context"
	"errors"
	"math"
	"testing"

	"kota/internal/value"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func roundTrip(t *testing.T, v value.Value) value.Value {
	t.Helper()
	s := NewSession()
	defer s.Close()

	gv, err := ToGuest(s.L, v)
	require.NoError(t, err)
	back, err := ToHost(gv)
	require.NoError(t, err)
	return back
}

func TestBridge_RoundTrip(t *testing.T) {
	cases := map[string]value.Value{
		"null":   value.Null(),
		"bool":   value.Bool(true),
		"int":    value.Int(-42),
		"float":  value.Float(3.25),
		"string": value.String("héllo"),
		"array":  value.Array(value.Int(1), value.String("two"), value.Float(3.5)),
		"map": value.Object(
			"name", value.String("kota"),
			"nested", value.Object("list", value.Array(value.Bool(false), value.Int(7))),
			"ratio", value.Float(0.7),
		),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, v)
			if diff := cmp.Diff(v, got, cmp.Comparer(value.Equal)); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBridge_IntegerPreserved(t *testing.T) {
	got := roundTrip(t, value.Int(8))
	assert.Equal(t, value.KindInt, got.Kind())

	got = roundTrip(t, value.Float(8.5))
	assert.Equal(t, value.KindFloat, got.Kind())
}

func TestBridge_EmptyArrayBecomesEmptyMap(t *testing.T) {
	got := roundTrip(t, value.Array())
	require.Equal(t, value.KindMap, got.Kind())
	assert.Equal(t, 0, got.Len())

	got = roundTrip(t, value.Object())
	require.Equal(t, value.KindMap, got.Kind())
	assert.Equal(t, 0, got.Len())
}

func evalGuest(t *testing.T, src string) lua.LValue {
	t.Helper()
	s := NewSession()
	t.Cleanup(s.Close)

	proto, err := CompileChunk("test", src)
	require.NoError(t, err)
	fn := s.L.NewFunctionFromProto(proto)
	fn.Env = s.Env()
	ret, err := s.Call(context.Background(), fn)
	require.NoError(t, err)
	return ret
}

func TestBridge_Disambiguation(t *testing.T) {
	dense, err := ToHost(evalGuest(t, `return {[1]="a", [2]="b", [3]="c"}`))
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Array(value.String("a"), value.String("b"), value.String("c")), dense))
	assert.Equal(t, value.KindArray, dense.Kind())

	gap, err := ToHost(evalGuest(t, `return {[1]="a", [2]="b", [4]="d"}`))
	require.NoError(t, err)
	require.Equal(t, value.KindMap, gap.Kind())
	assert.Equal(t, []string{"1", "2", "4"}, gap.Map().Keys())

	named, err := ToHost(evalGuest(t, `return {a=1, b=2}`))
	require.NoError(t, err)
	require.Equal(t, value.KindMap, named.Kind())
	assert.Equal(t, []string{"a", "b"}, named.Map().Keys())
}

func TestBridge_MixedKeysBecomeMap(t *testing.T) {
	got, err := ToHost(evalGuest(t, `return {"x", "y", label="z", [true]="dropped", [1.5]="dropped"}`))
	require.NoError(t, err)
	require.Equal(t, value.KindMap, got.Kind())
	assert.Equal(t, []string{"1", "2", "label"}, got.Map().Keys())
}

func TestBridge_FunctionsBecomeNull(t *testing.T) {
	got, err := ToHost(evalGuest(t, `return {f = function() end}`))
	require.NoError(t, err)
	f, ok := got.Get("f")
	require.True(t, ok)
	assert.True(t, f.IsNull())
}

func TestBridge_CycleIsTooDeep(t *testing.T) {
	_, err := ToHost(evalGuest(t, `local t = {}; t.self = t; return t`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, &value.ConversionError{Kind: value.TooDeep}))
}

func TestBridge_SharedSubtablesAreBounded(t *testing.T) {
	// 31 levels deep but 2^30 leaves once every reference is expanded.
	_, err := ToHost(evalGuest(t, `local a = {} for i = 1, 30 do a = {a, a} end return a`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, &value.ConversionError{Kind: value.TooLarge}))

	// small sharing stays within the budget
	got, err := ToHost(evalGuest(t, `local a = {1} return {a, a}`))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestBridge_NonFinite(t *testing.T) {
	_, err := ToHost(evalGuest(t, `return {x = 1/0}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, &value.ConversionError{Kind: value.NonFinite}))

	s := NewSession()
	defer s.Close()
	_, err = ToGuest(s.L, value.Array(value.Float(math.NaN())))
	require.Error(t, err)
	var ce *value.ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "$[0]", ce.Path)
}

func TestBridge_ToGuestTooDeep(t *testing.T) {
	v := value.Int(1)
	for i := 0; i <= value.MaxDepth+1; i++ {
		v = value.Array(v)
	}
	s := NewSession()
	defer s.Close()
	_, err := ToGuest(s.L, v)
	assert.True(t, errors.Is(err, &value.ConversionError{Kind: value.TooDeep}))
}
