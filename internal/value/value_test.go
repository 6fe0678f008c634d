package value

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var valueComparer = cmp.Comparer(Equal)

func TestParse_KeepsOrderAndIntegers(t *testing.T) {
	v, err := Parse([]byte(`{"b":1,"a":2.5,"c":[true,null,"x"],"d":{"z":1,"y":2}}`))
	require.NoError(t, err)

	require.Equal(t, KindMap, v.Kind())
	assert.Equal(t, []string{"b", "a", "c", "d"}, v.Map().Keys())

	b, _ := v.Get("b")
	assert.Equal(t, KindInt, b.Kind())
	assert.Equal(t, int64(1), b.Int())

	a, _ := v.Get("a")
	assert.Equal(t, KindFloat, a.Kind())
	assert.InDelta(t, 2.5, a.Float(), 0)

	d, _ := v.Get("d")
	assert.Equal(t, []string{"z", "y"}, d.Map().Keys())
}

func TestMarshalJSON_InsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set("zeta", Int(1))
	m.Set("alpha", Array(String("a"), Float(1.5)))
	m.Set("zeta", Int(2))

	out, err := json.Marshal(FromMap(m))
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":2,"alpha":["a",1.5]}`, string(out))
}

func TestMarshalJSON_NonFinite(t *testing.T) {
	_, err := Float(math.NaN()).MarshalJSON()
	require.Error(t, err)
	assert.True(t, errors.Is(err, &ConversionError{Kind: NonFinite}))
}

func TestParse_TrailingData(t *testing.T) {
	_, err := Parse([]byte(`{} {}`))
	require.Error(t, err)
}

func TestParse_TooDeep(t *testing.T) {
	doc := make([]byte, 0, 2*(MaxDepth+2))
	for i := 0; i < MaxDepth+2; i++ {
		doc = append(doc, '[')
	}
	for i := 0; i < MaxDepth+2; i++ {
		doc = append(doc, ']')
	}
	_, err := Parse(doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &ConversionError{Kind: TooDeep}))
}

func TestFromAny(t *testing.T) {
	got, err := FromAny(map[string]any{
		"name":  "kota",
		"count": 3,
		"tags":  []any{"a", "b"},
		"ratio": 0.5,
	})
	require.NoError(t, err)

	want := Object(
		"count", Int(3),
		"name", String("kota"),
		"ratio", Float(0.5),
		"tags", Array(String("a"), String("b")),
	)
	if diff := cmp.Diff(want, got, valueComparer); diff != "" {
		t.Fatalf("FromAny mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"count", "name", "ratio", "tags"}, got.Map().Keys())
}

func TestFromAny_UnsupportedKey(t *testing.T) {
	_, err := FromAny(map[int]any{1: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &ConversionError{Kind: UnsupportedKey}))
}

func TestFromAny_NonFinite(t *testing.T) {
	_, err := FromAny([]any{1.0, math.Inf(1)})
	require.Error(t, err)
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, NonFinite, ce.Kind)
	assert.Equal(t, "$[1]", ce.Path)
}

func TestAny_RoundTrip(t *testing.T) {
	v := Object("a", Int(5), "b", Array(Bool(true), Null()))
	back, err := FromAny(v.Any())
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}

func TestEqual_NumbersAcrossKinds(t *testing.T) {
	assert.True(t, Equal(Int(3), Float(3)))
	assert.False(t, Equal(Int(3), Float(3.5)))
	assert.False(t, Equal(String("3"), Int(3)))
	assert.True(t, Equal(Object("x", Int(1), "y", Int(2)), Object("y", Int(2), "x", Int(1))))
}

func TestMap_SetKeepsPosition(t *testing.T) {
	m := NewMap()
	m.Set("a", Int(1))
	m.Set("b", Int(2))
	m.Set("a", Int(3))

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Int())
}
