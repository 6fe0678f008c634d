package script

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"kota/internal/value"

	lua "github.com/yuin/gopher-lua"
)

// ToGuest converts v into a guest value owned by L. Arrays become tables
// keyed 1..N, maps become string-keyed tables.
func ToGuest(L *lua.LState, v value.Value) (lua.LValue, error) {
	return toGuest(L, v, 0, "$")
}

func toGuest(L *lua.LState, v value.Value, depth int, path string) (lua.LValue, error) {
	if depth > value.MaxDepth {
		return lua.LNil, &value.ConversionError{Kind: value.TooDeep, Path: path}
	}
	switch v.Kind() {
	case value.KindNull:
		return lua.LNil, nil
	case value.KindBool:
		return lua.LBool(v.Bool()), nil
	case value.KindInt:
		return lua.LNumber(v.Int()), nil
	case value.KindFloat:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return lua.LNil, &value.ConversionError{Kind: value.NonFinite, Path: path}
		}
		return lua.LNumber(f), nil
	case value.KindString:
		return lua.LString(v.Str()), nil
	case value.KindArray:
		items := v.Items()
		tbl := L.CreateTable(len(items), 0)
		for i, it := range items {
			gv, err := toGuest(L, it, depth+1, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return lua.LNil, err
			}
			tbl.RawSetInt(i+1, gv)
		}
		return tbl, nil
	case value.KindMap:
		m := v.Map()
		tbl := L.CreateTable(0, m.Len())
		var err error
		m.Range(func(k string, it value.Value) bool {
			var gv lua.LValue
			gv, err = toGuest(L, it, depth+1, path+"."+k)
			if err != nil {
				return false
			}
			tbl.RawSetString(k, gv)
			return true
		})
		if err != nil {
			return lua.LNil, err
		}
		return tbl, nil
	}
	return lua.LNil, nil
}

// ToHost converts a guest value back into a value.Value.
//
// A table whose keys are exactly 1..N becomes an Array; any other table,
// including the empty one, becomes a Map with integer keys rendered in
// decimal and keys of other kinds dropped. Map keys come out sorted since
// guest tables carry no order. Functions and other opaque guest values
// become Null. A result with more than value.MaxNodes values fails with a
// TooLarge ConversionError.
func ToHost(lv lua.LValue) (value.Value, error) {
	c := &hostConverter{budget: value.MaxNodes}
	return c.toHost(lv, 0, "$")
}

// hostConverter carries the remaining node budget of one ToHost call.
type hostConverter struct {
	budget int
}

func (c *hostConverter) toHost(lv lua.LValue, depth int, path string) (value.Value, error) {
	if depth > value.MaxDepth {
		return value.Null(), &value.ConversionError{Kind: value.TooDeep, Path: path}
	}
	if c.budget <= 0 {
		return value.Null(), &value.ConversionError{Kind: value.TooLarge, Path: path}
	}
	c.budget--
	switch t := lv.(type) {
	case lua.LBool:
		return value.Bool(bool(t)), nil
	case lua.LString:
		return value.String(string(t)), nil
	case lua.LNumber:
		return numberToHost(float64(t), path)
	case *lua.LTable:
		return c.tableToHost(t, depth, path)
	}
	return value.Null(), nil
}

func numberToHost(f float64, path string) (value.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value.Null(), &value.ConversionError{Kind: value.NonFinite, Path: path}
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return value.Int(int64(f)), nil
	}
	return value.Float(f), nil
}

func (c *hostConverter) tableToHost(t *lua.LTable, depth int, path string) (value.Value, error) {
	type entry struct {
		key lua.LValue
		val lua.LValue
	}
	var entries []entry
	dense := true
	maxIndex := 0
	t.ForEach(func(k, v lua.LValue) {
		entries = append(entries, entry{k, v})
		if n, ok := k.(lua.LNumber); ok {
			f := float64(n)
			if f >= 1 && f == math.Trunc(f) && f <= math.MaxInt32 {
				if int(f) > maxIndex {
					maxIndex = int(f)
				}
				return
			}
		}
		dense = false
	})

	if dense && len(entries) > 0 && maxIndex == len(entries) {
		items := make([]value.Value, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			it, err := c.toHost(t.RawGetInt(i), depth+1, fmt.Sprintf("%s[%d]", path, i-1))
			if err != nil {
				return value.Null(), err
			}
			items[i-1] = it
		}
		return value.Array(items...), nil
	}

	type keyed struct {
		key string
		val lua.LValue
	}
	kept := make([]keyed, 0, len(entries))
	for _, e := range entries {
		switch k := e.key.(type) {
		case lua.LString:
			kept = append(kept, keyed{string(k), e.val})
		case lua.LNumber:
			f := float64(k)
			if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
				kept = append(kept, keyed{strconv.FormatInt(int64(f), 10), e.val})
			}
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].key < kept[j].key })

	m := value.NewMap()
	for _, e := range kept {
		it, err := c.toHost(e.val, depth+1, path+"."+e.key)
		if err != nil {
			return value.Null(), err
		}
		m.Set(e.key, it)
	}
	return value.FromMap(m), nil
}
