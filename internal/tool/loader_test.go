package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kota/internal/script"
	"kota/internal/value"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addManifest = `
register_tool({
	name = "add",
	description = "Adds two numbers",
	parameters = {
		type = "object",
		properties = {
			a = { type = "number" },
			b = { type = "number" },
		},
		required = { "a", "b" },
	},
	entry = function(args)
		return { result = args.a + args.b }
	end,
})
`

func writeManifest(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadTools_MissingPathIsEmpty(t *testing.T) {
	res, err := LoadTools(context.Background(), filepath.Join(t.TempDir(), "nope.lua"), testLogger())
	require.NoError(t, err)
	assert.Empty(t, res.Tools)
	assert.Empty(t, res.Errors)
}

func TestLoadTools_SingleFile(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "tools.lua", addManifest)

	res, err := LoadTools(context.Background(), path, testLogger())
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Tools, 1)

	d := res.Tools[0]
	assert.Equal(t, "add", d.Name)
	assert.Equal(t, "Adds two numbers", d.Description)
	assert.Equal(t, path, d.Source)
	require.NotNil(t, d.Entry)
	assert.Equal(t, 1, d.Entry.NumParams())

	req, ok := d.Parameters.Get("required")
	require.True(t, ok)
	assert.Equal(t, value.KindArray, req.Kind())
}

func TestLoadTools_BrokenRegistrationDoesNotStopOthers(t *testing.T) {
	src := `
kota.register_tool({
	name = "first", description = "ok",
	parameters = { type = "object" },
	entry = "function(args) return 1 end",
})
kota.register_tool({
	name = "second", description = "syntax error",
	parameters = { type = "object" },
	entry = "function(args) return ( end",
})
kota.register_tool({
	name = "third", description = "ok",
	parameters = { type = "object" },
	entry = "function(args) return 3 end",
})
`
	path := writeManifest(t, t.TempDir(), "tools.lua", src)

	res, err := LoadTools(context.Background(), path, testLogger())
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, d := range res.Tools {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"first", "third"}, names)

	require.Len(t, res.Errors, 1)
	var me *ManifestError
	require.True(t, errors.As(res.Errors[0], &me))
	assert.Equal(t, 2, me.Index)
	assert.Equal(t, "second", me.Name)
	var ce *script.CompileError
	assert.True(t, errors.As(res.Errors[0], &ce))
}

func TestLoadTools_InvalidFields(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing name", `register_tool({ description = "d", parameters = {}, entry = function() end })`},
		{"description not string", `register_tool({ name = "x", description = 1, parameters = {}, entry = function() end })`},
		{"parameters not table", `register_tool({ name = "x", description = "d", parameters = "p", entry = function() end })`},
		{"bad schema type", `register_tool({ name = "x", description = "d", parameters = { type = "object", properties = "oops" }, entry = function() end })`},
		{"entry missing", `register_tool({ name = "x", description = "d", parameters = {} })`},
		{"not a table", `register_tool("x")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), "tools.lua", tt.src)
			res, err := LoadTools(context.Background(), path, testLogger())
			require.NoError(t, err)
			assert.Empty(t, res.Tools)
			require.Len(t, res.Errors, 1)
			assert.True(t, errors.Is(res.Errors[0], ErrManifestParse), "got %v", res.Errors[0])
		})
	}
}

func TestLoadTools_UpvalueEntryRejected(t *testing.T) {
	src := `
local base = 10
register_tool({
	name = "closure", description = "captures base",
	parameters = { type = "object" },
	entry = function(args) return base end,
})
`
	path := writeManifest(t, t.TempDir(), "tools.lua", src)
	res, err := LoadTools(context.Background(), path, testLogger())
	require.NoError(t, err)
	assert.Empty(t, res.Tools)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], script.ErrCapturesUpvalues))
}

func TestLoadTools_FileErrorKeepsEarlierRegistrations(t *testing.T) {
	src := addManifest + "\nerror(\"manifest exploded\")\n"
	path := writeManifest(t, t.TempDir(), "tools.lua", src)

	res, err := LoadTools(context.Background(), path, testLogger())
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	require.Len(t, res.Errors, 1)

	var me *ManifestError
	require.True(t, errors.As(res.Errors[0], &me))
	assert.Equal(t, 0, me.Index)
	assert.Contains(t, me.Error(), "manifest exploded")
}

func TestLoadTools_Directory(t *testing.T) {
	dir := t.TempDir()
	one := `register_tool({ name = "%s", description = "d", parameters = {}, entry = "function() return 1 end" })`
	writeManifest(t, dir, "b.lua", fmt.Sprintf(one, "from_b"))
	writeManifest(t, dir, "a.lua", fmt.Sprintf(one, "from_a"))
	writeManifest(t, dir, "init.lua", fmt.Sprintf(one, "from_init"))
	writeManifest(t, dir, "notes.txt", "not lua")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.lua"), 0o755))

	res, err := LoadTools(context.Background(), dir, testLogger())
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	names := make([]string, 0, len(res.Tools))
	for _, d := range res.Tools {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"from_init", "from_a", "from_b"}, names)
}

func TestLoadTools_ManifestTimeout(t *testing.T) {
	old := manifestTimeout
	manifestTimeout = 50 * time.Millisecond
	t.Cleanup(func() { manifestTimeout = old })

	dir := t.TempDir()
	writeManifest(t, dir, "init.lua", addManifest)
	writeManifest(t, dir, "spin.lua", `while true do end`)

	res, err := LoadTools(context.Background(), dir, testLogger())
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, "add", res.Tools[0].Name)
	require.Len(t, res.Errors, 1)
	assert.True(t, script.IsTimeout(res.Errors[0]))
}

func TestLoadTools_PropertyNamedLikeKeyword(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "tools.lua", `
register_tool({
	name = "opts",
	description = "Takes a property called required",
	parameters = {
		type = "object",
		properties = { required = {}, enum = { type = "string" } },
		required = {},
	},
	entry = function(args) return args end,
})
`)
	res, err := LoadTools(context.Background(), path, testLogger())
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, `{"properties":{"enum":{"type":"string"},"required":{}},"required":[],"type":"object"}`,
		res.Tools[0].Parameters.String())
}

func TestNormalizeSchema_EmptyListKeywords(t *testing.T) {
	doc := value.Object(
		"type", value.String("object"),
		"required", value.FromMap(nil),
		"properties", value.Object(
			"mode", value.Object("enum", value.FromMap(nil)),
		),
	)
	got := normalizeSchema(doc)
	assert.Equal(t, `{"type":"object","required":[],"properties":{"mode":{"enum":[]}}}`, got.String())
}

func TestNormalizeSchema_NamedKeywordsKeepNames(t *testing.T) {
	doc := value.Object(
		"properties", value.Object("required", value.FromMap(nil)),
		"$defs", value.Object("anyOf", value.Object("required", value.FromMap(nil))),
		"default", value.Object("required", value.FromMap(nil)),
	)
	got := normalizeSchema(doc)
	assert.Equal(t, `{"properties":{"required":{}},"$defs":{"anyOf":{"required":[]}},"default":{"required":{}}}`, got.String())
}
