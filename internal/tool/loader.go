package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"kota/internal/script"
	"kota/internal/value"

	"github.com/google/jsonschema-go/jsonschema"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultManifestPath is where tool manifests are looked up relative to
// the working directory.
const DefaultManifestPath = ".kota/tools"

// manifestTimeout bounds how long one manifest file may run.
var manifestTimeout = 10 * time.Second

// Descriptor is one loaded tool definition. It is immutable after loading;
// Entry is shared by every invocation.
type Descriptor struct {
	Name        string
	Description string
	Parameters  value.Value
	Entry       *script.Bytecode
	// Source is the manifest file that registered the tool.
	Source string

	schema *jsonschema.Resolved
}

// LoadResult holds the tools that loaded plus the entries that did not.
type LoadResult struct {
	Tools  []Descriptor
	Errors []error
}

// LoadTools reads the tool manifest at path, which may be a single Lua file
// or a directory of them. A missing path yields an empty result. Broken
// registrations end up in LoadResult.Errors and never stop the others.
func LoadTools(ctx context.Context, path string, logger *zap.Logger, opts ...script.Option) (*LoadResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("tool manifest not found, no dynamic tools", zap.String("path", path))
		return &LoadResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat tool manifest: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = manifestFiles(path)
		if err != nil {
			return nil, err
		}
	}

	results := make([]LoadResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, file := range files {
		g.Go(func() error {
			results[i] = loadFile(gctx, file, logger, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &LoadResult{}
	for _, r := range results {
		out.Tools = append(out.Tools, r.Tools...)
		out.Errors = append(out.Errors, r.Errors...)
	}
	for _, e := range out.Errors {
		logger.Warn("tool registration skipped", zap.Error(e))
	}
	logger.Info("tool manifests loaded",
		zap.String("path", path),
		zap.Int("files", len(files)),
		zap.Int("tools", len(out.Tools)),
		zap.Int("errors", len(out.Errors)))
	return out, nil
}

// manifestFiles lists *.lua files in dir, init.lua first, then by name.
func manifestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tool manifest dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "init.lua" || names[j] == "init.lua" {
			return names[i] == "init.lua"
		}
		return names[i] < names[j]
	})
	files := make([]string, len(names))
	for i, n := range names {
		files[i] = filepath.Join(dir, n)
	}
	return files, nil
}

// manifestLoader collects registrations made by one manifest file.
type manifestLoader struct {
	path   string
	logger *zap.Logger
	index  int
	result LoadResult
}

func loadFile(ctx context.Context, path string, logger *zap.Logger, opts []script.Option) LoadResult {
	src, err := os.ReadFile(path)
	if err != nil {
		return LoadResult{Errors: []error{&ManifestError{Path: path, Err: err}}}
	}

	ml := &manifestLoader{path: path, logger: logger}
	register := ml.registerTool
	sessOpts := append([]script.Option{
		script.WithLogger(logger),
		script.WithGlobals(map[string]lua.LGFunction{
			"register_tool":      register,
			"kota.register_tool": register,
		}),
	}, opts...)

	s := script.NewSession(sessOpts...)
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, manifestTimeout)
	defer cancel()
	if err := s.Run(ctx, path, string(src)); err != nil {
		ml.result.Errors = append(ml.result.Errors, &ManifestError{Path: path, Err: err})
	}
	return ml.result
}

func (ml *manifestLoader) registerTool(L *lua.LState) int {
	ml.index++

	tbl, ok := L.Get(1).(*lua.LTable)
	if !ok {
		ml.fail("", fmt.Errorf("%w: register_tool expects a table, got %s", ErrManifestParse, L.Get(1).Type()))
		return 0
	}

	desc, err := ml.parse(tbl)
	if err != nil {
		ml.fail(desc.Name, err)
		return 0
	}
	ml.result.Tools = append(ml.result.Tools, desc)
	ml.logger.Debug("tool registered from manifest", zap.String("name", desc.Name), zap.String("path", ml.path))
	return 0
}

func (ml *manifestLoader) fail(name string, err error) {
	ml.result.Errors = append(ml.result.Errors, &ManifestError{Path: ml.path, Index: ml.index, Name: name, Err: err})
}

func (ml *manifestLoader) parse(tbl *lua.LTable) (Descriptor, error) {
	var d Descriptor
	name, ok := tbl.RawGetString("name").(lua.LString)
	if !ok || name == "" {
		return d, fmt.Errorf("%w: name must be a non-empty string", ErrManifestParse)
	}
	d.Name = string(name)
	d.Source = ml.path

	desc, ok := tbl.RawGetString("description").(lua.LString)
	if !ok {
		return d, fmt.Errorf("%w: description must be a string", ErrManifestParse)
	}
	d.Description = string(desc)

	params, ok := tbl.RawGetString("parameters").(*lua.LTable)
	if !ok {
		return d, fmt.Errorf("%w: parameters must be a table", ErrManifestParse)
	}
	schemaDoc, err := script.ToHost(params)
	if err != nil {
		return d, fmt.Errorf("%w: parameters: %w", ErrManifestParse, err)
	}
	schemaDoc = normalizeSchema(schemaDoc)
	resolved, err := resolveSchema(schemaDoc)
	if err != nil {
		return d, fmt.Errorf("%w: parameters: %w", ErrManifestParse, err)
	}
	d.Parameters = schemaDoc
	d.schema = resolved

	chunk := ml.path + ":" + d.Name
	switch entry := tbl.RawGetString("entry").(type) {
	case *lua.LFunction:
		d.Entry, err = script.FromFunction(chunk, entry)
	case lua.LString:
		d.Entry, err = script.Compile(chunk, string(entry))
	default:
		return d, fmt.Errorf("%w: entry must be a function or function source", ErrManifestParse)
	}
	if err != nil {
		return d, err
	}
	return d, nil
}

// resolveSchema checks that doc is a usable JSON Schema.
func resolveSchema(doc value.Value) (*jsonschema.Resolved, error) {
	if doc.Kind() != value.KindMap {
		return nil, fmt.Errorf("schema must be an object, got %s", doc.Kind())
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}

// listKeywords are schema keywords whose value is always a JSON array. An
// empty guest table converts to an empty Map, so these are coerced back.
var listKeywords = map[string]bool{
	"required": true, "enum": true, "allOf": true, "anyOf": true, "oneOf": true, "prefixItems": true,
}

// namedKeywords map user-chosen names to subschemas; their keys are not
// keywords.
var namedKeywords = map[string]bool{
	"properties": true, "patternProperties": true, "$defs": true, "definitions": true, "dependentSchemas": true,
}

// dataKeywords hold instance data rather than subschemas.
var dataKeywords = map[string]bool{
	"enum": true, "const": true, "default": true, "examples": true,
}

func normalizeSchema(doc value.Value) value.Value {
	switch doc.Kind() {
	case value.KindArray:
		items := make([]value.Value, len(doc.Items()))
		for i, it := range doc.Items() {
			items[i] = normalizeSchema(it)
		}
		return value.Array(items...)
	case value.KindMap:
		m := value.NewMap()
		doc.Map().Range(func(k string, v value.Value) bool {
			if listKeywords[k] && v.Kind() == value.KindMap && v.Len() == 0 {
				v = value.Array()
			}
			switch {
			case dataKeywords[k]:
			case namedKeywords[k] && v.Kind() == value.KindMap:
				v = normalizeNamed(v)
			default:
				v = normalizeSchema(v)
			}
			m.Set(k, v)
			return true
		})
		return value.FromMap(m)
	}
	return doc
}

func normalizeNamed(doc value.Value) value.Value {
	m := value.NewMap()
	doc.Map().Range(func(name string, sub value.Value) bool {
		m.Set(name, normalizeSchema(sub))
		return true
	})
	return value.FromMap(m)
}
