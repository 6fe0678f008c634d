package tool

import (
	"context"
	"testing"
	"time"

	"kota/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const echoManifest = `
register_tool({ name = "echo", description = "d", parameters = {}, entry = "function(a) return a end" })
`

func TestWatcher_ReloadSyncsRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "tools.lua", addManifest+echoManifest)

	reg := NewRegistry(testLogger())
	reg.Register(NewSysInfoTool())
	w := NewWatcher(reg, path, testLogger())

	res, err := w.Reload(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Tools, 2)
	assert.Equal(t, []string{"system_info", "add", "echo"}, reg.List())

	writeManifest(t, dir, "tools.lua", echoManifest)
	_, err = w.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"system_info", "echo"}, reg.List())
}

func TestWatcher_ReloadRecordsMetrics(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "tools.lua", echoManifest+`register_tool({ name = "" })`)

	coll := metrics.NewCollector()
	reg := NewRegistry(testLogger(), WithMetrics(coll))
	w := NewWatcher(reg, path, testLogger())

	res, err := w.Reload(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)

	assert.Equal(t, int64(1), coll.Counter("kota_manifest_loads_total", "", "").Value())
	assert.Equal(t, int64(1), coll.Counter("kota_manifest_errors_total", "", "").Value())
	assert.Equal(t, int64(1), coll.Gauge("kota_tools_registered", "", "").Value())
}

func TestWatcher_PicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "tools.lua", echoManifest)

	reg := NewRegistry(testLogger())
	w := NewWatcher(reg, path, testLogger())
	w.SetDebounce(20 * time.Millisecond)
	_, err := w.Reload(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeManifest(t, dir, "tools.lua", addManifest)

	assert.Eventually(t, func() bool {
		_, hasAdd := reg.Get("add")
		_, hasEcho := reg.Get("echo")
		return hasAdd && !hasEcho
	}, 5*time.Second, 20*time.Millisecond)
}
