package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveInvocation(t *testing.T) {
	c := NewCollector()
	c.ObserveInvocation("tool", "add", 2*time.Millisecond, nil)
	c.ObserveInvocation("tool", "add", 20*time.Millisecond, errors.New("boom"))

	assert.Equal(t, int64(2), c.Counter("kota_invocations_total", "", `kind="tool",name="add"`).Value())
	assert.Equal(t, int64(1), c.Counter("kota_invocation_errors_total", "", `kind="tool",name="add"`).Value())
}

func TestCollector_WriteText(t *testing.T) {
	c := NewCollector()
	c.SetToolsRegistered(3)
	c.ObserveInvocation("command", "review", time.Millisecond, nil)

	var sb strings.Builder
	require.NoError(t, c.WriteText(&sb))
	out := sb.String()

	assert.Contains(t, out, "# TYPE kota_invocations_total counter")
	assert.Contains(t, out, `kota_invocations_total{kind="command",name="review"} 1`)
	assert.Contains(t, out, "kota_tools_registered 3")
	assert.Contains(t, out, `kota_invocation_seconds_bucket{kind="command",le="0.001"} 1`)
	assert.Contains(t, out, `kota_invocation_seconds_count{kind="command"} 1`)
}

func TestCollector_InvocationStarted(t *testing.T) {
	c := NewCollector()
	done := c.InvocationStarted("tool")
	other := c.InvocationStarted("tool")
	g := c.Gauge("kota_invocations_in_flight", "", `kind="tool"`)
	assert.Equal(t, int64(2), g.Value())

	done()
	other()
	assert.Equal(t, int64(0), g.Value())
}

func TestCollector_ObserveManifestLoad(t *testing.T) {
	c := NewCollector()
	c.ObserveManifestLoad(0)
	c.ObserveManifestLoad(2)

	assert.Equal(t, int64(2), c.Counter("kota_manifest_loads_total", "", "").Value())
	assert.Equal(t, int64(2), c.Counter("kota_manifest_errors_total", "", "").Value())
}
