package tool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"kota/internal/domain"
	"kota/internal/metrics"
	"kota/internal/value"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubTool is a minimal tool for testing the registry.
type stubTool struct {
	name   string
	result value.Value
	err    error
}

func (s *stubTool) Name() string            { return s.name }
func (s *stubTool) Description() string     { return "stub: " + s.name }
func (s *stubTool) Parameters() value.Value { return ToolParameters(nil, nil, nil) }
func (s *stubTool) Invoke(ctx context.Context, args value.Value) (value.Value, error) {
	return s.result, s.err
}

var _ domain.Tool = (*stubTool)(nil)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) LogInvocation(ctx context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "test_tool"})

	got, ok := reg.Get("test_tool")
	require.True(t, ok)
	assert.Equal(t, "test_tool", got.Name())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	for _, n := range []string{"zeta", "alpha", "mid"} {
		reg.Register(&stubTool{name: n})
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, reg.List())

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "zeta", defs[0].Name)
	assert.Equal(t, "stub: mid", defs[2].Description)
}

func TestRegistry_ReplaceKeepsPosition(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "dup", result: value.String("v1")})
	reg.Register(&stubTool{name: "other"})
	reg.Register(&stubTool{name: "dup", result: value.String("v2")})

	assert.Equal(t, []string{"dup", "other"}, reg.List())
	out, err := reg.Invoke(context.Background(), "dup", value.Null())
	require.NoError(t, err)
	assert.Equal(t, "v2", out.Str())
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "a"})
	reg.Register(&stubTool{name: "b"})

	assert.True(t, reg.Unregister("a"))
	assert.False(t, reg.Unregister("a"))
	assert.Equal(t, []string{"b"}, reg.List())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_InvokeUnknown(t *testing.T) {
	reg := NewRegistry(testLogger())
	_, err := reg.Invoke(context.Background(), "missing", value.Null())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = reg.Describe("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistry_InvokeRecordsAuditAndMetrics(t *testing.T) {
	audit := &memAudit{}
	coll := metrics.NewCollector()
	reg := NewRegistry(testLogger(), WithAudit(audit), WithMetrics(coll))
	reg.Register(&stubTool{name: "ok", result: value.Int(1)})
	reg.Register(&stubTool{name: "bad", err: &InvokeError{Tool: "bad", Stage: StageCall, Err: errors.New("boom")}})

	_, err := reg.Invoke(context.Background(), "ok", value.Null())
	require.NoError(t, err)
	_, err = reg.Invoke(context.Background(), "bad", value.Null())
	require.Error(t, err)

	require.Len(t, audit.entries, 2)
	assert.Equal(t, "ok", audit.entries[0].Status)
	assert.Equal(t, domain.InvocationTool, audit.entries[0].Kind)
	assert.NotEmpty(t, audit.entries[0].ID)
	assert.Equal(t, "error", audit.entries[1].Status)
	assert.Equal(t, "call", audit.entries[1].Stage)

	assert.Equal(t, int64(1), coll.Counter("kota_invocation_errors_total", "", `kind="tool",name="bad"`).Value())
	assert.Equal(t, int64(0), coll.Gauge("kota_invocations_in_flight", "", `kind="tool"`).Value())
	assert.Equal(t, int64(2), coll.Gauge("kota_tools_registered", "", "").Value())

	reg.Unregister("bad")
	assert.Equal(t, int64(1), coll.Gauge("kota_tools_registered", "", "").Value())
}

func TestRegistry_ConcurrentReadersAndWriters(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "shared", result: value.Bool(true)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = reg.Invoke(context.Background(), "shared", value.Null())
				_ = reg.List()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Register(&stubTool{name: "churn"})
				reg.Unregister("churn")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"shared"}, reg.List())
}

func TestToolParameters(t *testing.T) {
	params := ToolParameters(
		[]string{"name", "age"},
		map[string]Param{
			"name": {Type: "string", Description: "The name"},
			"age":  {Type: "number", Description: "The age in years"},
		},
		[]string{"name"},
	)
	assert.Equal(t,
		`{"type":"object","properties":{"name":{"type":"string","description":"The name"},"age":{"type":"number","description":"The age in years"}},"required":["name"]}`,
		params.String())

	bare := ToolParameters(nil, nil, nil)
	_, ok := bare.Get("required")
	assert.False(t, ok)
}

func TestArgString(t *testing.T) {
	args := value.Object("key", value.String("value"), "num", value.Int(42))
	assert.Equal(t, "value", ArgString(args, "key"))
	assert.Equal(t, "42", ArgString(args, "num"))
	assert.Equal(t, "", ArgString(args, "missing"))
	assert.Equal(t, "", ArgString(value.Null(), "key"))
}
