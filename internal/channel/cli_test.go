package channel

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kota/internal/agent"
	"kota/internal/command"
	"kota/internal/config"
	"kota/internal/metrics"
	"kota/internal/skill"
	"kota/internal/tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const chatConfig = `
setup {
	model = "gpt-4o",
	api_key = "sk-test-1234567890",
	commands = {
		fix = "Fix the failing tests",
		sum = function(args) return tonumber(args["1"]) + tonumber(args["2"]) end,
		quiet = function() return nil end,
		spin = function() while true do end end,
	},
}
`

func newTestCLI(t *testing.T, in string) (*CLI, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.lua")
	require.NoError(t, os.WriteFile(path, []byte(chatConfig), 0o644))
	cfg, err := config.Load(path, zap.NewNop())
	require.NoError(t, err)
	cfg.Settings.ScriptTimeout = 100 * time.Millisecond

	m := metrics.NewCollector()
	tools := tool.NewRegistry(zap.NewNop(), tool.WithMetrics(m))
	for _, b := range tool.Builtins() {
		tools.Register(b)
	}
	skills := skill.NewRegistry(zap.NewNop())
	skills.RegisterBuiltins()

	out := &bytes.Buffer{}
	cli := NewCLI(CLIConfig{
		Config:     cfg,
		Commands:   command.NewRegistry(cfg.Commands, zap.NewNop(), command.WithMetrics(m)),
		Skills:     skills,
		Dispatcher: agent.NewDispatcher(tools, agent.NewToolFilter(nil, nil).WithGate(skills), zap.NewNop()),
		Metrics:    m,
		Logger:     zap.NewNop(),
		In:         strings.NewReader(in),
		Out:        out,
	})
	return cli, out
}

func TestCLI_LiteralCommandBecomesPrompt(t *testing.T) {
	cli, out := newTestCLI(t, "")
	assert.False(t, cli.Handle(context.Background(), "/fix"))
	assert.Contains(t, out.String(), "User: Fix the failing tests")
	assert.Contains(t, out.String(), "Tools: system_info")
}

func TestCLI_CompiledCommand(t *testing.T) {
	cli, out := newTestCLI(t, "")
	cli.Handle(context.Background(), "/sum 2 3")
	assert.Contains(t, out.String(), "User: 5\n")

	out.Reset()
	cli.Handle(context.Background(), "/quiet")
	assert.Empty(t, out.String())
}

func TestCLI_CommandTimeout(t *testing.T) {
	cli, out := newTestCLI(t, "")
	cli.Handle(context.Background(), "/spin")
	assert.Contains(t, out.String(), "Error: command spin")
	assert.Contains(t, out.String(), "Hint: raise script_timeout")
}

func TestCLI_UnknownCommand(t *testing.T) {
	cli, out := newTestCLI(t, "")
	cli.Handle(context.Background(), "/nope arg")
	assert.Equal(t, "Unknown command: /nope. Type /help for available commands.\n", out.String())

	out.Reset()
	cli.Handle(context.Background(), "/")
	assert.Contains(t, out.String(), "Unknown command: /.")
}

func TestCLI_Help(t *testing.T) {
	cli, out := newTestCLI(t, "")
	cli.Handle(context.Background(), "/help")
	s := out.String()
	assert.Contains(t, s, "/skill-off")
	assert.Contains(t, s, "/fix")
	assert.Contains(t, s, "string")
	assert.Contains(t, s, "function")
}

func TestCLI_ConfigMasksKey(t *testing.T) {
	cli, out := newTestCLI(t, "")
	cli.Handle(context.Background(), "/config")
	assert.Contains(t, out.String(), `model = "gpt-4o"`)
	assert.NotContains(t, out.String(), "sk-test-1234567890")

	out.Reset()
	cli.Handle(context.Background(), "/config temperature")
	assert.Equal(t, "temperature = 0.7\n", out.String())
}

func TestCLI_Skills(t *testing.T) {
	cli, out := newTestCLI(t, "")
	ctx := context.Background()

	cli.Handle(ctx, "please review this code")
	assert.NotContains(t, out.String(), "ACTIVE SKILL")

	out.Reset()
	cli.Handle(ctx, "/skill debug")
	assert.Contains(t, out.String(), `Skill "debug" activated.`)

	out.Reset()
	cli.Handle(ctx, "/tools")
	assert.Equal(t, "No tools available.\n", out.String())

	out.Reset()
	cli.Handle(ctx, "why does it crash")
	assert.Contains(t, out.String(), "[ACTIVE SKILL: debug]")

	out.Reset()
	cli.Handle(ctx, "/skills")
	assert.Contains(t, out.String(), "* debug")

	out.Reset()
	cli.Handle(ctx, "/skill-off")
	cli.Handle(ctx, "/tools")
	assert.Contains(t, out.String(), "system_info")

	out.Reset()
	cli.Handle(ctx, "/skill nope")
	assert.Contains(t, out.String(), `Unknown skill "nope"`)
}

func TestCLI_Metrics(t *testing.T) {
	cli, out := newTestCLI(t, "")
	cli.Handle(context.Background(), "/fix")
	out.Reset()
	cli.Handle(context.Background(), "/metrics")
	assert.Contains(t, out.String(), "kota_invocations_total")
}

func TestCLI_StartStopsOnQuit(t *testing.T) {
	cli, out := newTestCLI(t, "/commands\n\n/quit\n/fix\n")
	require.NoError(t, cli.Start(context.Background()))
	assert.Contains(t, out.String(), "/sum")
	assert.NotContains(t, out.String(), "Fix the failing tests\n--")
}
