// Package channel holds the interactive front ends of kota.
package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"kota/internal/agent"
	"kota/internal/command"
	"kota/internal/config"
	"kota/internal/metrics"
	"kota/internal/script"
	"kota/internal/skill"

	"go.uber.org/zap"
)

// Preamble is the base system prompt the active skill extends.
const Preamble = "You are kota, a coding assistant working in the user's project. " +
	"Use the available tools when they help answer the request."

// CLI is the interactive terminal chat. Slash lines run builtin or custom
// commands; any other line is composed into a prompt for the agent.
type CLI struct {
	cfg        *config.Config
	commands   *command.Registry
	skills     *skill.Registry
	dispatcher *agent.Dispatcher
	metrics    *metrics.Collector
	logger     *zap.Logger
	in         io.Reader
	out        io.Writer
}

type CLIConfig struct {
	Config     *config.Config
	Commands   *command.Registry
	Skills     *skill.Registry
	Dispatcher *agent.Dispatcher
	Metrics    *metrics.Collector
	Logger     *zap.Logger
	In         io.Reader
	Out        io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		cfg:        cfg.Config,
		commands:   cfg.Commands,
		skills:     cfg.Skills,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		in:         cfg.In,
		out:        cfg.Out,
	}
}

// Start runs the REPL until EOF, /quit or ctx is cancelled.
func (c *CLI) Start(ctx context.Context) error {
	_, _ = fmt.Fprintln(c.out, "kota chat. Type /help for commands, /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		if c.Handle(ctx, scanner.Text()) {
			c.logger.Info("user requested quit")
			return nil
		}
		_, _ = fmt.Fprint(c.out, "You> ")
	}
}

// Handle processes one input line and reports whether the user asked to
// quit.
func (c *CLI) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !command.IsSlash(line) {
		c.prompt(line)
		return false
	}

	inv, err := command.ParseSlash(line)
	if err != nil {
		c.unknown(line)
		return false
	}

	switch "/" + inv.Name {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		c.help()
	case "/config":
		c.showConfig(inv.Args["1"])
	case "/tools":
		c.listTools()
	case "/commands":
		c.listCommands()
	case "/skills":
		c.listSkills()
	case "/skill":
		c.activateSkill(inv.Args["1"])
	case "/skill-off":
		c.skills.Deactivate()
		c.printf("Skill deactivated.\n")
	case "/metrics":
		if err := c.metrics.WriteText(c.out); err != nil {
			c.printf("Error: %v\n", err)
		}
	default:
		if !c.commands.Has(inv.Name) {
			c.unknown("/" + inv.Name)
			return false
		}
		c.runCommand(ctx, inv)
	}
	return false
}

func (c *CLI) runCommand(ctx context.Context, inv command.Invocation) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Settings.ScriptTimeout)
	defer cancel()

	out, err := c.commands.Execute(ctx, inv.Name, inv.Args)
	if err != nil {
		c.printf("Error: %v\n", err)
		if script.IsTimeout(err) {
			c.printf("Hint: raise script_timeout in %s (currently %s).\n", c.cfg.Path, c.cfg.Settings.ScriptTimeout)
		}
		return
	}
	if out == "" {
		return
	}
	c.prompt(out)
}

// prompt prints the message exactly as it would be handed to the agent.
func (c *CLI) prompt(text string) {
	if _, active := c.skills.Active(); !active {
		if m := c.skills.Match(text); m != nil {
			c.printf("(skill %q looks relevant, activate it with /skill %s)\n", m.Name, m.Name)
		}
	}

	var names []string
	for _, d := range c.dispatcher.Definitions() {
		names = append(names, d.Name)
	}

	c.printf("--- prompt ---\n")
	c.printf("%s\n\n", c.skills.EnhancedPreamble(Preamble))
	c.printf("Tools: %s\n", strings.Join(names, ", "))
	c.printf("User: %s\n", text)
	c.printf("--------------\n")
}

func (c *CLI) help() {
	c.printf("Builtin commands:\n")
	for _, b := range command.Builtins {
		c.printf("  %s\n", b)
	}
	if names := c.commands.List(); len(names) > 0 {
		c.printf("Custom commands:\n")
		for _, n := range names {
			kind, _ := c.commands.Type(n)
			c.printf("  /%-18s %s\n", n, kind)
		}
	}
}

func (c *CLI) showConfig(path string) {
	if path == "" {
		for _, line := range config.ListPaths(c.cfg) {
			c.printf("%s\n", line)
		}
		return
	}
	v, err := config.GetByPath(c.cfg, path)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("%s = %s\n", path, v.String())
}

func (c *CLI) listTools() {
	defs := c.dispatcher.Definitions()
	if len(defs) == 0 {
		c.printf("No tools available.\n")
		return
	}
	for _, d := range defs {
		c.printf("  %-20s %s\n", d.Name, d.Description)
	}
}

func (c *CLI) listCommands() {
	names := c.commands.List()
	if len(names) == 0 {
		c.printf("No custom commands. Define them under commands = {...} in %s.\n", c.cfg.Path)
		return
	}
	for _, n := range names {
		kind, _ := c.commands.Type(n)
		c.printf("  /%-18s %s\n", n, kind)
	}
}

func (c *CLI) listSkills() {
	active, _ := c.skills.Active()
	for _, s := range c.skills.List() {
		marker := " "
		if s.Name == active.Name {
			marker = "*"
		}
		c.printf("%s %-16s %s\n", marker, s.Name, s.Description)
	}
}

func (c *CLI) activateSkill(name string) {
	if name == "" {
		c.printf("Usage: /skill <name>\n")
		return
	}
	if err := c.skills.Activate(name); err != nil {
		if errors.Is(err, skill.ErrNotFound) {
			c.printf("Unknown skill %q. Type /skills to list them.\n", name)
			return
		}
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Skill %q activated.\n", name)
}

func (c *CLI) unknown(line string) {
	c.printf("Unknown command: %s. Type /help for available commands.\n", line)
}

func (c *CLI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
