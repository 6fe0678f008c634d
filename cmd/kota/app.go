package main

import (
	"context"
	"fmt"

	"kota/internal/agent"
	"kota/internal/command"
	"kota/internal/config"
	"kota/internal/metrics"
	"kota/internal/skill"
	"kota/internal/store"
	"kota/internal/tool"
	"kota/internal/value"

	"go.uber.org/zap"
)

const defaultToolsPath = tool.DefaultManifestPath

// app holds the registries and stores shared by every subcommand.
type app struct {
	cfg        *config.Config
	metrics    *metrics.Collector
	store      *store.SQLiteStore // nil when the audit database cannot be opened
	tools      *tool.Registry
	watcher    *tool.Watcher
	commands   *command.Registry
	skills     *skill.Registry
	dispatcher *agent.Dispatcher
	loadErrors []error
}

// loadConfig runs the config program. The config is mandatory; a missing
// file comes back as *config.NotFoundError so main can print its hint.
func loadConfig(ctx context.Context) (*config.Config, error) {
	path := resolveConfigPath()
	ctx, cancel := context.WithTimeout(ctx, config.Defaults().Settings.ScriptTimeout)
	defer cancel()
	cfg, err := config.LoadContext(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config warning", zap.String("path", path), zap.String("warning", w))
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.NewCollector()}

	toolOpts := []tool.Option{tool.WithMetrics(a.metrics)}
	cmdOpts := []command.Option{command.WithMetrics(a.metrics)}
	if st, err := store.NewSQLiteStore(config.ExpandPath(cfg.Settings.AuditDB), logger); err != nil {
		logger.Warn("audit log disabled", zap.String("path", cfg.Settings.AuditDB), zap.Error(err))
	} else {
		a.store = st
		toolOpts = append(toolOpts, tool.WithAudit(st))
		cmdOpts = append(cmdOpts, command.WithAudit(st))
	}

	a.commands = command.NewRegistry(cfg.Commands, logger.Named("command"), cmdOpts...)

	a.tools = tool.NewRegistry(logger.Named("tool"), toolOpts...)
	for _, t := range tool.Builtins() {
		a.tools.Register(t)
	}
	a.tools.Register(a.runCommandTool())

	a.watcher = tool.NewWatcher(a.tools, resolveToolsPath(), logger.Named("tool"))
	res, err := a.watcher.Reload(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.loadErrors = res.Errors
	for _, e := range res.Errors {
		logger.Warn("tool not loaded", zap.Error(e))
	}

	a.skills = skill.NewRegistry(logger.Named("skill"))
	a.skills.RegisterBuiltins()
	installed, err := skill.LoadFromDirectory(config.ExpandPath(cfg.Settings.SkillsDir), logger)
	if err != nil {
		logger.Warn("skills not loaded", zap.Error(err))
	}
	for _, s := range installed {
		a.skills.Register(s)
	}

	filter := agent.NewToolFilter(cfg.Settings.EnabledTools, cfg.Settings.DisabledTools).WithGate(a.skills)
	a.dispatcher = agent.NewDispatcher(a.tools, filter, logger.Named("agent"))
	a.dispatcher.SetTimeout(cfg.Settings.ScriptTimeout)

	a.snapshot(ctx)
	return a, nil
}

// runCommandTool lets the model run the user's custom commands.
func (a *app) runCommandTool() *tool.FuncTool {
	params := tool.ToolParameters(
		[]string{"command", "args"},
		map[string]tool.Param{
			"command": {Type: "string", Description: "Name of the custom command, without the leading /"},
			"args":    {Type: "string", Description: "Arguments as on the command line, e.g. \"file=main.go 2\""},
		},
		[]string{"command"},
	)
	return tool.NewFuncTool("run_command", "Run one of the user's custom commands and return its text", params,
		func(ctx context.Context, args value.Value) (value.Value, error) {
			inv, err := command.Parse(tool.ArgString(args, "command") + " " + tool.ArgString(args, "args"))
			if err != nil {
				return value.Null(), err
			}
			out, err := a.commands.Execute(ctx, inv.Name, inv.Args)
			if err != nil {
				return value.Null(), err
			}
			return value.String(out), nil
		})
}

// snapshot stores the current tool definitions when the audit store is open.
func (a *app) snapshot(ctx context.Context) {
	if a.store == nil {
		return
	}
	if err := a.store.SnapshotDefinitions(ctx, a.tools.Definitions()); err != nil {
		logger.Warn("tool definitions snapshot failed", zap.Error(err))
	}
}

// invokeContext bounds a single tool or command invocation.
func (a *app) invokeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.Settings.ScriptTimeout)
}

func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("closing audit store", zap.Error(err))
		}
	}
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := loadConfig(context.Background())
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(config.ExpandPath(cfg.Settings.AuditDB), logger)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return st, nil
}
