package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"kota/internal/channel"
	"kota/internal/command"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func chatCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Graceful shutdown on signals
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if watch {
				if err := a.watcher.Start(ctx); err != nil {
					logger.Warn("tool hot reload disabled", zap.String("path", resolveToolsPath()), zap.Error(err))
				}
			}

			cli := channel.NewCLI(channel.CLIConfig{
				Config:     a.cfg,
				Commands:   a.commands,
				Skills:     a.skills,
				Dispatcher: a.dispatcher,
				Metrics:    a.metrics,
				Logger:     logger.Named("cli"),
				Out:        cmd.OutOrStdout(),
			})
			return cli.Start(ctx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload tools when their manifest changes")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Run a custom command once and print its output",
		Long: `Runs one custom command from the config. Arguments follow the chat
syntax: key=value pairs are named, other words are positional (1, 2, ...).

Example:
  kota run review file=main.go`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			inv, err := command.ParseSlash(strings.Join(args, " "))
			if err != nil {
				return err
			}

			ictx, cancel := a.invokeContext(ctx)
			defer cancel()
			out, err := a.commands.Execute(ictx, inv.Name, inv.Args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
