package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"kota/internal/config"
	"kota/internal/skill"

	"github.com/spf13/cobra"
)

func commandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Inspect custom commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List custom commands and their kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			names := a.commands.List()
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No custom commands in %s\n", a.cfg.Path)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMMAND\tTYPE")
			for _, n := range names {
				kind, _ := a.commands.Type(n)
				fmt.Fprintf(tw, "/%s\t%s\n", n, kind)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <prefix>",
		Short: "Print the slash commands starting with prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, c := range a.commands.Complete(args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	})
	return cmd
}

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Manage skills",
	}

	marketplace := func(ctx context.Context) (*skill.Marketplace, error) {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return nil, err
		}
		return skill.NewMarketplace(config.ExpandPath(cfg.Settings.SkillsDir), logger)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List builtin and installed skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SKILL\tSOURCE\tDESCRIPTION")
			for _, s := range a.skills.List() {
				source := "installed"
				if s.BuiltIn {
					source = "builtin"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, source, s.Description)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "install <url>",
		Short: "Install a YAML skill definition from a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mp, err := marketplace(cmd.Context())
			if err != nil {
				return err
			}
			s, err := mp.Install(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed skill %q\n", s.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall <name>",
		Short: "Remove an installed skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mp, err := marketplace(cmd.Context())
			if err != nil {
				return err
			}
			if err := mp.Uninstall(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed skill %q\n", args[0])
			return nil
		},
	})
	return cmd
}
