package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"kota/internal/config"

	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	var limit int
	var stats bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent tool and command invocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if stats {
				counts, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(counts))
				for k := range counts {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "%-8s %d\n", k, counts[k])
				}
				return nil
			}

			entries, err := st.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No invocations recorded yet.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tKIND\tNAME\tSTATUS\tDURATION\tERROR")
			for _, e := range entries {
				msg := e.Error
				if e.Stage != "" {
					msg = "[" + e.Stage + "] " + msg
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.At.Local().Format(time.DateTime), e.Kind, e.Name, e.Status, e.Duration.Round(time.Microsecond), msg)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().BoolVar(&stats, "stats", false, "show counts per status instead")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, registries and invocation metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kota v%s\n", version)
			fmt.Fprintf(out, "config:    %s\n", a.cfg.Path)
			fmt.Fprintf(out, "tools:     %s (%d registered, %d advertised, %d failed to load)\n",
				resolveToolsPath(), a.tools.Len(), len(a.dispatcher.Definitions()), len(a.loadErrors))
			fmt.Fprintf(out, "commands:  %d\n", len(a.commands.List()))
			fmt.Fprintf(out, "skills:    %d\n", len(a.skills.List()))
			for _, line := range config.ListPaths(a.cfg) {
				fmt.Fprintf(out, "  %s\n", line)
			}

			if a.store != nil {
				if entries, err := a.store.Recent(cmd.Context(), 1000); err == nil {
					// replay persisted invocations so the metrics cover past runs
					for i := len(entries) - 1; i >= 0; i-- {
						e := entries[i]
						var ierr error
						if e.Status != "ok" {
							ierr = errors.New(e.Error)
						}
						a.metrics.ObserveInvocation(string(e.Kind), e.Name, e.Duration, ierr)
					}
				}
			}
			fmt.Fprintln(out)
			return a.metrics.WriteText(out)
		},
	}
}
