package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"kota/internal/domain"
	"kota/internal/value"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List, describe and invoke tools",
	}

	var listOutput, describeOutput string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the tools advertised to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			defs := a.dispatcher.Definitions()
			if listOutput != "text" {
				return writeDefinitions(cmd.OutOrStdout(), listOutput, defs, false)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
			}
			for _, e := range a.loadErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "not loaded: %v\n", e)
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "output format: text, json or yaml")

	describeCmd := &cobra.Command{
		Use:   "describe <name>",
		Short: "Show a tool's definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			def, err := a.tools.Describe(args[0])
			if err != nil {
				return err
			}
			return writeDefinitions(cmd.OutOrStdout(), describeOutput, []domain.ToolDefinition{def}, true)
		},
	}
	describeCmd.Flags().StringVarP(&describeOutput, "output", "o", "yaml", "output format: json or yaml")

	invokeCmd := &cobra.Command{
		Use:   "invoke <name> [json-args]",
		Short: "Invoke a tool with JSON arguments and print the result",
		Long: `Invokes a tool the way the model would.

Example:
  kota tools invoke add '{"a": 5, "b": 3}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			in := value.Null()
			if len(args) == 2 {
				if in, err = value.Parse([]byte(args[1])); err != nil {
					return fmt.Errorf("invalid JSON arguments: %w", err)
				}
			}

			ctx, cancel := a.invokeContext(cmd.Context())
			defer cancel()
			out, err := a.tools.Invoke(ctx, args[0], in)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.AddCommand(listCmd, describeCmd, invokeCmd)
	return cmd
}

// definitionView is the yaml rendering of a definition. Parameters go
// through plain Go values so yaml sees maps.
type definitionView struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Parameters  any    `yaml:"parameters"`
}

// writeDefinitions renders defs as a list, or its only element when single
// is set.
func writeDefinitions(w io.Writer, format string, defs []domain.ToolDefinition, single bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if single && len(defs) == 1 {
			return enc.Encode(defs[0])
		}
		return enc.Encode(defs)
	case "yaml":
		views := make([]definitionView, len(defs))
		for i, d := range defs {
			views[i] = definitionView{Name: d.Name, Description: d.Description, Parameters: d.Parameters.Any()}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		if single && len(views) == 1 {
			return enc.Encode(views[0])
		}
		return enc.Encode(views)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
