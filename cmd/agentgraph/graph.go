package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowgraph/agentgraph/internal/presentation/mermaid"
	"github.com/flowgraph/agentgraph/pkg/prebuilt/echo"
)

func newGraphCmd(opts *options) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "graph [graph]",
		Short: "Export a graph as a Mermaid diagram",
		Long:  `Compiles the named graph (default "agent") and prints a Mermaid flowchart (graph TD) of its nodes and edges.`,
		Args:  cobra.MaximumNArgs(1),
		// Compiling a graph needs no saver, so config is not loaded.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := newRegistry()
			if list {
				for _, name := range registry.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			name := echo.Name
			if len(args) == 1 {
				name = args[0]
			}
			g, err := registry.Build(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), mermaid.Generate(g.Definition(), nil))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list registered graphs instead")
	return cmd
}
